package likelihood

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomopfuku/gobeast/alignment"
	"github.com/tomopfuku/gobeast/clock"
	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/sitemodel"
	"github.com/tomopfuku/gobeast/substmodel"
	"github.com/tomopfuku/gobeast/tree"
)

const hominidTree = "((((human:0.1,(chimp:0.05,bonobo:0.05):0.05):0.02,gorilla:0.12):0.03,orangutan:0.15):0.05,siamang:0.2);"

const hominidFASTA = `>human
AGAAATATGTCTGATAAAAGAGTTACTTTGATAGAGTAAATAATAGGAGCTTAAACCCCCTTATTTCTACTAGGACTATG
>chimp
AGAAATATGTCTGATAAAAGAATTACTTTGATAGAGTAAATAATAGGAGTTCAAATCCCCTTATTTCTACTAGGACTATA
>bonobo
AGAAATATGTCTGATAAAAGAATTACTTTGATAGAGTAAATAATAGGAGTTTAAATCCCCTTATTTCTACTAGGACTATG
>gorilla
AGAAATATGTCTGATAAAAGAGTTACTTTGTTAGAGTAAATAATAGAGGTTTAAACCCCCTTATTTCTACTAGGACTATG
>orangutan
AGAAATTTGTCTGATAAAAGAGTTACTTTGATAGAGTAAATAATAGAGGTTTAAACCCCCTTATTTCTACTAGGACCATG
>siamang
AGAAATTTGTCTGATAAAAGAGTTACTTTGATAGAGTAAATAATAGAGGTTTAAACCCCCTTATTTCTACTAGGACCATG
`

func patternsOf(t *testing.T, fasta string) *alignment.Patterns {
	t.Helper()
	a, err := alignment.ReadFASTA(strings.NewReader(fasta))
	require.NoError(t, err)
	return alignment.Compress(a)
}

func treeOf(t *testing.T, nwk string) *tree.Tree {
	t.Helper()
	v, err := tree.ParseNewick(nwk)
	require.NoError(t, err)
	tr, err := tree.Adopt("tree", v, tree.Lengths)
	require.NoError(t, err)
	return tr
}

func build(t *testing.T, tr *tree.Tree, p *alignment.Patterns, subst substmodel.Model, opts ...Option) *TreeLikelihood {
	t.Helper()
	site, err := sitemodel.New("site", subst)
	require.NoError(t, err)
	l, err := New("treeLikelihood", tr, p, site, nil, opts...)
	require.NoError(t, err)
	return l
}

func logL(t *testing.T, l *TreeLikelihood) float64 {
	t.Helper()
	v, err := l.LogLikelihood()
	require.NoError(t, err)
	return v
}

func fullLogL(t *testing.T, l *TreeLikelihood) float64 {
	t.Helper()
	l.MakeDirty()
	return logL(t, l)
}

// pruneJC is a direct recursive Felsenstein computation under JC69.
func pruneJC(tr *tree.Tree, p *alignment.Patterns) float64 {
	var partial func(n, k int) []float64
	partial = func(n, k int) []float64 {
		out := []float64{1, 1, 1, 1}
		if tr.IsExternal(n) {
			row, _ := p.TaxonIndex(tr.Taxon(n))
			m := p.States[row][k]
			for s := range out {
				if m&(1<<s) == 0 {
					out[s] = 0
				}
			}
			return out
		}
		for _, c := range tr.Children(n) {
			cp := partial(c, k)
			e := math.Exp(-4 * tr.BranchLength(c) / 3)
			same, diff := 0.25+0.75*e, 0.25-0.25*e
			for i := range out {
				sum := 0.
				for j := range cp {
					if i == j {
						sum += same * cp[j]
					} else {
						sum += diff * cp[j]
					}
				}
				out[i] *= sum
			}
		}
		return out
	}
	total := 0.
	for k := range p.Weights {
		site := 0.
		for _, v := range partial(tr.Root(), k) {
			site += 0.25 * v
		}
		total += p.Weights[k] * math.Log(site)
	}
	return total
}

func TestTwoTaxonJCClosedForm(t *testing.T) {
	tr := treeOf(t, "(a:0.1,b:0.2);")
	p := patternsOf(t, ">a\nAAAACG\n>b\nAAAATG\n")
	l := build(t, tr, p, substmodel.NewJC("jc"))
	e := math.Exp(-4 * 0.3 / 3)
	want := 5*math.Log(0.25*(0.25+0.75*e)) + math.Log(0.25*(0.25-0.25*e))
	assert.InDelta(t, want, logL(t, l), 1e-10)
}

func TestHominidHKYKappaOneMatchesJC(t *testing.T) {
	p := patternsOf(t, hominidFASTA)
	jcTree := treeOf(t, hominidTree)
	jc := logL(t, build(t, jcTree, p, substmodel.NewJC("jc")))

	hky, err := substmodel.NewHKY("hky", model.NewParameter("kappa", 1), substmodel.EqualFrequencies("freqs", 4))
	require.NoError(t, err)
	hkyL := logL(t, build(t, treeOf(t, hominidTree), p, hky))

	assert.InDelta(t, jc, hkyL, 1e-10)
	assert.InDelta(t, pruneJC(jcTree, p), jc, 1e-10)
	assert.Less(t, jc, 0.)
}

func TestAmbiguousTips(t *testing.T) {
	fasta := strings.Replace(hominidFASTA, "AGAAATATGTCTGATAAAAGAGTTACTTTGATAG", "AGAAATATGTCTGATAAAAGAGTTACTTTGNRY-", 1)
	p := patternsOf(t, fasta)
	tr := treeOf(t, hominidTree)
	assert.InDelta(t, pruneJC(tr, p), logL(t, build(t, tr, p, substmodel.NewJC("jc"))), 1e-10)
}

func TestIncrementalMatchesFullAfterBranchEdit(t *testing.T) {
	p := patternsOf(t, hominidFASTA)
	tr := treeOf(t, hominidTree)
	l := build(t, tr, p, substmodel.NewJC("jc"))
	before := logL(t, l)
	assert.Equal(t, 5, l.RecomputedPartials())

	human, _ := tr.TaxonIndex("human")
	l.StoreModelState()
	tr.BeginEdit()
	tr.SetBranchLength(human, 0.3)
	tr.EndEdit()
	incremental := logL(t, l)
	assert.Equal(t, 4, l.RecomputedPartials(), "only the path from human's parent to the root")
	assert.NotEqual(t, before, incremental)
	assert.InDelta(t, fullLogL(t, l), incremental, 1e-9)
	assert.InDelta(t, pruneJC(tr, p), incremental, 1e-9)
}

func TestIncrementalMatchesFullAfterHeightEdit(t *testing.T) {
	p := patternsOf(t, hominidFASTA)
	tr := treeOf(t, hominidTree)
	l := build(t, tr, p, substmodel.NewJC("jc"))
	logL(t, l)

	chimp, _ := tr.TaxonIndex("chimp")
	cb := tr.Parent(chimp)
	tr.BeginEdit()
	tr.SetNodeHeight(cb, 0.07)
	tr.EndEdit()
	incremental := logL(t, l)
	assert.Equal(t, 5, l.RecomputedPartials())
	assert.InDelta(t, fullLogL(t, l), incremental, 1e-9)
	assert.InDelta(t, pruneJC(tr, p), incremental, 1e-9)
}

func TestIncrementalMatchesFullAfterTopologyEdit(t *testing.T) {
	p := patternsOf(t, hominidFASTA)
	tr := treeOf(t, hominidTree)
	l := build(t, tr, p, substmodel.NewJC("jc"))
	logL(t, l)

	chimp, _ := tr.TaxonIndex("chimp")
	gorilla, _ := tr.TaxonIndex("gorilla")
	pc, pg := tr.Parent(chimp), tr.Parent(gorilla)
	tr.BeginEdit()
	tr.RemoveChild(pc, chimp)
	tr.RemoveChild(pg, gorilla)
	tr.AddChild(pc, gorilla)
	tr.AddChild(pg, chimp)
	tr.EndEdit()
	require.NoError(t, tr.Validate())
	incremental := logL(t, l)
	assert.InDelta(t, fullLogL(t, l), incremental, 1e-9)
	assert.InDelta(t, pruneJC(tr, p), incremental, 1e-9)
}

func TestStoreRestoreRecoversCache(t *testing.T) {
	p := patternsOf(t, hominidFASTA)
	tr := treeOf(t, hominidTree)
	l := build(t, tr, p, substmodel.NewJC("jc"))
	before := logL(t, l)

	siamang, _ := tr.TaxonIndex("siamang")
	l.StoreModelState()
	tr.BeginEdit()
	tr.SetBranchLength(siamang, 1.5)
	tr.EndEdit()
	assert.NotEqual(t, before, logL(t, l))
	l.RestoreModelState()

	assert.Equal(t, before, logL(t, l), "restored score is served from the cache")
	assert.Equal(t, 0.2, tr.BranchLength(siamang))
	l.MakeDirty()
	assert.InDelta(t, before, logL(t, l), 1e-12)
}

func TestParameterChangeDirtiesEverything(t *testing.T) {
	p := patternsOf(t, hominidFASTA)
	tr := treeOf(t, hominidTree)
	kappa := model.NewParameter("kappa", 2)
	hky, err := substmodel.NewHKY("hky", kappa, substmodel.EqualFrequencies("freqs", 4))
	require.NoError(t, err)
	rate := model.NewParameter("clock.rate", 1)
	site, err := sitemodel.New("site", hky, sitemodel.WithGamma(model.NewParameter("alpha", 0.5), 4))
	require.NoError(t, err)
	l, err := New("tl", tr, p, site, clock.NewStrict("clock", rate))
	require.NoError(t, err)
	before := logL(t, l)

	kappa.SetValue(0, 5)
	afterKappa := logL(t, l)
	assert.Equal(t, 5, l.RecomputedPartials())
	assert.NotEqual(t, before, afterKappa)

	rate.SetValue(0, 2)
	doubled := logL(t, l)
	const twice = "((((human:0.2,(chimp:0.1,bonobo:0.1):0.1):0.04,gorilla:0.24):0.06,orangutan:0.3):0.1,siamang:0.4);"
	l2, err := New("tl2", treeOf(t, twice), p, site, nil)
	require.NoError(t, err)
	assert.InDelta(t, logL(t, l2), doubled, 1e-9)
}

func TestScalingGivesSameAnswer(t *testing.T) {
	p := patternsOf(t, hominidFASTA)
	plain := logL(t, build(t, treeOf(t, hominidTree), p, substmodel.NewJC("jc")))
	scaled := build(t, treeOf(t, hominidTree), p, substmodel.NewJC("jc"), WithScaling())
	assert.True(t, scaled.Scaling())
	assert.InDelta(t, plain, logL(t, scaled), 1e-9)
}

func TestZeroLikelihoodIsNegativeInfinity(t *testing.T) {
	// a zero-length tree cannot explain differing tips
	tr := treeOf(t, "(a:0,b:0);")
	p := patternsOf(t, ">a\nA\n>b\nC\n")
	l := build(t, tr, p, substmodel.NewJC("jc"))
	v, err := l.LogLikelihood()
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, -1))
	assert.True(t, l.Scaling(), "the first non-finite result switches rescaling on")
}

func TestConstructionErrors(t *testing.T) {
	p := patternsOf(t, ">a\nA\n>b\nC\n")
	_, err := New("x", treeOf(t, "(a:1,c:1);"), p, mustSite(t), nil)
	assert.ErrorIs(t, err, ErrMissingTaxon)
}

func TestNodeCountChangePanics(t *testing.T) {
	p := patternsOf(t, ">a\nA\n>b\nC\n>c\nG\n")
	tr := treeOf(t, "(a:1,b:1,c:1);")
	l, err := New("x", tr, p, mustSite(t), nil)
	require.NoError(t, err)
	logL(t, l)
	tr.BeginEdit()
	tr.Resolve()
	tr.EndEdit()
	assert.PanicsWithError(t, "x: "+ErrBufferMismatch.Error()+": 5 nodes, buffers for 4", func() {
		_, _ = l.LogLikelihood()
	})
}

func mustSite(t *testing.T) *sitemodel.SiteModel {
	t.Helper()
	s, err := sitemodel.New("site", substmodel.NewJC("jc"))
	require.NoError(t, err)
	return s
}
