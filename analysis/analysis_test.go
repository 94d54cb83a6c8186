package analysis

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomopfuku/gobeast/config"
)

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

const hominidTree = "((((human:0.1,(chimp:0.05,bonobo:0.05):0.05):0.02,gorilla:0.12):0.03,orangutan:0.15):0.05,siamang:0.2);"

// writeDoc stores the alignment and an analysis document in a fresh
// directory and parses the document.
func writeDoc(t *testing.T, fasta, body string) *config.Analysis {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.fasta"), []byte(fasta), 0o644))
	path := filepath.Join(dir, "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data: {alignment: data.fasta}\n"+body), 0o644))
	a, err := config.Load(path)
	require.NoError(t, err)
	return a
}

func graphFor(t *testing.T, a *config.Analysis) (*Graph, error) {
	t.Helper()
	patterns, err := ReadData(a)
	require.NoError(t, err)
	start, err := StartingTree(a, patterns, nil)
	require.NoError(t, err)
	return BuildGraph(a, patterns, start)
}

func TestTwoTaxonJukesCantor(t *testing.T) {
	a := writeDoc(t, ">a\nACGTACGTAA\n>b\nACGTACGTCC\n", `
tree: {newick: "(a:0.1,b:0.2);"}
model: {substitution: jc}
`)
	got, err := EvaluateLikelihood(a)
	require.NoError(t, err)

	e := math.Exp(-4. / 3 * 0.3)
	same := 0.25 * (0.25 + 0.75*e)
	diff := 0.25 * (0.25 - 0.25*e)
	assert.InDelta(t, 8*math.Log(same)+2*math.Log(diff), got, 1e-9)
}

func TestEvaluateLikelihoodNeedsTree(t *testing.T) {
	a := writeDoc(t, hominidFASTA, "")
	_, err := EvaluateLikelihood(a)
	assert.ErrorIs(t, err, ErrNoTree)
}

func TestDefaultOperatorsAndPriors(t *testing.T) {
	a := writeDoc(t, hominidFASTA, fmt.Sprintf("tree: {newick: %q}\n", hominidTree))
	g, err := graphFor(t, a)
	require.NoError(t, err)

	var names []string
	for i := 0; i < g.Schedule.Len(); i++ {
		names = append(names, g.Schedule.Operator(i).Name())
	}
	assert.Equal(t, []string{
		"kappa.scale", "popSize.scale",
		"subtree_slide", "narrow_exchange", "wide_exchange", "wilson_balding", "node_height_uniform", "tree_scale",
	}, names)
	require.NotNil(t, g.Parameter("kappa"))
	assert.Nil(t, g.Parameter("alpha"))

	lp, err := g.Prior.LogLikelihood()
	require.NoError(t, err)
	assert.False(t, math.IsInf(lp, 0) || math.IsNaN(lp))
	assert.Len(t, g.Prior.Parts(), 3, "coalescent plus kappa and popSize priors")
}

func TestDuplicateOperatorsGetDistinctNames(t *testing.T) {
	a := writeDoc(t, hominidFASTA, fmt.Sprintf(`
tree: {newick: %q}
operators:
  - {type: scale, parameter: kappa, weight: 1}
  - {type: scale, parameter: kappa, weight: 2, tuning: 0.5}
`, hominidTree))
	g, err := graphFor(t, a)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"kappa.scale": 0.75, "kappa.scale.2": 0.5}, g.Schedule.Tunings())
}

func TestGMRFGibbsTakesGammaHyperprior(t *testing.T) {
	a := writeDoc(t, hominidFASTA, fmt.Sprintf(`
tree: {newick: %q}
parameters:
  - {id: x, values: [1, 2, 3]}
  - {id: tau, values: [1], lower: 0}
priors:
  - {parameter: x, distribution: gmrf, precision: tau}
  - {parameter: tau, distribution: gamma, args: [2, 1]}
operators:
  - {type: random_walk, parameter: x, weight: 1}
  - {type: gmrf_gibbs, parameter: tau, weight: 1}
`, hominidTree))
	g, err := graphFor(t, a)
	require.NoError(t, err)
	require.Equal(t, 2, g.Schedule.Len())
	assert.Equal(t, "tau.gmrf_gibbs", g.Schedule.Operator(1).Name())
}

func TestGraphErrorsNameElement(t *testing.T) {
	cases := []struct {
		name    string
		fasta   string
		body    string
		element string
	}{
		{"unknown prior parameter", hominidFASTA, "priors: [{parameter: nu, distribution: normal, args: [0, 1]}]\n", "priors[0].parameter"},
		{"argument count", hominidFASTA, "priors: [{parameter: kappa, distribution: exponential, args: [1, 2]}]\n", "priors[0].args"},
		{"sampled without prior", hominidFASTA,
			"parameters: [{id: x, values: [1]}]\noperators: [{type: scale, parameter: x, weight: 1}]\n", "operators[0].parameter"},
		{"gibbs without gmrf", hominidFASTA,
			"operators: [{type: gmrf_gibbs, parameter: kappa, weight: 1, shape: 1, rate: 1}]\n", "operators[0].parameter"},
		{"reserved id", hominidFASTA, "parameters: [{id: kappa, values: [1]}]\n", "parameters[0].id"},
		{"out of bounds", hominidFASTA, "parameters: [{id: x, values: [-1], lower: 0}]\n", "parameters[0].values"},
		{"taxon missing", ">human\nACGT\n>chimp\nACGT\n", "", "tree"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := writeDoc(t, tc.fasta, fmt.Sprintf("tree: {newick: %q}\n%s", hominidTree, tc.body))
			_, err := graphFor(t, a)
			var ie *config.InputError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tc.element, ie.Element)
		})
	}
}

func TestRandomStartingTreeCoversTaxa(t *testing.T) {
	a := writeDoc(t, hominidFASTA, "seed: 3\nmcmc: {chain_length: 10}\nlogs: {screen: {every: 0}}\n")
	s, err := New(a, nil)
	require.NoError(t, err)
	defer s.Close()
	tr := s.Chains()[0].Trees()[0]
	assert.ElementsMatch(t, []string{"human", "chimp", "bonobo", "gorilla", "orangutan", "siamang"}, tr.Taxa())
	assert.True(t, tr.IsBinary())
	require.NoError(t, s.Run(context.Background()))
}

func lines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunAndResume(t *testing.T) {
	body := func(length int) string {
		return fmt.Sprintf(`
run_id: hominid
seed: 5
tree: {newick: %q}
mcmc: {chain_length: %d, full_evaluation_every: 10}
logs:
  trace: {file: run.log, every: 10}
  trees: {file: run.trees, every: 50}
  screen: {every: 0}
  checkpoint: {dir: checkpoints, every: 50}
`, hominidTree, length)
	}
	a := writeDoc(t, hominidFASTA, body(200))
	s, err := New(a, nil)
	require.NoError(t, err)
	assert.Nil(t, s.MC3())
	require.NoError(t, s.Run(context.Background()))
	require.NoError(t, s.Close())

	trace := lines(t, a.Path("run.log"))
	require.Len(t, trace, 1+21)
	assert.True(t, strings.HasPrefix(trace[0], "state\tposterior\tprior\tlikelihood"))
	assert.True(t, strings.HasPrefix(trace[len(trace)-1], "200\t"))
	trees := lines(t, a.Path("run.trees"))
	assert.Equal(t, "End;", trees[len(trees)-1])

	again := *a
	again.MCMC.ChainLength = 300
	r, err := New(&again, nil)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Resume())
	assert.Equal(t, 200, r.Chains()[0].Iteration())
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 300, r.Chains()[0].Iteration())

	trace = lines(t, a.Path("run.log"))
	assert.True(t, strings.HasPrefix(trace[1], "210\t"), "a resumed trace starts after the checkpoint")
}

func TestResumeWithoutStore(t *testing.T) {
	a := writeDoc(t, hominidFASTA, fmt.Sprintf("tree: {newick: %q}\nmcmc: {chain_length: 10}\n", hominidTree))
	s, err := New(a, nil)
	require.NoError(t, err)
	var ie *config.InputError
	assert.ErrorAs(t, s.Resume(), &ie)
}

func TestMC3Run(t *testing.T) {
	a := writeDoc(t, hominidFASTA, fmt.Sprintf(`
seed: 8
tree: {newick: %q}
mcmc: {chain_length: 100, chains: 3, swap_every: 10, delta_temperature: 0.3}
logs: {screen: {every: 0}}
`, hominidTree))
	s, err := New(a, nil)
	require.NoError(t, err)
	require.NotNil(t, s.MC3())
	require.Len(t, s.Chains(), 3)
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 100, s.MC3().Iteration())
	assert.Equal(t, 1., s.MC3().Cold().Temperature())
}
