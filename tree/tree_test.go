package tree

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomopfuku/gobeast/model"
)

const fiveTaxa = "((A:1,B:1):2,(C:2,(D:1,E:1):1):1);"

func mustTree(t *testing.T, nwk string) *Tree {
	t.Helper()
	v, err := ParseNewick(nwk)
	require.NoError(t, err)
	tr, err := Adopt("tree", v, Lengths)
	require.NoError(t, err)
	require.NoError(t, tr.Validate())
	return tr
}

type recorder struct{ events []model.Event }

func (r *recorder) ModelChanged(ev model.Event) { r.events = append(r.events, ev) }

func leaf(t *testing.T, tr *Tree, name string) int {
	t.Helper()
	n, ok := tr.TaxonIndex(name)
	require.True(t, ok, name)
	return n
}

func TestAdoptNumbersPostorder(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	assert.Equal(t, 9, tr.NodeCount())
	assert.Equal(t, 5, tr.ExternalNodeCount())
	assert.Equal(t, 4, tr.InternalNodeCount())
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, tr.Taxa())
	assert.Equal(t, 8, tr.Root())
	for i := 0; i < 5; i++ {
		assert.True(t, tr.IsExternal(i))
	}
	// post-order numbering: every child precedes its parent
	for _, n := range tr.Postorder() {
		if p := tr.Parent(n); p >= 0 {
			assert.Less(t, n, p)
		}
	}
}

func TestHeightsFromLengths(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	assert.InDelta(t, 3.0, tr.NodeHeight(tr.Root()), 1e-12)
	for i := 0; i < tr.ExternalNodeCount(); i++ {
		assert.InDelta(t, 0.0, tr.NodeHeight(i), 1e-12)
	}
	a, b := leaf(t, tr, "A"), leaf(t, tr, "B")
	assert.InDelta(t, 1.0, tr.NodeHeight(tr.Parent(a)), 1e-12)
	assert.Equal(t, tr.Parent(a), tr.MRCA(a, b))
	assert.InDelta(t, 2.0, tr.PatristicDistance(a, b), 1e-12)
	assert.InDelta(t, 10.0, tr.TreeLength(), 1e-12)
}

func TestHeightLengthRoundTrip(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	d := leaf(t, tr, "D")
	p := tr.Parent(d)
	tr.BeginEdit()
	tr.SetNodeHeight(p, 1.5)
	tr.EndEdit()
	assert.False(t, tr.LengthsKnown())
	assert.InDelta(t, 1.5, tr.BranchLength(d), 1e-12)
	assert.InDelta(t, 0.5, tr.BranchLength(p), 1e-12)

	tr.BeginEdit()
	tr.SetBranchLength(d, 1.5)
	tr.SetBranchLength(leaf(t, tr, "E"), 1.5)
	tr.EndEdit()
	assert.False(t, tr.HeightsKnown())
	assert.InDelta(t, 1.5, tr.NodeHeight(p), 1e-12)
	assert.InDelta(t, 3.0, tr.NodeHeight(tr.Root()), 1e-12)
}

func TestEditFiresOneEvent(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	rec := &recorder{}
	tr.AddListener(rec)

	tr.BeginEdit()
	tr.EndEdit()
	assert.Empty(t, rec.events, "an empty edit fires nothing")

	tr.BeginEdit()
	tr.SetNodeHeight(5, 1.2)
	tr.SetNodeHeight(6, 1.4)
	tr.EndEdit()
	require.Len(t, rec.events, 1)
	cs, ok := rec.events[0].Detail.(ChangeSet)
	require.True(t, ok)
	assert.Equal(t, ChangeSet{{5, HeightChanged}, {6, HeightChanged}}, cs)
	assert.Same(t, tr, rec.events[0].Source)
}

func TestEditContractViolations(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	assertContract := func(want error, f func()) {
		t.Helper()
		defer func() {
			r := recover()
			require.NotNil(t, r)
			err, ok := r.(error)
			require.True(t, ok)
			var ce *ContractError
			require.True(t, errors.As(err, &ce))
			assert.ErrorIs(t, err, want)
		}()
		f()
	}
	assertContract(ErrNotEditing, func() { tr.SetNodeHeight(5, 1) })
	assertContract(ErrNotEditing, func() { tr.EndEdit() })
	tr.BeginEdit()
	assertContract(ErrAlreadyEditing, func() { tr.BeginEdit() })
	a := leaf(t, tr, "A")
	p := tr.Parent(a)
	assertContract(ErrDuplicateChild, func() { tr.AddChild(p, a) })
	assertContract(ErrMissingChild, func() { tr.RemoveChild(p, leaf(t, tr, "C")) })
	tr.EndEdit()
}

func TestStoreRestoreTopology(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	before := tr.Newick(true)
	tr.StoreModelState()

	a, c := leaf(t, tr, "A"), leaf(t, tr, "C")
	pa, pc := tr.Parent(a), tr.Parent(c)
	tr.BeginEdit()
	tr.RemoveChild(pa, a)
	tr.RemoveChild(pc, c)
	tr.AddChild(pa, c)
	tr.AddChild(pc, a)
	tr.EndEdit()
	assert.NotEqual(t, before, tr.Newick(true))

	tr.RestoreModelState()
	assert.Equal(t, before, tr.Newick(true))
	assert.NoError(t, tr.Validate())
}

func TestChangeRootPreservesDistances(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	n := tr.ExternalNodeCount()
	dist := func() [][]float64 {
		out := make([][]float64, n)
		for i := range out {
			out[i] = make([]float64, n)
			for j := range out[i] {
				out[i][j] = tr.PatristicDistance(i, j)
			}
		}
		return out
	}
	before := dist()

	d := leaf(t, tr, "D")
	h := tr.NodeHeight(d) + 0.25
	tr.BeginEdit()
	require.NoError(t, tr.ChangeRoot(d, h))
	tr.EndEdit()

	require.NoError(t, tr.Validate())
	assert.Equal(t, tr.Root(), tr.Parent(d))
	assert.InDelta(t, 0.25, tr.BranchLength(d), 1e-12)
	after := dist()
	for i := range before {
		for j := range before[i] {
			assert.InDelta(t, before[i][j], after[i][j], 1e-12, "%d-%d", i, j)
		}
	}
}

func distances(tr *Tree) [][]float64 {
	n := tr.ExternalNodeCount()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = tr.PatristicDistance(i, j)
		}
	}
	return out
}

func TestChangeRootOnDeepLeaf(t *testing.T) {
	tr := mustTree(t, "(((a:1,b:1):1,c:2):1,d:3);")
	before := distances(tr)
	a := leaf(t, tr, "a")
	tr.BeginEdit()
	require.NoError(t, tr.ChangeRoot(a, 0.5))
	tr.EndEdit()

	require.NoError(t, tr.Validate())
	assert.Equal(t, tr.Root(), tr.Parent(a))
	after := distances(tr)
	for i := range before {
		for j := range before[i] {
			assert.InDelta(t, before[i][j], after[i][j], 1e-10, "%d-%d", i, j)
		}
	}
}

func TestChangeRootEveryBranch(t *testing.T) {
	taxa := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
	base, err := RandomCoalescent("start", taxa, 1, rand.New(rand.NewPCG(4, 9)))
	require.NoError(t, err)
	want := distances(base)
	for n := 0; n < base.NodeCount(); n++ {
		if n == base.Root() {
			continue
		}
		tr := base.Copy("rerooted")
		h := (tr.NodeHeight(n) + tr.NodeHeight(tr.Parent(n))) / 2
		tr.BeginEdit()
		require.NoError(t, tr.ChangeRoot(n, h), "node %d", n)
		tr.EndEdit()
		require.NoError(t, tr.Validate(), "node %d", n)
		got := distances(tr)
		for i := range want {
			for j := range want[i] {
				assert.InDelta(t, want[i][j], got[i][j], 1e-10, "node %d: %d-%d", n, i, j)
			}
		}
	}
}

func TestChangeRootOnRootChild(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	a := leaf(t, tr, "A")
	ab := tr.Parent(a)
	before := tr.PatristicDistance(a, leaf(t, tr, "C"))
	tr.BeginEdit()
	require.NoError(t, tr.ChangeRoot(ab, tr.NodeHeight(ab)+1))
	tr.EndEdit()
	require.NoError(t, tr.Validate())
	assert.InDelta(t, before, tr.PatristicDistance(a, leaf(t, tr, "C")), 1e-12)
}

func TestChangeRootRejectsBadHeight(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	d := leaf(t, tr, "D")
	tr.BeginEdit()
	defer tr.EndEdit()
	assert.ErrorIs(t, tr.ChangeRoot(d, -1), ErrInvalidHeight)
	assert.ErrorIs(t, tr.ChangeRoot(d, 1.5), ErrInvalidHeight)
	assert.ErrorIs(t, tr.ChangeRoot(tr.Root(), 4), ErrInvalidHeight)
}

func TestChangeRootRequiresBinary(t *testing.T) {
	tr := mustTree(t, "(A:1,B:1,C:1);")
	tr.BeginEdit()
	defer tr.EndEdit()
	assert.ErrorIs(t, tr.ChangeRoot(0, 0.5), ErrNotBinary)
}

func TestResolveMultifurcation(t *testing.T) {
	tr := mustTree(t, "((A:1,B:1,C:1,D:1):1,E:2);")
	assert.False(t, tr.IsBinary())
	rec := &recorder{}
	tr.AddListener(rec)
	tr.BeginEdit()
	tr.Resolve()
	tr.EndEdit()
	assert.True(t, tr.IsBinary())
	assert.Equal(t, 9, tr.NodeCount())
	require.NoError(t, tr.Validate())
	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Detail.(ChangeSet).All())
	a, d := leaf(t, tr, "A"), leaf(t, tr, "D")
	assert.InDelta(t, 2.0, tr.PatristicDistance(a, d), 1e-12)
}

func TestNewickRoundTrip(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	again := mustTree(t, tr.Newick(true))
	assert.Equal(t, tr.Newick(true), again.Newick(true))
	assert.Equal(t, "((A,B),(C,(D,E)));", tr.Newick(false))
	assert.Equal(t, "((1:1,2:1):2,(3:2,(4:1,5:1):1):1);", tr.NewickNumbered())
}

func TestParseNewickLabels(t *testing.T) {
	v, err := ParseNewick("(Homo_sapiens:0.5,Pan_troglodytes:0.5[&rate=1])root;")
	require.NoError(t, err)
	require.Len(t, v.Children, 2)
	assert.Equal(t, "Homo sapiens", v.Children[0].Name)
	assert.Equal(t, 0.5, v.Children[1].Length)
	assert.Equal(t, "Pan troglodytes", v.Children[1].Name)
	assert.Equal(t, "root", v.Attributes["label"])
}

func TestParseNewickErrors(t *testing.T) {
	for _, in := range []string{"((A,B);", "(A:x,B);", "(A,B)C;D", "('A',B);"} {
		_, err := ParseNewick(in)
		assert.ErrorIs(t, err, ErrNewick, in)
	}
	v, err := ParseNewick("(A,A);")
	require.NoError(t, err)
	_, err = Adopt("t", v, Lengths)
	assert.ErrorIs(t, err, ErrDuplicateTaxon)
}

func TestRandomCoalescent(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	taxa := []string{"a", "b", "c", "d", "e", "f"}
	tr, err := RandomCoalescent("start", taxa, 10, rng)
	require.NoError(t, err)
	require.NoError(t, tr.Validate())
	assert.True(t, tr.IsBinary())
	assert.ElementsMatch(t, taxa, tr.Taxa())
	assert.Greater(t, tr.NodeHeight(tr.Root()), 0.)

	_, err = RandomCoalescent("x", nil, 1, rng)
	assert.ErrorIs(t, err, ErrEmptyTree)
}

func TestCopyIsIndependent(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	c := tr.Copy("copy")
	c.BeginEdit()
	c.SetNodeHeight(c.Root(), 10)
	c.EndEdit()
	assert.InDelta(t, 3.0, tr.NodeHeight(tr.Root()), 1e-12)
	assert.Equal(t, tr.Newick(false), c.Newick(false))
}

func TestArenaRoundTrip(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	a := tr.Arena()
	want := tr.Newick(true)

	d := leaf(t, tr, "D")
	tr.BeginEdit()
	require.NoError(t, tr.ChangeRoot(d, tr.NodeHeight(d)+0.5))
	tr.EndEdit()
	require.NotEqual(t, want, tr.Newick(true))

	rec := &recorder{}
	tr.AddListener(rec)
	tr.BeginEdit()
	require.NoError(t, tr.LoadArena(a))
	tr.EndEdit()
	assert.Equal(t, want, tr.Newick(true))
	assert.Equal(t, a.Root, tr.Root())
	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Detail.(ChangeSet).All())
}

func TestArenaRejectsMismatch(t *testing.T) {
	tr := mustTree(t, fiveTaxa)
	before := tr.Newick(true)
	a := tr.Arena()
	a.Taxa[0] = "Z"
	tr.BeginEdit()
	assert.Error(t, tr.LoadArena(a))

	b := tr.Arena()
	b.Children[b.Root] = append(b.Children[b.Root], 0)
	assert.Error(t, tr.LoadArena(b))
	tr.EndEdit()
	assert.Equal(t, before, tr.Newick(true))
	assert.NoError(t, tr.Validate())
}
