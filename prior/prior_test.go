package prior

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/tree"
)

func TestNewDistribution(t *testing.T) {
	d, err := NewDistribution("Exponential", 2, 0)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2)-2*0.5, d.LogProb(0.5), 1e-12)

	_, err = NewDistribution("cauchy", 0, 1)
	assert.ErrorIs(t, err, ErrUnknownDistribution)
}

func TestParametricSumsDimensions(t *testing.T) {
	d, err := NewDistribution("normal", 0, 1)
	require.NoError(t, err)
	x := model.NewParameter("x", 0, 1)
	p := NewParametric("x.prior", d, x)
	v, err := p.LogLikelihood()
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(2*math.Pi)-0.5, v, 1e-12)
}

func TestParametricOutOfBounds(t *testing.T) {
	d, err := NewDistribution("normal", 0, 1)
	require.NoError(t, err)
	x := model.NewParameter("x", -1).SetBounds(0, 10)
	v, err := NewParametric("x.prior", d, x).LogLikelihood()
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, -1))
}

func TestCoalescentTwoTaxa(t *testing.T) {
	v, err := tree.ParseNewick("(a:1.5,b:1.5);")
	require.NoError(t, err)
	tr, err := tree.Adopt("tree", v, tree.Lengths)
	require.NoError(t, err)
	n := model.NewParameter("popSize", 2)
	c := NewCoalescent("coalescent", tr, n)
	got, err := c.LogLikelihood()
	require.NoError(t, err)
	assert.InDelta(t, -1.5/2-math.Log(2), got, 1e-12)

	c.StoreModelState()
	n.SetValue(0, 4)
	got, err = c.LogLikelihood()
	require.NoError(t, err)
	assert.InDelta(t, -1.5/4-math.Log(4), got, 1e-12)
	c.RestoreModelState()
	got, err = c.LogLikelihood()
	require.NoError(t, err)
	assert.InDelta(t, -1.5/2-math.Log(2), got, 1e-12)
}

func TestCoalescentThreeTaxa(t *testing.T) {
	v, err := tree.ParseNewick("((a:1,b:1):2,c:3);")
	require.NoError(t, err)
	tr, err := tree.Adopt("tree", v, tree.Lengths)
	require.NoError(t, err)
	c := NewCoalescent("coalescent", tr, model.NewParameter("popSize", 1))
	got, err := c.LogLikelihood()
	require.NoError(t, err)
	// three lineages for 1 time unit, two for 2
	assert.InDelta(t, -3*1-1*2, got, 1e-12)

	tr.BeginEdit()
	tr.SetNodeHeight(tr.Root(), 4)
	tr.EndEdit()
	got, err = c.LogLikelihood()
	require.NoError(t, err)
	assert.InDelta(t, -3*1-1*3, got, 1e-12)
}

func TestGMRF(t *testing.T) {
	x := model.NewParameter("logN", 0, 1, 3)
	tau := model.NewParameter("tau", 2)
	g := NewGMRF("gmrf", x, tau)
	assert.Equal(t, 5., g.SumSquaredDifferences())
	got, err := g.LogLikelihood()
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2)-math.Log(2*math.Pi)-5, got, 1e-12)
}
