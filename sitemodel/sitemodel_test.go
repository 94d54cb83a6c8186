package sitemodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/substmodel"
)

func TestGammaCategoriesMeanOne(t *testing.T) {
	for _, alpha := range []float64{0.1, 0.5, 1, 10} {
		r := make([]float64, 4)
		GammaCategories(alpha, r)
		assert.InDelta(t, 4, floats.Sum(r), 1e-9)
		for i := 1; i < len(r); i++ {
			assert.Greater(t, r[i], r[i-1])
		}
	}
}

func TestGammaCategoriesNarrowForLargeAlpha(t *testing.T) {
	r := make([]float64, 4)
	GammaCategories(1000, r)
	for _, v := range r {
		assert.InDelta(t, 1, v, 0.1)
	}
}

func TestHomogeneous(t *testing.T) {
	s, err := New("site", substmodel.NewJC("jc"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.CategoryCount())
	assert.Equal(t, []float64{1}, s.CategoryRates())
	assert.Equal(t, []float64{1}, s.CategoryProportions())
}

func TestInvariantSites(t *testing.T) {
	pInv := model.NewParameter("pInv", 0.2)
	s, err := New("site", substmodel.NewJC("jc"), WithGamma(model.NewParameter("alpha", 0.5), 4), WithInvariant(pInv))
	require.NoError(t, err)
	assert.Equal(t, 5, s.CategoryCount())
	rates, props := s.CategoryRates(), s.CategoryProportions()
	assert.Equal(t, 0., rates[0])
	assert.InDelta(t, 1, floats.Sum(props), 1e-12)
	assert.InDelta(t, 1, floats.Dot(rates, props), 1e-9)
}

func TestAlphaChangeRestore(t *testing.T) {
	alpha := model.NewParameter("alpha", 0.5)
	s, err := New("site", substmodel.NewJC("jc"), WithGamma(alpha, 4))
	require.NoError(t, err)
	before := append([]float64(nil), s.CategoryRates()...)
	s.StoreModelState()
	alpha.SetValue(0, 2)
	assert.NotEqual(t, before, s.CategoryRates())
	s.RestoreModelState()
	assert.Equal(t, before, s.CategoryRates())
}

func TestEventsReachListeners(t *testing.T) {
	alpha := model.NewParameter("alpha", 0.5)
	jc := substmodel.NewJC("jc")
	s, err := New("site", jc, WithGamma(alpha, 4))
	require.NoError(t, err)
	var got []model.Event
	s.AddListener(listenerFunc(func(ev model.Event) { got = append(got, ev) }))
	alpha.SetValue(0, 0.7)
	require.Len(t, got, 1)
	assert.Same(t, s, got[0].Source)
}

type listenerFunc func(model.Event)

func (f listenerFunc) ModelChanged(ev model.Event) { f(ev) }
