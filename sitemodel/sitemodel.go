// Package sitemodel adds among-site rate heterogeneity to a substitution
// model: discrete gamma rate categories and an optional proportion of
// invariant sites.
package sitemodel

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/substmodel"
)

//SiteModel is a substitution model plus rate categories.
type SiteModel struct {
	model.Base
	subst      substmodel.Model
	alpha      *model.Parameter
	pInv       *model.Parameter
	gammaCount int

	rates, props             []float64
	dirty                    bool
	storedRates, storedProps []float64
	storedDirty              bool
}

//Option configures a SiteModel.
type Option func(*SiteModel)

//WithGamma adds count discrete gamma categories with shape alpha.
func WithGamma(alpha *model.Parameter, count int) Option {
	return func(s *SiteModel) {
		s.alpha = alpha
		s.gammaCount = count
	}
}

//WithInvariant adds a zero-rate category holding proportion pInv of sites.
func WithInvariant(pInv *model.Parameter) Option {
	return func(s *SiteModel) {
		s.pInv = pInv
	}
}

//New will wrap subst. Without options every site evolves at rate 1.
func New(id string, subst substmodel.Model, opts ...Option) (*SiteModel, error) {
	s := &SiteModel{subst: subst, gammaCount: 1, dirty: true}
	for _, o := range opts {
		o(s)
	}
	if s.alpha != nil && s.gammaCount < 1 {
		return nil, fmt.Errorf("%s: gamma category count must be at least 1, got %d", id, s.gammaCount)
	}
	s.Init(id, s)
	s.AddModel(subst)
	if s.alpha != nil {
		s.alpha.SetBounds(1e-3, 1e3)
		s.AddParameter(s.alpha)
	}
	if s.pInv != nil {
		s.pInv.SetBounds(0, 1-1e-9)
		s.AddParameter(s.pInv)
	}
	s.update()
	return s, nil
}

//SubstitutionModel returns the wrapped substitution model.
func (s *SiteModel) SubstitutionModel() substmodel.Model {
	return s.subst
}

//CategoryCount returns the number of rate categories.
func (s *SiteModel) CategoryCount() int {
	n := s.gammaCount
	if s.pInv != nil {
		n++
	}
	return n
}

//CategoryRates returns the relative rate of each category; the
//proportion-weighted mean is 1.
func (s *SiteModel) CategoryRates() []float64 {
	if s.dirty {
		s.update()
	}
	return s.rates
}

//CategoryProportions returns the prior weight of each category.
func (s *SiteModel) CategoryProportions() []float64 {
	if s.dirty {
		s.update()
	}
	return s.props
}

func (s *SiteModel) update() {
	k := s.CategoryCount()
	rates := make([]float64, k)
	props := make([]float64, k)
	invariant := 0.
	off := 0
	if s.pInv != nil {
		invariant = s.pInv.Value(0)
		props[0] = invariant
		off = 1
	}
	g := rates[off:]
	if s.alpha == nil {
		g[0] = 1
	} else {
		GammaCategories(s.alpha.Value(0), g)
	}
	for i := range g {
		g[i] /= 1 - invariant
		props[off+i] = (1 - invariant) / float64(len(g))
	}
	s.rates = rates
	s.props = props
	s.dirty = false
}

//GammaCategories fills dst with the mean-normalised quantiles at the
//category midpoints of a Gamma(alpha, alpha) distribution.
func GammaCategories(alpha float64, dst []float64) {
	k := len(dst)
	if k == 1 {
		dst[0] = 1
		return
	}
	g := distuv.Gamma{Alpha: alpha, Beta: alpha}
	for i := range dst {
		dst[i] = g.Quantile((2*float64(i) + 1) / (2 * float64(k)))
	}
	floats.Scale(float64(k)/floats.Sum(dst), dst)
}

func (s *SiteModel) HandleModelChanged(model.Event) {}

func (s *SiteModel) HandleParameterChanged(*model.Parameter, int) {
	s.dirty = true
}

func (s *SiteModel) StoreState() {
	s.storedRates, s.storedProps, s.storedDirty = s.rates, s.props, s.dirty
}

func (s *SiteModel) RestoreState() {
	s.rates, s.props, s.dirty = s.storedRates, s.storedProps, s.storedDirty
}

func (s *SiteModel) AcceptState() {}
