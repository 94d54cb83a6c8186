// Package prior provides the prior densities of an analysis: parametric
// distributions on parameters, the constant-size coalescent on the tree
// and a Gaussian Markov random field smoothing prior.
package prior

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tomopfuku/gobeast/model"
)

//ErrUnknownDistribution indicates a distribution name NewDistribution
//does not know.
var ErrUnknownDistribution = errors.New("unknown distribution")

//LogProber is satisfied by every gonum distuv distribution.
type LogProber interface {
	LogProb(x float64) float64
}

//NewDistribution will build a gonum distribution from its name and two
//shape values (the second is ignored by one-parameter families).
//
//	normal(mean, sd)  lognormal(mu, sigma)  exponential(rate)
//	gamma(shape, rate)  uniform(lower, upper)  beta(alpha, beta)
func NewDistribution(name string, a, b float64) (LogProber, error) {
	switch strings.ToLower(name) {
	case "normal":
		return distuv.Normal{Mu: a, Sigma: b}, nil
	case "lognormal":
		return distuv.LogNormal{Mu: a, Sigma: b}, nil
	case "exponential":
		return distuv.Exponential{Rate: a}, nil
	case "gamma":
		return distuv.Gamma{Alpha: a, Beta: b}, nil
	case "uniform":
		return distuv.Uniform{Min: a, Max: b}, nil
	case "beta":
		return distuv.Beta{Alpha: a, Beta: b}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDistribution, name)
}

//Parametric is an independent prior on every dimension of some
//parameters. A value outside its parameter's bounds has density zero.
type Parametric struct {
	model.Base
	dist   LogProber
	params []*model.Parameter
}

//NewParametric will put dist on every dimension of params.
func NewParametric(id string, dist LogProber, params ...*model.Parameter) *Parametric {
	p := &Parametric{dist: dist, params: params}
	p.Init(id, p)
	for _, par := range params {
		p.AddParameter(par)
	}
	return p
}

//LogLikelihood implements model.Likelihood.
func (p *Parametric) LogLikelihood() (float64, error) {
	total := 0.
	for _, par := range p.params {
		for i := 0; i < par.Dimension(); i++ {
			v := par.Value(i)
			if !par.InBounds(v) {
				return math.Inf(-1), nil
			}
			total += p.dist.LogProb(v)
		}
	}
	return total, nil
}

//MakeDirty implements model.Likelihood; nothing is cached.
func (p *Parametric) MakeDirty() {}

func (p *Parametric) HandleModelChanged(model.Event)                {}
func (p *Parametric) HandleParameterChanged(*model.Parameter, int) {}
func (p *Parametric) StoreState()                                   {}
func (p *Parametric) RestoreState()                                 {}
func (p *Parametric) AcceptState()                                  {}
