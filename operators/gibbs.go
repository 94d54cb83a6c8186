package operators

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tomopfuku/gobeast/prior"
)

//GMRFPrecision draws the precision of a GMRF prior from its Gamma full
//conditional, given a Gamma(shape, rate) prior on the precision.
type GMRFPrecision struct {
	common
	gmrf        *prior.GMRF
	shape, rate float64
}

//NewGMRFPrecision will build the Gibbs move.
func NewGMRFPrecision(name string, weight float64, g *prior.GMRF, shape, rate float64) *GMRFPrecision {
	return &GMRFPrecision{common: common{name, weight}, gmrf: g, shape: shape, rate: rate}
}

//Gibbs implements Gibbs.
func (o *GMRFPrecision) Gibbs() {}

//Operate implements Operator.
func (o *GMRFPrecision) Operate(rng *rand.Rand) Result {
	n := o.gmrf.Values().Dimension()
	if n < 2 {
		return Failed("GMRF needs at least two values")
	}
	post := distuv.Gamma{
		Alpha: o.shape + float64(n-1)/2,
		Beta:  o.rate + o.gmrf.SumSquaredDifferences()/2,
		Src:   rng,
	}
	o.gmrf.Precision().SetValue(0, post.Rand())
	return Proposed(0)
}
