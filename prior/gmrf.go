package prior

import (
	"math"

	"github.com/tomopfuku/gobeast/model"
)

//GMRF is a first-order random walk smoothing prior on a vector
//parameter: successive differences are independent normals with
//precision tau.
type GMRF struct {
	model.Base
	values    *model.Parameter
	precision *model.Parameter
}

//NewGMRF will smooth values with precision tau.
func NewGMRF(id string, values, tau *model.Parameter) *GMRF {
	g := &GMRF{values: values, precision: tau.SetBounds(0, tau.Upper())}
	g.Init(id, g)
	g.AddParameter(values)
	g.AddParameter(tau)
	return g
}

//Values returns the smoothed parameter.
func (g *GMRF) Values() *model.Parameter {
	return g.values
}

//Precision returns the precision parameter.
func (g *GMRF) Precision() *model.Parameter {
	return g.precision
}

//SumSquaredDifferences returns the sum of squared successive differences
//of the smoothed values.
func (g *GMRF) SumSquaredDifferences() float64 {
	ss := 0.
	for i := 1; i < g.values.Dimension(); i++ {
		d := g.values.Value(i) - g.values.Value(i-1)
		ss += d * d
	}
	return ss
}

//LogLikelihood implements model.Likelihood.
func (g *GMRF) LogLikelihood() (float64, error) {
	tau := g.precision.Value(0)
	if tau <= 0 {
		return math.Inf(-1), nil
	}
	m := float64(g.values.Dimension() - 1)
	return m/2*math.Log(tau) - m/2*math.Log(2*math.Pi) - tau/2*g.SumSquaredDifferences(), nil
}

//MakeDirty implements model.Likelihood; nothing is cached.
func (g *GMRF) MakeDirty() {}

func (g *GMRF) HandleModelChanged(model.Event)                {}
func (g *GMRF) HandleParameterChanged(*model.Parameter, int) {}
func (g *GMRF) StoreState()                                   {}
func (g *GMRF) RestoreState()                                 {}
func (g *GMRF) AcceptState()                                  {}
