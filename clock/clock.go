// Package clock provides branch rate models.
package clock

import "github.com/tomopfuku/gobeast/model"

//BranchRates gives the substitution rate along the branch above a node.
type BranchRates interface {
	model.Model
	BranchRate(node int) float64
}

//Strict is a single rate shared by every branch.
type Strict struct {
	model.Base
	rate *model.Parameter
}

//NewStrict will build a strict clock around rate.
func NewStrict(id string, rate *model.Parameter) *Strict {
	c := &Strict{rate: rate}
	c.Init(id, c)
	rate.SetBounds(0, rate.Upper())
	c.AddParameter(rate)
	return c
}

//Rate returns the clock rate parameter.
func (c *Strict) Rate() *model.Parameter {
	return c.rate
}

//BranchRate implements BranchRates.
func (c *Strict) BranchRate(int) float64 {
	return c.rate.Value(0)
}

func (c *Strict) HandleModelChanged(model.Event)                {}
func (c *Strict) HandleParameterChanged(*model.Parameter, int) {}
func (c *Strict) StoreState()                                   {}
func (c *Strict) RestoreState()                                 {}
func (c *Strict) AcceptState()                                  {}
