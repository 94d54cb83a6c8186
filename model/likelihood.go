package model

import (
	"fmt"
	"math"
)

//Column is one named value written by trace loggers.
type Column struct {
	Label string
	Value func() float64
}

//Loggable is anything that contributes columns to a trace log.
type Loggable interface {
	Columns() []Column
}

//Likelihood is a model that contributes a log density to the posterior.
type Likelihood interface {
	Model
	// LogLikelihood returns the (possibly cached) log density. A non-nil
	// error is fatal to the run.
	LogLikelihood() (float64, error)
	// MakeDirty discards every cached intermediate so the next call
	// recomputes from scratch.
	MakeDirty()
}

//Compound is the sum of several likelihoods, e.g. the prior or the
//posterior of an analysis.
type Compound struct {
	Base
	parts []Likelihood
}

//NewCompound returns a compound likelihood over parts.
func NewCompound(id string, parts ...Likelihood) *Compound {
	c := &Compound{}
	c.Init(id, c)
	for _, l := range parts {
		c.Add(l)
	}
	return c
}

//Add appends a likelihood to the sum.
func (c *Compound) Add(l Likelihood) {
	c.parts = append(c.parts, l)
	c.AddModel(l)
}

//Parts returns the summed likelihoods.
func (c *Compound) Parts() []Likelihood {
	return c.parts
}

//LogLikelihood sums the parts. It stops at -Inf since nothing can bring
//the total back.
func (c *Compound) LogLikelihood() (float64, error) {
	total := 0.
	for _, l := range c.parts {
		v, err := l.LogLikelihood()
		if err != nil {
			return math.NaN(), fmt.Errorf("%s: %w", l.ID(), err)
		}
		if math.IsInf(v, -1) {
			return v, nil
		}
		total += v
	}
	return total, nil
}

//MakeDirty makes every part dirty.
func (c *Compound) MakeDirty() {
	for _, l := range c.parts {
		l.MakeDirty()
	}
}

//Columns logs each part under its own id.
func (c *Compound) Columns() []Column {
	cols := make([]Column, 0, len(c.parts))
	for _, l := range c.parts {
		l := l
		cols = append(cols, Column{Label: l.ID(), Value: func() float64 {
			v, err := l.LogLikelihood()
			if err != nil {
				return math.NaN()
			}
			return v
		}})
	}
	return cols
}

func (c *Compound) HandleModelChanged(Event)              {}
func (c *Compound) HandleParameterChanged(*Parameter, int) {}
func (c *Compound) StoreState()                           {}
func (c *Compound) RestoreState()                         {}
func (c *Compound) AcceptState()                          {}
