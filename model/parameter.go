package model

import (
	"fmt"
	"math"
	"strconv"
)

//Parameter is a vector of real values that models depend on.
type Parameter struct {
	id        string
	values    []float64
	stored    []float64
	lower     float64
	upper     float64
	hasStore  bool
	listeners []ParameterListener
}

//NewParameter returns an unbounded parameter holding values.
func NewParameter(id string, values ...float64) *Parameter {
	p := &Parameter{
		id:     id,
		values: append([]float64(nil), values...),
		stored: make([]float64, len(values)),
		lower:  math.Inf(-1),
		upper:  math.Inf(1),
	}
	return p
}

//ID returns the parameter identifier.
func (p *Parameter) ID() string {
	return p.id
}

//Dimension returns the number of values.
func (p *Parameter) Dimension() int {
	return len(p.values)
}

//Value returns dimension i.
func (p *Parameter) Value(i int) float64 {
	return p.values[i]
}

//Values returns a copy of all values.
func (p *Parameter) Values() []float64 {
	return append([]float64(nil), p.values...)
}

//SetBounds constrains every dimension to [lower, upper].
func (p *Parameter) SetBounds(lower, upper float64) *Parameter {
	if lower > upper {
		panic(fmt.Sprintf("parameter %s: lower bound %g above upper bound %g", p.id, lower, upper))
	}
	p.lower = lower
	p.upper = upper
	return p
}

//Lower returns the lower bound.
func (p *Parameter) Lower() float64 {
	return p.lower
}

//Upper returns the upper bound.
func (p *Parameter) Upper() float64 {
	return p.upper
}

//InBounds reports whether v is inside the parameter bounds.
func (p *Parameter) InBounds(v float64) bool {
	return v >= p.lower && v <= p.upper
}

//AddListener subscribes l to value changes.
func (p *Parameter) AddListener(l ParameterListener) {
	p.listeners = append(p.listeners, l)
}

//SetValue sets dimension i and fires a change tagged with i.
func (p *Parameter) SetValue(i int, v float64) {
	p.values[i] = v
	p.fire(i)
}

//SetValueQuietly sets dimension i without firing; callers batching
//several edits fire once with FireChanged.
func (p *Parameter) SetValueQuietly(i int, v float64) {
	p.values[i] = v
}

//SetValues replaces all values and fires a single change tagged -1.
func (p *Parameter) SetValues(vs []float64) {
	if len(vs) != len(p.values) {
		panic(fmt.Sprintf("parameter %s: dimension %d, got %d values", p.id, len(p.values), len(vs)))
	}
	copy(p.values, vs)
	p.fire(-1)
}

//FireChanged notifies listeners that dimension i changed (-1 for all).
func (p *Parameter) FireChanged(i int) {
	p.fire(i)
}

func (p *Parameter) fire(i int) {
	for _, l := range p.listeners {
		l.ParameterChanged(p, i)
	}
}

//Store snapshots the current values.
func (p *Parameter) Store() {
	copy(p.stored, p.values)
	p.hasStore = true
}

//Restore swaps the snapshot back in.
func (p *Parameter) Restore() {
	if !p.hasStore {
		return
	}
	p.values, p.stored = p.stored, p.values
	p.hasStore = false
}

//Accept discards the snapshot.
func (p *Parameter) Accept() {
	p.hasStore = false
}

//Columns implements Loggable.
func (p *Parameter) Columns() []Column {
	if len(p.values) == 1 {
		return []Column{{Label: p.id, Value: func() float64 { return p.values[0] }}}
	}
	cols := make([]Column, len(p.values))
	for i := range p.values {
		i := i
		cols[i] = Column{
			Label: p.id + "." + strconv.Itoa(i+1),
			Value: func() float64 { return p.values[i] },
		}
	}
	return cols
}

func (p *Parameter) String() string {
	return fmt.Sprintf("%s%v", p.id, p.values)
}
