package prior

import (
	"math"
	"sort"

	"github.com/tomopfuku/gobeast/model"
	"github.com/tomopfuku/gobeast/tree"
)

//Coalescent is the constant population size coalescent density of a
//tree. Leaves may be sampled at different heights.
type Coalescent struct {
	model.Base
	tree    *tree.Tree
	popSize *model.Parameter

	value, storedValue float64
	known, storedKnown bool
}

//NewCoalescent will build the prior on t with population size popSize.
func NewCoalescent(id string, t *tree.Tree, popSize *model.Parameter) *Coalescent {
	c := &Coalescent{tree: t, popSize: popSize.SetBounds(0, popSize.Upper())}
	c.Init(id, c)
	c.AddModel(t)
	c.AddParameter(popSize)
	return c
}

type coalescentEvent struct {
	height float64
	delta  int
}

//LogLikelihood implements model.Likelihood.
func (c *Coalescent) LogLikelihood() (float64, error) {
	if c.known {
		return c.value, nil
	}
	c.value = c.calculate()
	c.known = true
	return c.value, nil
}

func (c *Coalescent) calculate() float64 {
	n := c.popSize.Value(0)
	if n <= 0 {
		return math.Inf(-1)
	}
	events := make([]coalescentEvent, 0, c.tree.NodeCount())
	for i := 0; i < c.tree.NodeCount(); i++ {
		if c.tree.IsExternal(i) {
			events = append(events, coalescentEvent{c.tree.NodeHeight(i), 1})
			continue
		}
		// a node with k children merges k lineages into one
		events = append(events, coalescentEvent{c.tree.NodeHeight(i), 1 - c.tree.ChildCount(i)})
	}
	sort.SliceStable(events, func(a, b int) bool {
		if events[a].height != events[b].height {
			return events[a].height < events[b].height
		}
		// samples before coalescences at equal heights
		return events[a].delta > events[b].delta
	})
	logL := 0.
	lineages := 0
	last := events[0].height
	for _, ev := range events {
		k := float64(lineages)
		logL -= k * (k - 1) / 2 / n * (ev.height - last)
		if ev.delta < 0 {
			for m := 0; m < -ev.delta; m++ {
				logL -= math.Log(n)
			}
		}
		lineages += ev.delta
		last = ev.height
	}
	return logL
}

//MakeDirty implements model.Likelihood.
func (c *Coalescent) MakeDirty() {
	c.known = false
}

func (c *Coalescent) HandleModelChanged(model.Event) {
	c.known = false
}

func (c *Coalescent) HandleParameterChanged(*model.Parameter, int) {
	c.known = false
}

func (c *Coalescent) StoreState() {
	c.storedValue, c.storedKnown = c.value, c.known
}

func (c *Coalescent) RestoreState() {
	c.value, c.known = c.storedValue, c.storedKnown
}

func (c *Coalescent) AcceptState() {}
