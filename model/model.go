// Package model is the dependency graph that ties parameters, trees and
// likelihood components together.
//
// A model owns parameters and sub-models and listens to all of them. A
// change anywhere below a model is handled by that model and re-fired to
// its own listeners, synchronously and in registration order, so a
// likelihood at the top of the graph hears about every edit underneath
// it. Every model can snapshot the state it needs to undo a proposal
// (StoreModelState), roll back to it (RestoreModelState) or commit it
// (AcceptModelState).
package model

//Event is a change notification fired by a model or a parameter.
type Event struct {
	// Source is the Model or *Parameter that fired the event.
	Source any
	// Index is the parameter dimension that changed, or -1.
	Index int
	// Detail is a model specific payload (tree.ChangeSet for trees, the
	// forwarded Event when a model re-fires a sub-model change).
	Detail any
}

//Listener receives change events from models.
type Listener interface {
	ModelChanged(ev Event)
}

//ParameterListener receives change events from parameters.
type ParameterListener interface {
	ParameterChanged(p *Parameter, index int)
}

//Model is the capability set shared by every node of the graph.
type Model interface {
	ID() string
	Models() []Model
	Parameters() []*Parameter
	AddListener(l Listener)
	StoreModelState()
	RestoreModelState()
	AcceptModelState()
}

//Handler is what a concrete model supplies to Base: its reaction to
//changes below it and the store/restore/accept of its own state.
type Handler interface {
	HandleModelChanged(ev Event)
	HandleParameterChanged(p *Parameter, index int)
	StoreState()
	RestoreState()
	AcceptState()
}

//Component is a concrete model embedding Base.
type Component interface {
	Model
	Handler
}

//Base carries the graph bookkeeping for a model. Concrete models embed
//it and call Init from their constructor.
type Base struct {
	id        string
	self      Component
	models    []Model
	params    []*Parameter
	listeners []Listener
	stored    bool
}

//Init wires the base to the model that embeds it.
func (b *Base) Init(id string, self Component) {
	b.id = id
	b.self = self
}

//ID returns the model identifier.
func (b *Base) ID() string {
	return b.id
}

//Models returns the registered sub-models.
func (b *Base) Models() []Model {
	return b.models
}

//Parameters returns the registered parameters.
func (b *Base) Parameters() []*Parameter {
	return b.params
}

//AddModel registers a sub-model and subscribes to its changes.
func (b *Base) AddModel(m Model) {
	for _, have := range b.models {
		if have == m {
			return
		}
	}
	b.models = append(b.models, m)
	m.AddListener(b)
}

//AddParameter registers a parameter and subscribes to its changes.
func (b *Base) AddParameter(p *Parameter) {
	for _, have := range b.params {
		if have == p {
			return
		}
	}
	b.params = append(b.params, p)
	p.AddListener(b)
}

//AddListener subscribes l to changes of this model.
func (b *Base) AddListener(l Listener) {
	b.listeners = append(b.listeners, l)
}

//FireModelChanged notifies listeners that this model changed.
func (b *Base) FireModelChanged(detail any, index int) {
	ev := Event{Source: b.self, Index: index, Detail: detail}
	for _, l := range b.listeners {
		l.ModelChanged(ev)
	}
}

//ModelChanged handles a change in a sub-model and re-fires it upward.
func (b *Base) ModelChanged(ev Event) {
	b.self.HandleModelChanged(ev)
	b.FireModelChanged(ev, ev.Index)
}

//ParameterChanged handles a change in an owned parameter and re-fires it
//upward tagged with the parameter index.
func (b *Base) ParameterChanged(p *Parameter, index int) {
	b.self.HandleParameterChanged(p, index)
	b.FireModelChanged(Event{Source: p, Index: index}, index)
}

//StoreModelState snapshots this model, its sub-models and parameters.
//A model reachable along several paths is stored once.
func (b *Base) StoreModelState() {
	if b.stored {
		return
	}
	for _, m := range b.models {
		m.StoreModelState()
	}
	for _, p := range b.params {
		p.Store()
	}
	b.self.StoreState()
	b.stored = true
}

//RestoreModelState rolls back to the last stored snapshot. No events
//are fired: everything downstream is restored in the same pass.
func (b *Base) RestoreModelState() {
	if !b.stored {
		return
	}
	for _, m := range b.models {
		m.RestoreModelState()
	}
	for _, p := range b.params {
		p.Restore()
	}
	b.self.RestoreState()
	b.stored = false
}

//AcceptModelState commits the current state and discards the snapshot.
func (b *Base) AcceptModelState() {
	if !b.stored {
		return
	}
	for _, m := range b.models {
		m.AcceptModelState()
	}
	for _, p := range b.params {
		p.Accept()
	}
	b.self.AcceptState()
	b.stored = false
}

//Walk visits m and every model below it once, parents before children.
func Walk(m Model, visit func(Model)) {
	seen := make(map[Model]bool)
	var walk func(Model)
	walk = func(cur Model) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		visit(cur)
		for _, sub := range cur.Models() {
			walk(sub)
		}
	}
	walk(m)
}

//AllParameters returns every parameter reachable from m, without
//duplicates, in walk order.
func AllParameters(m Model) []*Parameter {
	seen := make(map[*Parameter]bool)
	var out []*Parameter
	Walk(m, func(cur Model) {
		for _, p := range cur.Parameters() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	})
	return out
}
