// Package operators holds the proposal moves of the sampler. An operator
// edits parameters or the tree in place and reports the log Hastings
// ratio of the move, or that no valid move existed.
package operators

import (
	"math"
	"math/rand/v2"
)

//Result is the outcome of one proposal: either Proposed with a log
//Hastings ratio, or Failed with a reason. A failed proposal is rejected
//without evaluating the posterior.
type Result struct {
	LogHR  float64
	Reason string
	failed bool
}

//Proposed returns a successful proposal.
func Proposed(logHR float64) Result {
	return Result{LogHR: logHR}
}

//Failed returns a proposal that found no valid move.
func Failed(reason string) Result {
	return Result{LogHR: math.Inf(-1), Reason: reason, failed: true}
}

//OK reports whether the proposal produced a new state.
func (r Result) OK() bool {
	return !r.failed
}

//Operator is one proposal move.
type Operator interface {
	Name() string
	Weight() float64
	Operate(rng *rand.Rand) Result
}

//Coercible operators expose a tuning value the chain adapts toward a
//target acceptance rate.
type Coercible interface {
	Operator
	Tuning() float64
	SetTuning(v float64)
	TargetAcceptance() float64
}

//Gibbs operators draw from an exact conditional; their proposals are
//always accepted.
type Gibbs interface {
	Operator
	Gibbs()
}

//DefaultTarget is the conventional acceptance target for scalar moves.
const DefaultTarget = 0.234

type common struct {
	name   string
	weight float64
}

func (c common) Name() string    { return c.name }
func (c common) Weight() float64 { return c.weight }

//multiplier is the log-uniform scale factor exp(eps(u-0.5)).
func multiplier(rng *rand.Rand, eps float64) float64 {
	return math.Exp((rng.Float64() - 0.5) * eps)
}
