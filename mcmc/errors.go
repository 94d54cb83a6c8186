package mcmc

import "errors"

var (
	// ErrInconsistent indicates that a full re-evaluation of the posterior
	// disagreed with the incrementally maintained value: some component
	// failed to mark itself dirty or to restore its state.
	ErrInconsistent = errors.New("incremental posterior does not match full evaluation")

	// ErrZeroStart indicates a starting state with zero posterior
	// probability.
	ErrZeroStart = errors.New("starting state has zero posterior probability")

	// ErrNotRunnable indicates Run on a chain that already finished or is
	// running.
	ErrNotRunnable = errors.New("chain cannot be run in its current state")

	// ErrTemperatures indicates a temperature ladder without exactly one
	// chain at temperature 1.
	ErrTemperatures = errors.New("temperature ladder must hold exactly one cold chain")
)
