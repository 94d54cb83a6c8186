package likelihood

import "errors"

var (
	// ErrNumericalFailure indicates a NaN or +Inf log likelihood even after rescaling.
	ErrNumericalFailure = errors.New("log likelihood is not finite after rescaling")

	// ErrMissingTaxon indicates a tree leaf with no sequence in the alignment.
	ErrMissingTaxon = errors.New("taxon missing from alignment")

	// ErrStateCount indicates an alignment and substitution model with different state spaces.
	ErrStateCount = errors.New("alignment and substitution model state counts differ")

	// ErrTooFewTaxa indicates a tree with fewer than two leaves.
	ErrTooFewTaxa = errors.New("tree likelihood needs at least two taxa")

	// ErrBufferMismatch marks a tree whose node count no longer matches the
	// buffers sized at construction. It is raised as a panic.
	ErrBufferMismatch = errors.New("tree node count changed after likelihood construction")
)
