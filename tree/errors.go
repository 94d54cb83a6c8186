package tree

import (
	"errors"
	"fmt"
)

// Contract errors. These mark caller bugs and reach callers as panics
// carrying a *ContractError.
var (
	// ErrNotEditing indicates a mutation outside BeginEdit/EndEdit.
	ErrNotEditing = errors.New("tree is not in an edit transaction")

	// ErrAlreadyEditing indicates a nested BeginEdit.
	ErrAlreadyEditing = errors.New("tree is already in an edit transaction")

	// ErrDuplicateChild indicates AddChild of a node that is already a child.
	ErrDuplicateChild = errors.New("node is already a child")

	// ErrMissingChild indicates RemoveChild of a node that is not a child.
	ErrMissingChild = errors.New("node is not a child")

	// ErrHasParent indicates attaching a node that is still attached elsewhere.
	ErrHasParent = errors.New("node already has a parent")
)

// Argument errors, returned as plain errors.
var (
	// ErrNotBinary indicates an operation that needs a strictly bifurcating tree.
	ErrNotBinary = errors.New("tree is not binary")

	// ErrInvalidHeight indicates a height outside the bounds set by a node and its parent.
	ErrInvalidHeight = errors.New("height outside node bounds")

	// ErrDuplicateTaxon indicates two leaves with the same taxon.
	ErrDuplicateTaxon = errors.New("duplicate taxon")

	// ErrEmptyTree indicates a hierarchy without leaves.
	ErrEmptyTree = errors.New("tree has no leaves")
)

//ContractError is the panic value for contract violations on a tree.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("tree: %s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

func violation(op string, err error) {
	panic(&ContractError{Op: op, Err: err})
}
