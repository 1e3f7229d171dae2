package merkle

import "github.com/pkg/errors"

var (
	// ErrUnbalancedTree is returned when the leaf count is not a power of two.
	// Callers that want padding must add explicit filler leaves upstream.
	ErrUnbalancedTree = errors.New("unbalanced merkle tree")

	// ErrIndexOutOfRange is returned when a proof is requested for a leaf that does not exist
	ErrIndexOutOfRange = errors.New("leaf index out of range")

	// ErrTooManyLeaves is returned when the input exceeds the configured maximum
	ErrTooManyLeaves = errors.New("too many merkle leaves")
)
