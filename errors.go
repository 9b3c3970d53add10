package metrictree

import "errors"

var (
	// ErrEmptyDataset is returned when a build is attempted on zero items.
	ErrEmptyDataset = errors.New("metrictree: empty dataset")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("metrictree: invalid config")

	// ErrDuplicateID is returned when two items share an ID.
	ErrDuplicateID = errors.New("metrictree: duplicate item id")

	// ErrTooFewItems is returned when a partition step receives no items
	// or no pivots.
	ErrTooFewItems = errors.New("metrictree: too few items to partition")

	// ErrIncompatibleRule is returned when the partition rule cannot work
	// with the configured pivot count.
	ErrIncompatibleRule = errors.New("metrictree: partition rule incompatible with pivot count")

	// ErrNodeNotFound is returned by a NodeStore for an unknown handle.
	ErrNodeNotFound = errors.New("metrictree: node not found")

	// ErrInvariant is returned by Verify when the tree violates a structural
	// invariant.
	ErrInvariant = errors.New("metrictree: invariant violated")
)
