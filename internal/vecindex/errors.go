package vecindex

import "errors"

// ErrCapacityExceeded is returned by Add when current_count == max_elements.
var ErrCapacityExceeded = errors.New("vecindex: capacity exceeded")

// ErrDimensionMismatch is returned when a vector's length doesn't match the index dimension.
var ErrDimensionMismatch = errors.New("vecindex: dimension mismatch")

// ErrLabelExists is returned when Add is called with a label already present.
var ErrLabelExists = errors.New("vecindex: label already present")

// ErrLabelNotFound is returned by lookups against an unknown label.
var ErrLabelNotFound = errors.New("vecindex: label not found")

// ErrIndexCorrupt indicates a checksum or dimension mismatch on load; the
// caller should treat the affected data as having no vector and queue it
// for re-vectorization rather than aborting.
var ErrIndexCorrupt = errors.New("vecindex: index corrupt")
