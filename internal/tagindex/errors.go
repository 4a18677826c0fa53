package tagindex

import "errors"

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("tagindex: invalid configuration")

// ErrTagNotFound indicates a lookup against a tag absent from the global table.
var ErrTagNotFound = errors.New("tagindex: tag not found")

// ErrCooccurrenceInconsistent names drift between the cooccurrence DB and
// the file registry. The startup consistency check does not return it: it
// logs the drift and resyncs instead of failing the manager.
var ErrCooccurrenceInconsistent = errors.New("tagindex: cooccurrence DB inconsistent with file registry")

// ErrAlreadyRebuilding is returned by RunPendingVectorization when a batch
// is already in flight; the caller's changes are captured by the next batch
// instead of being lost.
var ErrAlreadyRebuilding = errors.New("tagindex: rebuild already in progress")

// ErrShutdown indicates the manager has already been stopped.
var ErrShutdown = errors.New("tagindex: manager shut down")
