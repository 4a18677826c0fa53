package diarystore

import "errors"

var (
	// ErrDiaryNotFound is returned when an operation references a diary that
	// has never been opened or created.
	ErrDiaryNotFound = errors.New("diarystore: diary not found")
	// ErrChunkNotFound is returned by DeleteChunk when the id is absent.
	ErrChunkNotFound = errors.New("diarystore: chunk not found")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("diarystore: invalid config")
)
