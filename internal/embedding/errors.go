package embedding

import "errors"

// ErrEmbeddingUnavailable indicates the embedding endpoint has no usable
// credentials or configuration; callers should not retry.
var ErrEmbeddingUnavailable = errors.New("embedding: service unavailable")

// ErrEmbeddingTransient indicates a retryable failure (HTTP 5xx, network
// error). Retried internally with backoff up to Config.MaxAttempts.
var ErrEmbeddingTransient = errors.New("embedding: transient failure")

// ErrEmbeddingFatal indicates a non-retryable failure (HTTP 4xx, malformed
// request). The current placeholder/caller should short-circuit.
var ErrEmbeddingFatal = errors.New("embedding: fatal failure")

// ErrInvalidConfig indicates invalid client configuration.
var ErrInvalidConfig = errors.New("embedding: invalid configuration")

// ErrEmptyInput indicates an empty or nil input batch.
var ErrEmptyInput = errors.New("embedding: empty input")

// ErrEmbeddingFailed is a generic wrapper used when no more specific
// sentinel applies (e.g. an empty successful response).
var ErrEmbeddingFailed = errors.New("embedding: request failed")
