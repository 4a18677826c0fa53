// Package embedding provides a batch text-to-vector client over HTTP,
// with the retry/backoff and typed error taxonomy required by callers
// that must distinguish transient failures from fatal ones.
package embedding
