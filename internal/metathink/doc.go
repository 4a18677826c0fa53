// Package metathink implements the MetaThinkingEngine: given a named chain
// of clusters and a k-sequence, it runs a recursive vector-refined
// retrieval: each stage searches its cluster with the current query
// vector, blends the stage's mean result vector into the next stage's
// query, and degrades gracefully (rather than failing the whole chain)
// when a stage returns no results. Auto mode picks the chain whose
// pre-embedded theme vector best matches the query.
//
// Each stage transition is a plain function call over an owned Report
// value rather than a generic state-machine framework.
package metathink
