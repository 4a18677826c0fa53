// Package semgroup implements the SemanticGroupManager: a configured
// mapping from keyword groups to weighted query-vector enhancements. A
// group activates when its keywords appear in the query text; activated
// groups' precomputed vectors are merged (weighted by activation
// strength) into an enhancement vector that the query planner blends into
// the final query vector for the Group modifier.
package semgroup
