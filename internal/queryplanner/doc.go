// Package queryplanner is the top-level orchestrator of the RAG diary
// engine: given a chat-turn message stream whose system messages contain
// retrieval placeholders, it builds a query vector from the last user and
// assistant turns, dispatches each placeholder to the diary store, the
// meta-thinking engine, or the tag manager, and rewrites the placeholders
// into formatted retrieval results.
//
// The planner never returns a typed error from ProcessSystemMessages:
// failures are absorbed at the narrowest boundary that still allows a
// meaningful substitution: a failed placeholder becomes a fixed
// substitution string, a failed embedding empties every placeholder, and a
// panic replaces whatever remains unresolved.
package queryplanner
