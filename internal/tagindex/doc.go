// Package tagindex implements the global tag vector manager and tag
// cooccurrence graph: it scans diary files for trailing Tag: lines,
// maintains a single ANN index over unique tag strings shared across every
// diary, and tracks pairwise tag cooccurrence weights for tag-seed
// expansion queries.
//
// A Manager owns all mutable bookkeeping (the GlobalTag table, the file
// registry, the dirty-shard set, and the rebuild queues). Mutations are
// serialized by the Manager's updateMu mutex rather than by a command
// channel or a single owning goroutine: file-watch events and explicit API
// calls take that lock on whatever goroutine calls them.
package tagindex
