// Package diarystore implements the per-diary vector store: a sharded
// collection of vecindex.Index instances, one per diary, each paired with a
// chunk table and label map, supporting k-NN search with optional tag-boost
// scoring, temporal filtering, and a rerank hook.
package diarystore
