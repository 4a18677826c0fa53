// Package vecindex implements a typed, persisted flat L2 nearest-neighbor
// index with an injective label<->key bijection.
//
// Search is exact: brute-force L2 distance over a flat vector slice, the
// same tradeoff embedded vector stores like chromem-go make ("always uses
// exact search"). At the tag and chunk counts this engine handles, exact
// search stays well under the latency of a single embedding call.
package vecindex
