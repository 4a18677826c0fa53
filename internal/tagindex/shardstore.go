package tagindex

import (
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// stableHash is the deterministic hash used for shard assignment:
// shard_index = stableHash(tag) mod shard_count. FNV-1a keeps assignment
// stable across process restarts without a hashing dependency.
func stableHash(tag string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	return h.Sum64()
}

// shardCountFor returns ceil(vectorizedCount / shardSize), at least 1.
func shardCountFor(vectorizedCount, shardSize int) int {
	if vectorizedCount <= 0 {
		return 1
	}
	n := int(math.Ceil(float64(vectorizedCount) / float64(shardSize)))
	if n < 1 {
		n = 1
	}
	return n
}

// shardIndexFor returns the shard a tag belongs to for a given shard count.
func shardIndexFor(tag string, shardCount int) int {
	if shardCount <= 0 {
		shardCount = 1
	}
	return int(stableHash(tag) % uint64(shardCount))
}

// metaTagEntry is one tag's row in GlobalTags_meta.json.
type metaTagEntry struct {
	HasVector bool     `json:"hasVector"`
	Frequency int      `json:"frequency"`
	Diaries   []string `json:"diaries"`
}

// metaFile is the on-disk shape of GlobalTags_meta.json.
type metaFile struct {
	Version       string                  `json:"version"`
	Timestamp     int64                   `json:"timestamp"`
	TotalTags     int                     `json:"totalTags"`
	VectorizedTags int                    `json:"vectorizedTags"`
	Tags          map[string]metaTagEntry `json:"tags"`
}

// shardFile is the on-disk shape of one GlobalTags_vectors_<i>.json.
type shardFile struct {
	Version  string               `json:"version"`
	Checksum string               `json:"checksum"`
	Vectors  map[string][]float32 `json:"vectors"`
}

func metaPath(dir string) string       { return filepath.Join(dir, "GlobalTags_meta.json") }
func labelMapPath(dir string) string    { return filepath.Join(dir, "GlobalTags_label_map.json") }
func shardPath(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("GlobalTags_vectors_%d.json", i))
}
func registryPath(dir string) string     { return filepath.Join(dir, "FileRegistry.json") }
func cooccurrenceDBPath(dir string) string {
	return filepath.Join(dir, "TagCooccurrence.db")
}
func cooccurrenceMatrixPath(dir string) string {
	return filepath.Join(dir, "TagCooccurrence_matrix.json")
}

// saveMeta atomically writes GlobalTags_meta.json from the live tag table.
func saveMeta(dir string, tags map[string]*GlobalTag, timestamp int64) error {
	entries := make(map[string]metaTagEntry, len(tags))
	vectorized := 0
	for text, tag := range tags {
		if tag.HasVector() {
			vectorized++
		}
		entries[text] = metaTagEntry{
			HasVector: tag.HasVector(),
			Frequency: tag.Frequency,
			Diaries:   tag.DiaryList(),
		}
	}
	mf := metaFile{
		Version:        "1",
		Timestamp:      timestamp,
		TotalTags:      len(tags),
		VectorizedTags: vectorized,
		Tags:           entries,
	}
	return writeAtomicJSON(metaPath(dir), mf)
}

// loadMeta reads GlobalTags_meta.json, tolerating a missing file (returns
// an empty map, not an error, per the tolerant-load contract).
func loadMeta(dir string) (map[string]metaTagEntry, error) {
	var mf metaFile
	if err := readJSON(metaPath(dir), &mf); err != nil {
		if os.IsNotExist(err) {
			return map[string]metaTagEntry{}, nil
		}
		return nil, err
	}
	if mf.Tags == nil {
		mf.Tags = map[string]metaTagEntry{}
	}
	return mf.Tags, nil
}

// saveShards partitions vectorized tags into shardCountFor(len(vectors),
// shardSize) shards by stableHash, writing only the shards whose index is
// in dirty (all shards if dirty is nil), and computes shard_count once
// against this save's snapshot so stale indices from an older snapshot
// never leak into a later save.
func saveShards(dir string, vectors map[string][]float32, shardSize int, dirty map[int]bool) (shardCount int, err error) {
	shardCount = shardCountFor(len(vectors), shardSize)
	buckets := make([]map[string][]float32, shardCount)
	for i := range buckets {
		buckets[i] = make(map[string][]float32)
	}
	for tag, vec := range vectors {
		idx := shardIndexFor(tag, shardCount)
		buckets[idx][tag] = vec
	}

	for i, bucket := range buckets {
		if dirty != nil && !dirty[i] {
			continue
		}
		sf := shardFile{Version: "1", Vectors: bucket}
		sf.Checksum = checksumVectors(bucket)
		if err := writeAtomicJSON(shardPath(dir, i), sf); err != nil {
			return shardCount, fmt.Errorf("tagindex: saving shard %d: %w", i, err)
		}
	}
	return shardCount, nil
}

// loadShards reads every GlobalTags_vectors_<i>.json in [0,shardCount),
// tolerating missing or checksum-mismatched shards by treating them as
// empty (logged by the caller), per the "partial index" degrade contract.
func loadShards(dir string, shardCount int, onWarn func(shard int, err error)) map[string][]float32 {
	out := make(map[string][]float32)
	for i := 0; i < shardCount; i++ {
		var sf shardFile
		err := readJSON(shardPath(dir, i), &sf)
		if err != nil {
			if !os.IsNotExist(err) && onWarn != nil {
				onWarn(i, err)
			}
			continue
		}
		if checksumVectors(sf.Vectors) != sf.Checksum {
			if onWarn != nil {
				onWarn(i, fmt.Errorf("checksum mismatch"))
			}
			continue
		}
		for tag, vec := range sf.Vectors {
			out[tag] = vec
		}
	}
	return out
}

// checksumVectors produces a deterministic checksum of a shard's payload:
// tags are sorted before hashing so map iteration order never affects the
// result.
func checksumVectors(vectors map[string][]float32) string {
	tags := make([]string, 0, len(vectors))
	for t := range vectors {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	h := fnv.New64a()
	for _, t := range tags {
		_, _ = h.Write([]byte(t))
		vec := vectors[t]
		for _, f := range vec {
			_, _ = fmt.Fprintf(h, "%x", math.Float32bits(f))
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
