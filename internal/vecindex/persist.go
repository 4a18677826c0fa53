package vecindex

import (
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const snapshotVersion = "1"

// indexEnvelope is the on-disk gob payload for Save/Load: the vector data
// plus a checksum of its encoded form, so Load can detect corruption
// without trusting the file's own internal structure.
type indexEnvelope struct {
	Version   string
	Dimension int
	Vectors   map[int64][]float32
	Checksum  [32]byte
}

// Save atomically persists the index to path: encode to a temp file in the
// same directory, fsync, then rename over the destination, so a process
// kill mid-write never leaves a half-written index file visible at the
// canonical path.
func (idx *Index) Save(path string) error {
	vectors := idx.Snapshot()

	payload, err := encodeVectors(vectors)
	if err != nil {
		return fmt.Errorf("vecindex: encoding vectors: %w", err)
	}
	checksum := sha256.Sum256(payload)

	env := indexEnvelope{
		Version:   snapshotVersion,
		Dimension: idx.dim,
		Vectors:   vectors,
		Checksum:  checksum,
	}

	return writeAtomic(path, env)
}

// Load reads a previously Saved index. A checksum or dimension mismatch
// returns ErrIndexCorrupt; callers should treat the index as empty and
// schedule re-vectorization rather than aborting (tolerant partial load).
func Load(path string, dim int) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var env indexEnvelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decoding: %v", ErrIndexCorrupt, err)
	}

	payload, err := encodeVectors(env.Vectors)
	if err != nil {
		return nil, fmt.Errorf("vecindex: re-encoding vectors for checksum: %w", err)
	}
	if sha256.Sum256(payload) != env.Checksum {
		return nil, ErrIndexCorrupt
	}
	if env.Dimension != dim {
		return nil, fmt.Errorf("%w: on-disk dimension %d != expected %d", ErrIndexCorrupt, env.Dimension, dim)
	}

	idx := New(dim, len(env.Vectors))
	idx.Restore(env.Vectors)
	return idx, nil
}

// SaveLabelMap atomically persists a LabelMap snapshot.
func SaveLabelMap(path string, m *LabelMap) error {
	return writeAtomic(path, m.Snapshot())
}

// LoadLabelMap reads a previously-saved LabelMap.
func LoadLabelMap(path string) (*LabelMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var snap labelMapSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decoding label map: %v", ErrIndexCorrupt, err)
	}

	m := NewLabelMap()
	m.restore(snap)
	return m, nil
}

// vectorEntry is a (label, vector) pair used to give the checksummed
// encoding a deterministic byte order; Go map iteration order is randomized,
// so encoding a map directly would make the checksum unreproducible across
// Save and the re-check performed by Load.
type vectorEntry struct {
	Label  int64
	Vector []float32
}

// encodeVectors produces a deterministic gob encoding of a vector map for
// checksumming: labels are sorted before encoding so the same logical
// contents always produce the same bytes.
func encodeVectors(vectors map[int64][]float32) ([]byte, error) {
	labels := make([]int64, 0, len(vectors))
	for label := range vectors {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	entries := make([]vectorEntry, len(labels))
	for i, label := range labels {
		entries[i] = vectorEntry{Label: label, Vector: vectors[label]}
	}

	var buf countingBuffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// countingBuffer is a minimal io.Writer sink; avoids pulling in bytes.Buffer
// just for Write.
type countingBuffer struct {
	data []byte
}

func (b *countingBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// writeAtomic gob-encodes v to a temp file beside path, fsyncs, and renames
// it into place. The temp file is cleaned up on any failure.
func writeAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("vecindex: creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("vecindex: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		return fmt.Errorf("vecindex: encoding: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vecindex: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vecindex: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("vecindex: renaming into place: %w", err)
	}
	cleanup = false
	return nil
}
