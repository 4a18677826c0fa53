package diarystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ragdiary/diaryengine/internal/vecindex"
)

// perDiaryIndex holds one diary's ANN index, chunk table, and derived
// vectors. Every label present in ann has a corresponding entry in chunks;
// this invariant is maintained by upsert/delete below.
type perDiaryIndex struct {
	mu sync.RWMutex

	name string

	ann    *vecindex.Index
	labels *vecindex.LabelMap
	chunks map[int64]Chunk

	nameVector          []float32
	enhancedTopicVector []float32
	similarityThreshold float64
}

func newPerDiaryIndex(name string, dim, capacity int) *perDiaryIndex {
	return &perDiaryIndex{
		name:                name,
		ann:                 vecindex.New(dim, capacity),
		labels:              vecindex.NewLabelMap(),
		chunks:              make(map[int64]Chunk),
		similarityThreshold: 0.2,
	}
}

func (d *perDiaryIndex) paths(root string) (indexPath, labelPath, chunkPath string) {
	dir := filepath.Join(root, d.name)
	return filepath.Join(dir, d.name+".bin"),
		filepath.Join(dir, "label_map.bin"),
		filepath.Join(dir, "chunks.bin")
}

// upsert inserts or replaces a chunk's vector and metadata.
func (d *perDiaryIndex) upsert(cfg *Config, chunk Chunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	label := d.labels.Allocate(chunk.ID)
	d.ann.GrowIfNeeded(d.ann.Len()+1, cfg.GrowthLoadFactor, cfg.GrowthFactor)

	if _, exists := d.chunks[label]; exists {
		if err := d.ann.Replace(chunk.Embedding, label); err != nil {
			return fmt.Errorf("diarystore: replacing vector: %w", err)
		}
	} else if err := d.ann.Add(chunk.Embedding, label); err != nil {
		return fmt.Errorf("diarystore: adding vector: %w", err)
	}
	d.chunks[label] = chunk
	return nil
}

// delete removes a chunk by id. Returns ErrChunkNotFound if absent.
func (d *perDiaryIndex) delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	label, ok := d.labels.LabelFor(id)
	if !ok {
		return ErrChunkNotFound
	}
	d.ann.Remove(label)
	delete(d.chunks, label)
	d.labels.Remove(id)
	return nil
}

func (d *perDiaryIndex) chunkByText(text string) ([]float32, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.chunks {
		if c.Text == text {
			return c.Embedding, true
		}
	}
	return nil, false
}

// searchRaw runs the vecindex k-NN search and resolves candidates back to
// their chunks. Results are not yet tag-boosted or filtered.
func (d *perDiaryIndex) searchRaw(query []float32, k int) []struct {
	chunk    Chunk
	distance float32
} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	candidates := d.ann.SearchKNN(query, k)
	out := make([]struct {
		chunk    Chunk
		distance float32
	}, 0, len(candidates))
	for _, c := range candidates {
		chunk, ok := d.chunks[c.Label]
		if !ok {
			continue
		}
		out = append(out, struct {
			chunk    Chunk
			distance float32
		}{chunk: chunk, distance: c.Distance})
	}
	return out
}

// chunksInRanges returns every chunk whose timestamp falls within any of
// the given half-open [start,end) ranges, used for the Time modifier union.
func (d *perDiaryIndex) chunksInRanges(ranges []TimeRange) []Chunk {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Chunk
	for _, c := range d.chunks {
		if c.Timestamp == nil {
			continue
		}
		ts := c.Timestamp.Unix()
		for _, r := range ranges {
			if ts >= r.Start && ts < r.End {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// save persists the index, label map, and chunk table under root.
func (d *perDiaryIndex) save(root string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	indexPath, labelPath, chunkPath := d.paths(root)
	if err := os.MkdirAll(filepath.Dir(indexPath), 0700); err != nil {
		return fmt.Errorf("diarystore: creating diary directory: %w", err)
	}
	if err := d.ann.Save(indexPath); err != nil {
		return fmt.Errorf("diarystore: saving index: %w", err)
	}
	if err := vecindex.SaveLabelMap(labelPath, d.labels); err != nil {
		return fmt.Errorf("diarystore: saving label map: %w", err)
	}
	if err := saveChunkTable(chunkPath, d.chunks); err != nil {
		return fmt.Errorf("diarystore: saving chunk table: %w", err)
	}
	return nil
}

// loadPerDiaryIndex performs a tolerant load: a missing or corrupt shard
// degrades to an empty index rather than failing the whole diary, per the
// "partial index with warning" contract.
func loadPerDiaryIndex(root, name string, dim, capacity int, logger partialLoadLogger) *perDiaryIndex {
	d := newPerDiaryIndex(name, dim, capacity)
	indexPath, labelPath, chunkPath := d.paths(root)

	if ann, err := vecindex.Load(indexPath, dim); err == nil {
		d.ann = ann
	} else if !os.IsNotExist(err) {
		logger.warnPartialLoad(name, "index", err)
	}

	if labels, err := vecindex.LoadLabelMap(labelPath); err == nil {
		d.labels = labels
	} else if !os.IsNotExist(err) {
		logger.warnPartialLoad(name, "label_map", err)
	}

	if chunks, err := loadChunkTable(chunkPath); err == nil {
		d.chunks = chunks
	} else if !os.IsNotExist(err) {
		logger.warnPartialLoad(name, "chunks", err)
	}

	return d
}

// partialLoadLogger decouples diary_index.go from the logging package so
// tests can assert on warnings without a real *zap.Logger.
type partialLoadLogger interface {
	warnPartialLoad(diary, shard string, err error)
}
