package vecindex

import (
	"sort"
	"sync"
)

// Candidate is one k-NN search result.
type Candidate struct {
	Label    int64
	Distance float32
}

// Index is a thin, typed wrapper over a flat L2 nearest-neighbor structure.
// It maintains an injective label<->key bijection (see LabelMap) so that an
// index rebuild preserves semantics across restarts.
type Index struct {
	mu          sync.RWMutex
	dim         int
	maxElements int
	vectors     map[int64][]float32
}

// New creates an empty Index for vectors of the given dimension, capped at
// maxElements until Resize is called.
func New(dim, maxElements int) *Index {
	return &Index{
		dim:         dim,
		maxElements: maxElements,
		vectors:     make(map[int64][]float32, maxElements),
	}
}

// Dimension returns the configured vector dimension.
func (idx *Index) Dimension() int { return idx.dim }

// Len returns the current number of indexed vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Capacity returns the current maximum element count.
func (idx *Index) Capacity() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.maxElements
}

// Add inserts a vector under the given label. Fails with
// ErrCapacityExceeded when current_count == max_elements, and with
// ErrLabelExists if the label is already present (the caller should Resize
// or replace explicitly rather than silently overwrite).
func (idx *Index) Add(vector []float32, label int64) error {
	if len(vector) != idx.dim {
		return ErrDimensionMismatch
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.vectors[label]; exists {
		return ErrLabelExists
	}
	if len(idx.vectors) >= idx.maxElements {
		return ErrCapacityExceeded
	}

	cp := make([]float32, len(vector))
	copy(cp, vector)
	idx.vectors[label] = cp
	return nil
}

// Replace overwrites the vector stored at label, creating it if absent.
// Used by incremental re-vectorization where a label's embedding changes.
func (idx *Index) Replace(vector []float32, label int64) error {
	if len(vector) != idx.dim {
		return ErrDimensionMismatch
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cp := make([]float32, len(vector))
	copy(cp, vector)
	idx.vectors[label] = cp
	return nil
}

// Remove deletes a label's vector, if present.
func (idx *Index) Remove(label int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, label)
}

// Resize monotonically increases capacity, preserving existing points.
// A request to shrink below the current capacity is a no-op.
func (idx *Index) Resize(newCapacity int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if newCapacity > idx.maxElements {
		idx.maxElements = newCapacity
	}
}

// GrowIfNeeded resizes the index by growthFactor when projected occupancy
// reaches loadFactor of capacity, per the incremental-index-update policy:
// grown at 90% occupancy by a factor of 1.5.
func (idx *Index) GrowIfNeeded(projectedCount int, loadFactor, growthFactor float64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if float64(projectedCount) < float64(idx.maxElements)*loadFactor {
		return
	}
	newCap := int(float64(idx.maxElements) * growthFactor)
	if newCap <= idx.maxElements {
		newCap = idx.maxElements + 1
	}
	idx.maxElements = newCap
}

// SearchKNN returns up to k candidates ordered by ascending L2 distance,
// ties broken by label ascending.
func (idx *Index) SearchKNN(query []float32, k int) []Candidate {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.dim || k <= 0 {
		return nil
	}

	candidates := make([]Candidate, 0, len(idx.vectors))
	for label, vec := range idx.vectors {
		candidates = append(candidates, Candidate{Label: label, Distance: l2Distance(query, vec)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Label < candidates[j].Label
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}

// Snapshot returns a copy of all (label, vector) pairs, used by Save.
func (idx *Index) Snapshot() map[int64][]float32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[int64][]float32, len(idx.vectors))
	for label, vec := range idx.vectors {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		out[label] = cp
	}
	return out
}

// Restore replaces the index contents with the given (label, vector) pairs,
// used by Load. Capacity grows to fit if necessary.
func (idx *Index) Restore(vectors map[int64][]float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors = make(map[int64][]float32, len(vectors))
	for label, vec := range vectors {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		idx.vectors[label] = cp
	}
	if len(idx.vectors) > idx.maxElements {
		idx.maxElements = len(idx.vectors)
	}
}

func l2Distance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
