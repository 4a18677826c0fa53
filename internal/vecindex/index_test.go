package vecindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_CapacityExceeded(t *testing.T) {
	idx := New(2, 1)
	require.NoError(t, idx.Add([]float32{1, 2}, 1))
	err := idx.Add([]float32{3, 4}, 2)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestAdd_DimensionMismatch(t *testing.T) {
	idx := New(2, 10)
	err := idx.Add([]float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAdd_DuplicateLabel(t *testing.T) {
	idx := New(2, 10)
	require.NoError(t, idx.Add([]float32{1, 2}, 1))
	err := idx.Add([]float32{3, 4}, 1)
	assert.ErrorIs(t, err, ErrLabelExists)
}

func TestResize_PreservesExistingPoints(t *testing.T) {
	idx := New(2, 1)
	require.NoError(t, idx.Add([]float32{1, 2}, 1))
	idx.Resize(5)
	assert.Equal(t, 5, idx.Capacity())
	require.NoError(t, idx.Add([]float32{3, 4}, 2))
	assert.Equal(t, 2, idx.Len())
}

func TestResize_NeverShrinks(t *testing.T) {
	idx := New(2, 10)
	idx.Resize(5)
	assert.Equal(t, 10, idx.Capacity())
}

func TestSearchKNN_OrderedByAscendingDistance(t *testing.T) {
	idx := New(1, 10)
	require.NoError(t, idx.Add([]float32{5}, 1))
	require.NoError(t, idx.Add([]float32{0}, 2))
	require.NoError(t, idx.Add([]float32{2}, 3))

	results := idx.SearchKNN([]float32{0}, 3)
	require.Len(t, results, 3)
	assert.Equal(t, int64(2), results[0].Label)
	assert.Equal(t, int64(3), results[1].Label)
	assert.Equal(t, int64(1), results[2].Label)
}

func TestSearchKNN_TiesBrokenByLabelAscending(t *testing.T) {
	idx := New(1, 10)
	require.NoError(t, idx.Add([]float32{1}, 5))
	require.NoError(t, idx.Add([]float32{-1}, 2))

	results := idx.SearchKNN([]float32{0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), results[0].Label)
	assert.Equal(t, int64(5), results[1].Label)
}

func TestSearchKNN_TruncatesToAvailableCount(t *testing.T) {
	idx := New(1, 10)
	require.NoError(t, idx.Add([]float32{1}, 1))
	results := idx.SearchKNN([]float32{0}, 5)
	assert.Len(t, results, 1)
}

func TestGrowIfNeeded_GrowsAtLoadFactor(t *testing.T) {
	idx := New(1, 10)
	idx.GrowIfNeeded(9, 0.9, 1.5)
	assert.Equal(t, 15, idx.Capacity())
}

func TestGrowIfNeeded_NoOpBelowLoadFactor(t *testing.T) {
	idx := New(1, 10)
	idx.GrowIfNeeded(5, 0.9, 1.5)
	assert.Equal(t, 10, idx.Capacity())
}

func TestLabelMap_MonotonicAllocation(t *testing.T) {
	m := NewLabelMap()
	a := m.Allocate("cat")
	b := m.Allocate("dog")
	c := m.Allocate("cat")
	assert.Equal(t, int64(0), a)
	assert.Equal(t, int64(1), b)
	assert.Equal(t, a, c, "re-allocating an existing key returns the same label")
}

func TestLabelMap_RemoveFreesMapping(t *testing.T) {
	m := NewLabelMap()
	m.Allocate("cat")
	m.Remove("cat")
	_, ok := m.LabelFor("cat")
	assert.False(t, ok)
}
