package tagindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTagGroupPairWeights(t *testing.T) {
	db := NewCooccurrenceDB()
	db.RecordTagGroup("A/a.md", "A", []string{"cat", "dog"})
	db.RecordTagGroup("A/b.md", "A", []string{"cat"})

	assert.Equal(t, 1, db.Weight("cat", "dog"))
	assert.Equal(t, 1, db.Weight("dog", "cat"), "pair key order must not matter")
	assert.Equal(t, 0, db.Weight("cat", "bird"))
}

func TestRecordTagGroupDelta(t *testing.T) {
	db := NewCooccurrenceDB()
	db.RecordTagGroup("A/a.md", "A", []string{"cat", "dog", "mouse"})
	require.Equal(t, 1, db.Weight("cat", "dog"))
	require.Equal(t, 1, db.Weight("dog", "mouse"))

	// Replacing the group recomputes only the delta pairs.
	db.RecordTagGroup("A/a.md", "A", []string{"cat", "mouse"})
	assert.Equal(t, 0, db.Weight("cat", "dog"))
	assert.Equal(t, 0, db.Weight("dog", "mouse"))
	assert.Equal(t, 1, db.Weight("cat", "mouse"))
}

func TestRemoveTagGroup(t *testing.T) {
	db := NewCooccurrenceDB()
	db.RecordTagGroup("A/a.md", "A", []string{"cat", "dog"})
	db.RecordTagGroup("A/b.md", "A", []string{"cat", "dog"})
	require.Equal(t, 2, db.Weight("cat", "dog"))

	db.RemoveTagGroup("A/a.md")
	assert.Equal(t, 1, db.Weight("cat", "dog"))

	db.RemoveTagGroup("A/b.md")
	assert.Equal(t, 0, db.Weight("cat", "dog"))
	assert.Equal(t, 0, db.FileCount())
}

func TestRow(t *testing.T) {
	db := NewCooccurrenceDB()
	db.RecordTagGroup("a", "A", []string{"cat", "mouse"})
	db.RecordTagGroup("b", "A", []string{"cat", "mouse"})
	db.RecordTagGroup("c", "A", []string{"cat", "bird"})

	row := db.Row("cat")
	assert.Equal(t, map[string]int{"mouse": 2, "bird": 1}, row)
}

func TestStats(t *testing.T) {
	db := NewCooccurrenceDB()
	db.RecordTagGroup("a", "A", []string{"cat", "dog"})
	db.RecordTagGroup("b", "B", []string{"cat", "bird"})

	stats := db.Stats()
	assert.Equal(t, 2, stats.Groups)
	assert.Equal(t, 2, stats.Pairs)
	assert.Equal(t, 3, stats.UniqueTags)
}

func TestNeedsResync(t *testing.T) {
	db := NewCooccurrenceDB()
	assert.False(t, db.NeedsResync(0))

	db.RecordTagGroup("a", "A", []string{"cat", "dog"})
	assert.False(t, db.NeedsResync(1))

	// Registry and files drifting more than 10% apart is inconsistent.
	assert.True(t, db.NeedsResync(100))

	// Files present but no pairs at all is inconsistent.
	solo := NewCooccurrenceDB()
	solo.RecordTagGroup("b", "B", []string{"solo"})
	assert.True(t, solo.NeedsResync(1))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := NewCooccurrenceDB()
	db.RecordTagGroup("A/a.md", "A", []string{"cat", "dog"})
	db.RecordTagGroup("A/b.md", "A", []string{"cat", "mouse"})

	path := filepath.Join(t.TempDir(), "TagCooccurrence.db")
	require.NoError(t, db.Save(path))

	loaded, err := LoadCooccurrenceDB(path)
	require.NoError(t, err)
	assert.Equal(t, db.Stats(), loaded.Stats())
	assert.Equal(t, 1, loaded.Weight("cat", "dog"))
	assert.Equal(t, 1, loaded.Weight("cat", "mouse"))
}

func TestExportToFile(t *testing.T) {
	db := NewCooccurrenceDB()
	db.RecordTagGroup("a", "A", []string{"cat", "dog"})

	path := filepath.Join(t.TempDir(), "TagCooccurrence_matrix.json")
	require.NoError(t, db.ExportToFile(path))
	assert.FileExists(t, path)
}
