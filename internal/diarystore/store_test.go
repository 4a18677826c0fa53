package diarystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEmbedder struct{ vec []float32 }

func (f fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Root: t.TempDir(), Dimension: 4}, fixedEmbedder{vec: unit(4, 0)}, nil, nil)
	require.NoError(t, err)
	return s
}

func TestSearchOrdering(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "1", Text: "exact", Embedding: unit(4, 0)}))
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "2", Text: "orthogonal", Embedding: unit(4, 1)}))

	results, err := s.Search(context.Background(), "cats", unit(4, 0), 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, []string{"rag"}, results[0].Source)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchTruncatesToK(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.UpsertChunk("cats", Chunk{ID: string(rune('a' + i)), Text: string(rune('a' + i)), Embedding: unit(4, i)}))
	}
	results, err := s.Search(context.Background(), "cats", unit(4, 0), 2, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestTagBoostReordersAndReports(t *testing.T) {
	s := newTestStore(t)
	// Nearly-equal semantic scores; the tagged chunk should win after the
	// Jaccard boost.
	base := []float32{0.9992, 0.04, 0, 0}
	tagged := []float32{0.9990, 0.0447, 0, 0}
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "plain", Text: "plain", Embedding: base}))
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "tagged", Text: "tagged", Embedding: tagged, Tags: []string{"猫", "宠物"}}))

	w := 0.5
	results, err := s.Search(context.Background(), "cats", unit(4, 0), 2, SearchOptions{
		TagWeight: &w,
		QueryTags: []string{"猫"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "tagged", results[0].Text)
	assert.Equal(t, []string{"猫"}, results[0].MatchedTags)
	// jaccard({猫,宠物},{猫}) = 1/2, boost = 1 + 0.5*0.5.
	assert.InDelta(t, 1.25, float64(results[0].BoostFactor), 1e-6)
}

func TestTimeRangeUnion(t *testing.T) {
	s := newTestStore(t)
	inRange := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	outOfRange := time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "1", Text: "semantic", Embedding: unit(4, 0)}))
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "2", Text: "dated hit", Embedding: unit(4, 1), Timestamp: &inRange}))
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "3", Text: "dated miss", Embedding: unit(4, 2), Timestamp: &outOfRange}))

	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).Unix()
	end := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC).Unix()
	results, err := s.Search(context.Background(), "cats", unit(4, 0), 1, SearchOptions{
		TimeRanges: []TimeRange{{Start: start, End: end}},
	})
	require.NoError(t, err)

	// k=1 semantic hit plus the union'd time hit, deduplicated by text.
	texts := make(map[string][]string)
	for _, r := range results {
		texts[r.Text] = r.Source
	}
	assert.Contains(t, texts, "semantic")
	assert.Contains(t, texts, "dated hit")
	assert.NotContains(t, texts, "dated miss")
}

func TestTimeRangeDualSource(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "1", Text: "both", Embedding: unit(4, 0), Timestamp: &ts}))

	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).Unix()
	results, err := s.Search(context.Background(), "cats", unit(4, 0), 1, SearchOptions{
		TimeRanges: []TimeRange{{Start: start, End: start + 86400}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ElementsMatch(t, []string{"rag", "time"}, results[0].Source)
}

func TestUpsertReplaceAndDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "1", Text: "v1", Embedding: unit(4, 0)}))
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "1", Text: "v2", Embedding: unit(4, 0)}))

	results, err := s.Search(context.Background(), "cats", unit(4, 0), 5, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v2", results[0].Text)

	require.NoError(t, s.DeleteChunk("cats", "1"))
	assert.ErrorIs(t, s.DeleteChunk("cats", "1"), ErrChunkNotFound)

	results, err = s.Search(context.Background(), "cats", unit(4, 0), 5, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGetVectorByText(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "1", Text: "findme", Embedding: unit(4, 2)}))

	vec, ok := s.GetVectorByText("cats", "findme")
	require.True(t, ok)
	assert.Equal(t, unit(4, 2), vec)

	_, ok = s.GetVectorByText("cats", "absent")
	assert.False(t, ok)
}

func TestGetNameVectorCached(t *testing.T) {
	s := newTestStore(t)
	v1, err := s.GetNameVector(context.Background(), "cats")
	require.NoError(t, err)
	v2, err := s.GetNameVector(context.Background(), "cats")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root, Dimension: 4}, fixedEmbedder{vec: unit(4, 0)}, nil, nil)
	require.NoError(t, err)

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "1", Text: "persisted", Embedding: unit(4, 0), Tags: []string{"猫"}, Timestamp: &ts}))
	require.NoError(t, s.Save("cats"))

	s2, err := New(Config{Root: root, Dimension: 4}, fixedEmbedder{vec: unit(4, 0)}, nil, nil)
	require.NoError(t, err)
	results, err := s2.Search(context.Background(), "cats", unit(4, 0), 1, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Text)
	assert.Equal(t, []string{"猫"}, results[0].Tags)
	require.NotNil(t, results[0].Timestamp)
	assert.True(t, ts.Equal(*results[0].Timestamp))
}

func TestAllChunksOrdering(t *testing.T) {
	s := newTestStore(t)
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "b", Text: "later", Embedding: unit(4, 0), Timestamp: &late}))
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "a", Text: "earlier", Embedding: unit(4, 1), Timestamp: &early}))
	require.NoError(t, s.UpsertChunk("cats", Chunk{ID: "c", Text: "undated", Embedding: unit(4, 2)}))

	chunks := s.AllChunks("cats")
	require.Len(t, chunks, 3)
	assert.Equal(t, "earlier", chunks[0].Text)
	assert.Equal(t, "later", chunks[1].Text)
	assert.Equal(t, "undated", chunks[2].Text)
}
