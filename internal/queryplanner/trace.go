package queryplanner

import (
	"time"

	"github.com/google/uuid"

	"github.com/ragdiary/diaryengine/internal/diarystore"
)

// TraceResult is one sanitized hit inside a TraceEvent.
type TraceResult struct {
	Text        string   `json:"text"`
	Score       float32  `json:"score"`
	Source      []string `json:"source"`
	MatchedTags []string `json:"matchedTags,omitempty"`
	BoostFactor float32  `json:"boostFactor,omitempty"`
}

// TraceEvent is the structured event emitted for every retrieval.
type TraceEvent struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	DBName     string        `json:"dbName"`
	Query      string        `json:"query"`
	K          int           `json:"k"`
	Flags      []string      `json:"flags,omitempty"`
	TimeRanges [][2]string   `json:"timeRanges,omitempty"`
	Results    []TraceResult `json:"results"`
	TagStats   map[string]int `json:"tagStats,omitempty"`
	CacheHit   bool          `json:"cacheHit"`
}

// TraceEmitter receives retrieval trace events. A nil emitter disables
// tracing.
type TraceEmitter func(TraceEvent)

// newTraceEvent builds the common part of a retrieval event.
func newTraceEvent(dbName, query string, k int) TraceEvent {
	return TraceEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		DBName:    dbName,
		Query:     query,
		K:         k,
	}
}

// sanitizeResults converts store hits into the trace shape, collecting
// aggregated tag stats for TagMemo-active queries.
func sanitizeResults(results []diarystore.SearchResult, collectTagStats bool) ([]TraceResult, map[string]int) {
	out := make([]TraceResult, len(results))
	var stats map[string]int
	if collectTagStats {
		stats = make(map[string]int)
	}
	for i, r := range results {
		out[i] = TraceResult{
			Text:        r.Text,
			Score:       r.Score,
			Source:      r.Source,
			MatchedTags: r.MatchedTags,
			BoostFactor: r.BoostFactor,
		}
		if collectTagStats {
			for _, t := range r.MatchedTags {
				stats[t]++
			}
		}
	}
	return out, stats
}
