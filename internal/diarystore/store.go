package diarystore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ragdiary/diaryengine/internal/reranker"
)

var storeTracer = otel.Tracer("diaryengine.diarystore")

// Embedder is the capability Store needs from an embedding client: turning a
// diary name or chunk text into a query vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchOptions configures one Search call.
type SearchOptions struct {
	// TagWeight, if non-nil, applies the Jaccard tag boost described on
	// applyTagBoost; nil means raw semantic score.
	TagWeight *float64
	// QueryTags is the tag set used for the Jaccard boost.
	QueryTags []string
	// TimeRanges, if non-empty, unions semantic results with every chunk
	// whose timestamp falls in any [start,end) range.
	TimeRanges []TimeRange
	// Rerank enables the rerank hook: fetch k*RerankMultiplier candidates
	// and rerank before truncating to k.
	Rerank bool
	// QueryText is the original query string, required by Rerank (the
	// rerank capability scores query-to-document relevance on text, not
	// on the query embedding).
	QueryText string
}

// TimeRange is a half-open day interval [Start, End).
type TimeRange struct {
	Start, End int64 // unix seconds
}

// Store owns one perDiaryIndex per diary, lazily created on first access.
type Store struct {
	mu      sync.RWMutex
	diaries map[string]*perDiaryIndex

	cfg      Config
	embedder Embedder
	reranker reranker.Reranker
	logger   *zap.Logger

	nameVectorCache sync.Map // diary name -> []float32
}

// New creates a Store. embedder is required; reranker may be nil, in which
// case SearchOptions.Rerank is ignored.
func New(cfg Config, embedder Embedder, rr reranker.Reranker, logger *zap.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("diarystore: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		diaries:  make(map[string]*perDiaryIndex),
		cfg:      cfg,
		embedder: embedder,
		reranker: rr,
		logger:   logger,
	}, nil
}

type zapPartialLoadLogger struct{ logger *zap.Logger }

func (l zapPartialLoadLogger) warnPartialLoad(diary, shard string, err error) {
	l.logger.Warn("diary shard failed to load, degrading to partial index",
		zap.String("diary", diary), zap.String("shard", shard), zap.Error(err))
}

// diary returns (creating and lazily loading if necessary) the index for
// name.
func (s *Store) diary(name string) *perDiaryIndex {
	s.mu.RLock()
	d, ok := s.diaries[name]
	s.mu.RUnlock()
	if ok {
		return d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.diaries[name]; ok {
		return d
	}
	d = loadPerDiaryIndex(s.cfg.Root, name, s.cfg.Dimension, s.cfg.InitialCapacity, zapPartialLoadLogger{s.logger})
	s.diaries[name] = d
	return d
}

// UpsertChunk inserts or replaces a chunk in diary. Admin path, out of the
// hot query path.
func (s *Store) UpsertChunk(diary string, chunk Chunk) error {
	return s.diary(diary).upsert(&s.cfg, chunk)
}

// DeleteChunk removes a chunk by id.
func (s *Store) DeleteChunk(diary, id string) error {
	return s.diary(diary).delete(id)
}

// Save persists diary's index, label map, and chunk table to disk.
func (s *Store) Save(diary string) error {
	return s.diary(diary).save(s.cfg.Root)
}

// GetVectorByText returns the embedding of a chunk whose text matches
// exactly, used by the meta-thinking engine's stage blending.
func (s *Store) GetVectorByText(diary, text string) ([]float32, bool) {
	return s.diary(diary).chunkByText(text)
}

// GetNameVector returns the cached embedding of diary's name, computing and
// caching it on first access.
func (s *Store) GetNameVector(ctx context.Context, diary string) ([]float32, error) {
	if v, ok := s.nameVectorCache.Load(diary); ok {
		return v.([]float32), nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, diary)
	if err != nil {
		return nil, fmt.Errorf("diarystore: embedding diary name: %w", err)
	}
	s.nameVectorCache.Store(diary, vec)

	d := s.diary(diary)
	d.mu.Lock()
	d.nameVector = vec
	d.mu.Unlock()
	return vec, nil
}

// SimilarityThreshold returns the gating threshold configured for diary,
// used by the query planner's sim < threshold(name) skip check.
func (s *Store) SimilarityThreshold(diary string) float64 {
	d := s.diary(diary)
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.similarityThreshold
}

// SetSimilarityThreshold overrides diary's gating threshold.
func (s *Store) SetSimilarityThreshold(diary string, threshold float64) {
	d := s.diary(diary)
	d.mu.Lock()
	d.similarityThreshold = threshold
	d.mu.Unlock()
}

// Search runs a k-NN query against diary with optional tag boost, temporal
// union, and rerank, returning exactly the top-k results by final score.
func (s *Store) Search(ctx context.Context, diary string, queryVec []float32, k int, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := storeTracer.Start(ctx, "Store.Search")
	defer span.End()
	span.SetAttributes(attribute.String("diary", diary), attribute.Int("k", k))

	if k <= 0 {
		return nil, nil
	}

	d := s.diary(diary)

	fetchK := k
	if opts.Rerank {
		fetchK = int(math.Ceil(float64(k) * s.cfg.RerankMultiplier))
	}

	raw := d.searchRaw(queryVec, fetchK)
	results := make([]SearchResult, 0, len(raw)+len(opts.TimeRanges))
	seenText := make(map[string]bool, len(raw))

	for _, r := range raw {
		score := l2ToScore(r.distance)
		res := SearchResult{
			Text:      r.chunk.Text,
			Score:     score,
			Source:    []string{"rag"},
			Tags:      r.chunk.Tags,
			Timestamp: r.chunk.Timestamp,
		}
		if opts.TagWeight != nil {
			applyTagBoost(&res, r.chunk.Tags, opts.QueryTags, *opts.TagWeight)
		}
		results = append(results, res)
		seenText[trimmedKey(r.chunk.Text)] = true
	}

	if opts.Rerank && s.reranker != nil {
		reranked, err := s.rerank(ctx, opts.QueryText, results, k)
		if err != nil {
			span.RecordError(err)
			s.logger.Warn("rerank failed, falling back to semantic order", zap.String("diary", diary), zap.Error(err))
		} else {
			results = reranked
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].hasRerank || results[j].hasRerank {
			return results[i].RerankScore > results[j].RerankScore
		}
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
		seenText = make(map[string]bool, len(results))
		for _, r := range results {
			seenText[trimmedKey(r.Text)] = true
		}
	}

	// Time-range hits union with the truncated semantic top-k rather than
	// competing with it: every dated chunk in range appears, deduplicated
	// against the semantic hits by trimmed text.
	if len(opts.TimeRanges) > 0 {
		for _, c := range d.chunksInRanges(opts.TimeRanges) {
			key := trimmedKey(c.Text)
			if seenText[key] {
				for i := range results {
					if trimmedKey(results[i].Text) == key {
						results[i].Source = appendUnique(results[i].Source, "time")
					}
				}
				continue
			}
			seenText[key] = true
			results = append(results, SearchResult{
				Text:      c.Text,
				Score:     0,
				Source:    []string{"time"},
				Tags:      c.Tags,
				Timestamp: c.Timestamp,
			})
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}

// rerank delegates to the configured reranker.Reranker, which scores
// query-to-document relevance on text (not on the query embedding).
func (s *Store) rerank(ctx context.Context, query string, results []SearchResult, k int) ([]SearchResult, error) {
	docs := make([]reranker.Document, len(results))
	for i, r := range results {
		docs[i] = reranker.Document{ID: fmt.Sprintf("%d", i), Content: r.Text, Score: r.Score}
	}
	scored, err := s.reranker.Rerank(ctx, query, docs, k)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, len(scored))
	for i, sd := range scored {
		idx := 0
		fmt.Sscanf(sd.ID, "%d", &idx)
		res := results[idx]
		res.RerankScore = sd.RerankerScore
		res.hasRerank = true
		out[i] = res
	}
	return out, nil
}

func trimmedKey(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

func appendUnique(sources []string, s string) []string {
	for _, existing := range sources {
		if existing == s {
			return sources
		}
	}
	return append(sources, s)
}

// l2ToScore converts a squared L2 distance on L2-normalized vectors into a
// [0,1]-ish similarity score: 1 - distance, per the cosine-convention note
// in the similar_tags contract, reused here for chunk search scoring.
func l2ToScore(squaredDist float32) float32 {
	return 1 - squaredDist
}

// applyTagBoost mutates res in place per the Jaccard tag-boost contract:
// effective_score = base_score * (1 + tag_weight * jaccard(chunk.tags, query.tags)).
func applyTagBoost(res *SearchResult, chunkTags, queryTags []string, tagWeight float64) {
	if len(chunkTags) == 0 || len(queryTags) == 0 {
		return
	}
	j, matched := jaccard(chunkTags, queryTags)
	if j == 0 {
		return
	}
	boost := float32(1 + tagWeight*j)
	res.Score *= boost
	res.BoostFactor = boost
	res.MatchedTags = matched
}

// jaccard returns |a∩b| / |a∪b| and the intersection, used for the tag
// boost and for matched_tags trace reporting.
func jaccard(a, b []string) (float64, []string) {
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	var intersection []string
	union := make(map[string]bool, len(setA)+len(setB))
	for t := range setA {
		union[t] = true
		if setB[t] {
			intersection = append(intersection, t)
		}
	}
	for t := range setB {
		union[t] = true
	}
	if len(union) == 0 {
		return 0, nil
	}
	return float64(len(intersection)) / float64(len(union)), intersection
}
