package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

// HTTPConfig configures an HTTP-backed reranker.
type HTTPConfig struct {
	// URL is the rerank endpoint.
	URL string
	// APIKey is sent as a bearer token when non-empty.
	APIKey string
	// Model is the rerank model name.
	Model string
	// MaxTokensPerBatch bounds how many documents are sent to a single
	// rerank call, approximated by content length since token counts are
	// not available without a tokenizer dependency.
	MaxTokensPerBatch int
	// RequestTimeout bounds each batch's HTTP call.
	RequestTimeout time.Duration
}

func (c *HTTPConfig) applyDefaults() {
	if c.MaxTokensPerBatch <= 0 {
		c.MaxTokensPerBatch = 30000
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

// HTTPReranker calls a remote cross-encoder rerank endpoint in
// token-budgeted batches. Per-batch failures fall back to the original
// pre-rerank order for that batch only; successful batches are merged by a
// global descending sort on rerank score, per the search ordering policy.
type HTTPReranker struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPReranker constructs an HTTPReranker.
func NewHTTPReranker(cfg HTTPConfig, logger *zap.Logger) *HTTPReranker {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPReranker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float32 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Rerank splits docs into token-budgeted batches, reranks each
// independently, and returns the globally resorted top K.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	batches := batchByBudget(docs, r.cfg.MaxTokensPerBatch)

	var merged []ScoredDocument
	offset := 0
	for _, batch := range batches {
		scored, err := r.rerankBatch(ctx, query, batch, offset)
		if err != nil {
			r.logger.Warn("reranker: batch failed, falling back to original order",
				zap.Int("batch_size", len(batch)), zap.Error(err))
			scored = fallbackRankFrom(batch, offset)
		}
		merged = append(merged, scored...)
		offset += len(batch)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].RerankerScore > merged[j].RerankerScore
	})

	if topK > 0 && topK < len(merged) {
		merged = merged[:topK]
	}
	return merged, nil
}

// Close is a no-op; the reranker holds no resources beyond an http.Client.
func (r *HTTPReranker) Close() error { return nil }

func (r *HTTPReranker) rerankBatch(ctx context.Context, query string, batch []Document, originalOffset int) ([]ScoredDocument, error) {
	texts := make([]string, len(batch))
	for i, d := range batch {
		texts[i] = d.Content
	}

	body, err := json.Marshal(rerankRequest{Model: r.cfg.Model, Query: query, Documents: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank: unexpected status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}

	out := make([]ScoredDocument, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(batch) {
			continue
		}
		out = append(out, ScoredDocument{
			Document:      batch[res.Index],
			RerankerScore: res.RelevanceScore,
			OriginalRank:  originalOffset + res.Index,
		})
	}
	return out, nil
}

// fallbackRankFrom scores each document of a failed batch with its own
// pre-rerank Score, so the batch still merges into the global sort
// alongside batches that did succeed.
func fallbackRankFrom(batch []Document, originalOffset int) []ScoredDocument {
	out := make([]ScoredDocument, len(batch))
	for i, d := range batch {
		out[i] = ScoredDocument{
			Document:      d,
			RerankerScore: d.Score,
			OriginalRank:  originalOffset + i,
		}
	}
	return out
}

// batchByBudget groups documents into batches whose cumulative content
// length stays under maxBudget, never splitting a single document.
func batchByBudget(docs []Document, maxBudget int) [][]Document {
	var batches [][]Document
	var current []Document
	currentLen := 0

	for _, d := range docs {
		dLen := len(d.Content)
		if currentLen > 0 && currentLen+dLen > maxBudget {
			batches = append(batches, current)
			current = nil
			currentLen = 0
		}
		current = append(current, d)
		currentLen += dLen
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
