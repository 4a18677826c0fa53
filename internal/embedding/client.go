package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds configuration for the embedding client.
type Config struct {
	// BaseURL is the base URL of the embedding API (e.g. a TEI deployment).
	BaseURL string
	// Model is the embedding model name, reported in metrics only.
	Model string
	// APIKey is sent as a bearer token when non-empty.
	APIKey string
	// MaxAttempts bounds retries of transient failures. Must be >= 3.
	MaxAttempts int
	// RequestTimeout bounds each individual HTTP attempt.
	RequestTimeout time.Duration
	// RetryBaseDelay is multiplied by the attempt number for backoff.
	RetryBaseDelay time.Duration
	// RateLimit caps outbound requests per second; zero disables limiting.
	RateLimit float64
}

// ApplyDefaults fills zero-valued fields with sane defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.MaxAttempts < 3 {
		return fmt.Errorf("%w: max attempts must be >= 3", ErrInvalidConfig)
	}
	return nil
}

// Client embeds ordered batches of text against a remote HTTP embedding
// service, retrying transient failures with linear backoff.
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

// New creates a Client. logger may be nil (a no-op logger is used).
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Client{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
		metrics: NewMetrics(logger),
		logger:  logger,
	}, nil
}

type embedRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// EmbedDocuments embeds a batch of texts, preserving input order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		c.metrics.RecordGeneration(ctx, c.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := c.embedWithRetry(ctx, texts)
	genErr = err
	return vectors, err
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

// embedWithRetry performs the HTTP call, retrying ErrEmbeddingTransient
// failures up to config.MaxAttempts with linear (delay * attempt) backoff.
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, err := c.doEmbed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !errors.Is(err, ErrEmbeddingTransient) {
			return nil, err
		}
		if attempt == c.config.MaxAttempts {
			break
		}

		delay := c.config.RetryBaseDelay * time.Duration(attempt)
		c.logger.Warn("embedding: retrying after transient failure",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (c *Client) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var vectors [][]float32
		if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		return vectors, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrEmbeddingUnavailable, resp.StatusCode)
	case resp.StatusCode >= 500:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingTransient, resp.StatusCode, string(respBody))
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFatal, resp.StatusCode, string(respBody))
	}
}
