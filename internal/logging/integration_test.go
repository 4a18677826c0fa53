package logging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestFullLoggingPipeline drives a real stdout logger through the whole
// stack: custom trace level, redacting encoder, child loggers, and the
// retrieval-domain context fields. It asserts only that nothing errors or
// panics; field-level assertions live in the observer-based tests.
func TestFullLoggingPipeline(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Sampling.Enabled = false

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = logger.Sync() }()

	ctx := WithQueryID(context.Background(), "q-integration")
	ctx = WithDiary(ctx, "猫咪")

	logger.Trace(ctx, "candidate scored", zap.Float64("distance", 0.12))
	logger.Debug(ctx, "cache", zap.String("outcome", "hit"))
	logger.Info(ctx, "placeholder resolved", zap.Duration("took", 45*time.Millisecond))
	logger.Warn(ctx, "shard degraded", zap.Int("shard", 2))
	logger.Error(ctx, "rerank failed", zap.Error(fmt.Errorf("upstream 503")))

	// Secrets pass through the redacting encoder.
	logger.Info(ctx, "embedding client configured",
		RedactedString("api_key", "sk-should-never-print"))

	logger.With(zap.String("component", "tagindex")).Info(ctx, "child log")
	logger.Named("watcher").Info(ctx, "named log")
}
