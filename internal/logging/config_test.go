package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "ragdiaryd", cfg.Service)
	assert.True(t, cfg.Output.Stdout)
	assert.False(t, cfg.Output.OTEL)
	assert.True(t, cfg.Sampling.Enabled)
	assert.Equal(t, time.Second, cfg.Sampling.Tick.Duration())
	assert.Contains(t, cfg.Redaction.Fields, "embedding_api_key")
	assert.Contains(t, cfg.Redaction.Fields, "rerank_api_key")
}

func TestConfigValidateFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
}

func TestConfigValidateNoOutputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}

func TestConfigValidateSampling(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Tick = 0
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Sampling.Initial = 0
	assert.Error(t, cfg.Validate())

	// Disabled sampling skips both checks.
	cfg = NewDefaultConfig()
	cfg.Sampling.Enabled = false
	cfg.Sampling.Tick = 0
	cfg.Sampling.Initial = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateCallerSkip(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Caller.Skip = -1
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRedactionPattern(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Redaction.Patterns = []string{"([invalid"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redaction pattern")
}
