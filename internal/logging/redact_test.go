package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// captureEncoder satisfies zapcore.Encoder over an in-memory field map so
// tests can inspect what the redacting wrapper let through.
type captureEncoder struct {
	*zapcore.MapObjectEncoder
}

func newCaptureEncoder() *captureEncoder {
	return &captureEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder()}
}

func (c *captureEncoder) Clone() zapcore.Encoder {
	return newCaptureEncoder()
}

func (c *captureEncoder) EncodeEntry(zapcore.Entry, []zapcore.Field) (*buffer.Buffer, error) {
	return buffer.NewPool().Get(), nil
}

func newTestRedactingEncoder(t *testing.T, cfg RedactionConfig) (*RedactingEncoder, *captureEncoder) {
	t.Helper()
	capture := newCaptureEncoder()
	enc, err := NewRedactingEncoder(capture, cfg)
	require.NoError(t, err)
	return enc, capture
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("api_key", "sk-abcdef")
	assert.Equal(t, "[REDACTED:9]", f.String)
}

func TestRedactingEncoderFieldName(t *testing.T) {
	enc, capture := newTestRedactingEncoder(t, RedactionConfig{
		Enabled: true,
		Fields:  []string{"api_key", "rerank_api_key"},
	})

	enc.AddString("api_key", "sk-secret")
	enc.AddString("Rerank_API_Key", "also-secret")
	enc.AddString("diary", "猫咪")

	assert.Equal(t, "[REDACTED]", capture.Fields["api_key"])
	assert.Equal(t, "[REDACTED]", capture.Fields["Rerank_API_Key"], "field matching is case-insensitive")
	assert.Equal(t, "猫咪", capture.Fields["diary"])
}

func TestRedactingEncoderValuePattern(t *testing.T) {
	enc, capture := newTestRedactingEncoder(t, RedactionConfig{
		Enabled:  true,
		Patterns: []string{`(?i)bearer\s+\S+`},
	})

	enc.AddString("header", "Bearer sk-12345")
	enc.AddString("note", "no credentials here")

	assert.Equal(t, "[REDACTED:pattern]", capture.Fields["header"])
	assert.Equal(t, "no credentials here", capture.Fields["note"])
}

func TestRedactingEncoderDisabled(t *testing.T) {
	enc, capture := newTestRedactingEncoder(t, RedactionConfig{Enabled: false})
	enc.AddString("api_key", "visible-when-disabled")
	assert.Equal(t, "visible-when-disabled", capture.Fields["api_key"])
}

func TestRedactingEncoderInvalidPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newCaptureEncoder(), RedactionConfig{
		Enabled:  true,
		Patterns: []string{"([bad"},
	})
	assert.Error(t, err)
}

func TestRedactingEncoderByteString(t *testing.T) {
	enc, capture := newTestRedactingEncoder(t, RedactionConfig{
		Enabled: true,
		Fields:  []string{"token"},
	})
	enc.AddByteString("token", []byte("raw-token"))
	assert.Equal(t, "[REDACTED]", capture.Fields["token"])
}

func TestRedactingEncoderClone(t *testing.T) {
	enc, _ := newTestRedactingEncoder(t, RedactionConfig{
		Enabled: true,
		Fields:  []string{"secret"},
	})
	clone, ok := enc.Clone().(*RedactingEncoder)
	require.True(t, ok)
	assert.True(t, clone.shouldRedactKey("secret"))
}
