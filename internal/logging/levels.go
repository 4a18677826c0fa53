package logging

import "go.uber.org/zap/zapcore"

// TraceLevel sits below Debug, for per-candidate retrieval detail
// (distances, shard membership, cache keys) that would drown Debug
// output. Almost always filtered in production.
const TraceLevel = zapcore.Level(-2)

// ParseLevel parses a configured level string, accepting "trace" in
// addition to zap's standard level names.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
