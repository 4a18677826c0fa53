// Package logging provides the engine's structured logging: zap with a
// custom trace level, optional OTEL log export, retrieval-domain context
// correlation, secret redaction, and level-aware sampling.
//
// Every context-taking log method injects the correlation fields found on
// the context: the active OTEL trace/span IDs, the planner invocation's
// query ID (WithQueryID), and the diary a placeholder is being resolved
// against (WithDiary). A log line produced deep inside a shard write or a
// rerank batch can therefore be grouped back to the chat turn that caused
// it:
//
//	ctx = logging.WithQueryID(ctx, queryID)
//	ctx = logging.WithDiary(ctx, "猫咪")
//	logger.Warn(ctx, "rerank batch failed", zap.Error(err))
//
// Secrets are redacted in two layers: config.Secret never marshals its
// value, and the stdout encoder filters sensitive field names and value
// patterns (see RedactingEncoder). Sampling, when enabled, bounds
// everything below the error level; errors always pass through.
package logging
