package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type queryIDCtxKey struct{}
type diaryCtxKey struct{}

// WithQueryID tags ctx with a planner invocation's query ID so every log
// entry produced while resolving that turn's placeholders can be grouped.
func WithQueryID(ctx context.Context, queryID string) context.Context {
	if queryID == "" {
		return ctx
	}
	return context.WithValue(ctx, queryIDCtxKey{}, queryID)
}

// QueryIDFromContext returns the query ID set by WithQueryID, or "".
func QueryIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(queryIDCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithDiary tags ctx with the diary a placeholder is being resolved
// against.
func WithDiary(ctx context.Context, diary string) context.Context {
	if diary == "" {
		return ctx
	}
	return context.WithValue(ctx, diaryCtxKey{}, diary)
}

// DiaryFromContext returns the diary name set by WithDiary, or "".
func DiaryFromContext(ctx context.Context) string {
	if d, ok := ctx.Value(diaryCtxKey{}).(string); ok {
		return d
	}
	return ""
}

// ContextFields extracts the correlation fields from ctx: the active OTEL
// trace/span IDs, then the query ID and diary name if present.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := QueryIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("query.id", id))
	}
	if d := DiaryFromContext(ctx); d != "" {
		fields = append(fields, zap.String("diary", d))
	}
	return fields
}
