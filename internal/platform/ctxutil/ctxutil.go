package ctxutil

import "context"

type bearerKey struct{}

// WithBearerToken attaches the caller's credential so downstream fetches
// can forward it.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

func GetBearerToken(ctx context.Context) string {
	if tok, ok := ctx.Value(bearerKey{}).(string); ok {
		return tok
	}
	return ""
}

type viewerKey struct{}

// WithViewerKey records a stable per-caller key (the token subject) used to
// scope saved state.
func WithViewerKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, viewerKey{}, key)
}

func GetViewerKey(ctx context.Context) string {
	if k, ok := ctx.Value(viewerKey{}).(string); ok {
		return k
	}
	return ""
}

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// LogFields returns the request correlation ids present on ctx as logger
// key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	var kv []interface{}
	if td := GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			kv = append(kv, "trace_id", td.TraceID)
		}
		if td.RequestID != "" {
			kv = append(kv, "request_id", td.RequestID)
		}
	}
	if vk := GetViewerKey(ctx); vk != "" {
		kv = append(kv, "viewer_key", vk)
	}
	return kv
}
