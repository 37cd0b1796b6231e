package audit

import "context"

type contextKey struct{ name string }

var (
	sourceKey = contextKey{"source"}
	ipKey     = contextKey{"ip"}
)

// Sources recorded on audit entries.
const (
	SourceHTTP     = "http"
	SourceTelegram = "telegram"
	SourceDiscord  = "discord"
	SourceHost     = "host"
	SourceSystem   = "system"
)

// WithOrigin returns a context carrying the request source and client IP.
func WithOrigin(ctx context.Context, source, ip string) context.Context {
	ctx = context.WithValue(ctx, sourceKey, source)
	return context.WithValue(ctx, ipKey, ip)
}

// SourceFrom returns the source set by WithOrigin, or SourceSystem.
func SourceFrom(ctx context.Context) string {
	if v, ok := ctx.Value(sourceKey).(string); ok && v != "" {
		return v
	}
	return SourceSystem
}

// IPFromContext returns the client IP set by WithOrigin, or "unknown". It satisfies IPExtractor.
func IPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ipKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
