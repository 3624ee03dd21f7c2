package core

import "context"

type contextKey string

const (
	ctxKeyClientIP  contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "user_agent"
)

// ContextWithClientIP adds the caller's address to ctx for audit events.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// ContextWithUserAgent adds the caller's User-Agent to ctx for audit events.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ClientIPFromContext returns the address stored by ContextWithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP).(string); ok {
		return v
	}
	return ""
}

// UserAgentFromContext returns the value stored by ContextWithUserAgent.
func UserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// auditFields returns the caller fields present in ctx.
func auditFields(ctx context.Context, fields map[string]any) map[string]any {
	if ip := ClientIPFromContext(ctx); ip != "" {
		fields["client_ip"] = ip
	}
	if ua := UserAgentFromContext(ctx); ua != "" {
		fields["user_agent"] = ua
	}
	return fields
}
