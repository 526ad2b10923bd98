package transform

import "context"

type sessionKey struct{}

// ContextWithSession tags ctx with the session a transform belongs to.
// Providers that leave the process use it to namespace their work.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func SessionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey{}).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}
