package auth

import "context"

type ctxKey int

const userIDKey ctxKey = 0

// NewContext returns ctx carrying the internal user id. Every operation
// that needs identity takes it from here; there is no ambient current
// user.
func NewContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the internal user id, or "" when the context
// carries none.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}
