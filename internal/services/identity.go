package services

import "context"

type ctxKey string

const userIDKey ctxKey = "user_id"

// WithUser records the signed-in user on ctx so storage reads can be
// checked against the owner of the object.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// UserFrom returns the user WithUser attached to ctx.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
