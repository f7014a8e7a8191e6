package common

import "context"

type ctxKey string

const adminKey ctxKey = "auth/admin-subject"

// WithAdmin stores the authenticated admin subject on the provided context.
func WithAdmin(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, adminKey, subject)
}

// Admin extracts the authenticated admin subject from the context if present.
func Admin(ctx context.Context) (string, bool) {
	v := ctx.Value(adminKey)
	if v == nil {
		return "", false
	}
	subject, ok := v.(string)
	return subject, ok
}
