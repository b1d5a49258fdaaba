package auth

import "context"

// contextKey is the key type for values stored by this package
type contextKey string

const appTokenKey contextKey = "app_token"

// AppTokenHeader carries the opaque per-famille token issued by the app.
const AppTokenHeader = "x-app-token"

// WithAppToken adds the caller's app token to the context
func WithAppToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, appTokenKey, token)
}

// AppToken retrieves the app token from context
func AppToken(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(appTokenKey).(string)
	return val, ok && val != ""
}
