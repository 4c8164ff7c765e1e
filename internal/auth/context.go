// ABOUTME: Caller identity for admin API requests
// ABOUTME: Provides WithAuth/FromContext for propagating it via context

package auth

import (
	"context"
)

// Method names how a caller authenticated.
type Method string

const (
	MethodNone   Method = "none" // no credential configured
	MethodAPIKey Method = "api_key"
	MethodJWT    Method = "jwt"
)

// AuthContext holds the identity extracted from an admin API request.
type AuthContext struct {
	Subject string // JWT "sub", or "api-key"
	Method  Method
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}
