// ABOUTME: HTTP middleware guarding the admin API with an API key or operator JWT
// ABOUTME: Accepts X-Api-Key or Authorization: Bearer, and adds the caller to the context

package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Options configures APIKeyMiddleware. Any field may be empty.
type Options struct {
	APIKey     string
	APIKeyHash string // bcrypt hash of the key
	Verifier   TokenVerifier
}

func (o Options) enabled() bool {
	return o.APIKey != "" || o.APIKeyHash != "" || o.Verifier != nil
}

// HashAPIKey returns the bcrypt hash to store in auth.api_key_hash.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// extractCredential returns the X-Api-Key header, or else the bearer token.
func extractCredential(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authenticate checks a credential against the configured key, key hash and
// JWT verifier, in that order.
func authenticate(opts Options, credential string) (*AuthContext, bool) {
	if credential == "" {
		return nil, false
	}
	if opts.APIKey != "" && subtle.ConstantTimeCompare([]byte(credential), []byte(opts.APIKey)) == 1 {
		return &AuthContext{Subject: "api-key", Method: MethodAPIKey}, true
	}
	if opts.APIKeyHash != "" && bcrypt.CompareHashAndPassword([]byte(opts.APIKeyHash), []byte(credential)) == nil {
		return &AuthContext{Subject: "api-key", Method: MethodAPIKey}, true
	}
	if opts.Verifier != nil {
		if sub, err := opts.Verifier.Verify(credential); err == nil {
			return &AuthContext{Subject: sub, Method: MethodJWT}, true
		}
	}
	return nil, false
}

// APIKeyMiddleware rejects requests without a valid credential with 401
// {"error":"invalid_api_key"}. With nothing configured every request passes.
func APIKeyMiddleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.enabled() {
				next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), &AuthContext{Method: MethodNone})))
				return
			}

			authCtx, ok := authenticate(opts, extractCredential(r))
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_api_key"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
