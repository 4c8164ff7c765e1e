// ABOUTME: Bot Framework app credentials as an oauth2 client-credentials token source
// ABOUTME: Single-tenant apps use their tenant, multi-tenant apps use botframework.com

package connector

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultScope is the audience of tokens accepted by the public connector.
	DefaultScope = "https://api.botframework.com/.default"

	defaultTenant = "botframework.com"
	loginEndpoint = "https://login.microsoftonline.com"
)

// AppCredentials identify the bot's app registration.
type AppCredentials struct {
	AppID       string
	AppPassword string
	TenantID    string
	OAuthScope  string

	// TokenURL overrides the Microsoft identity platform endpoint.
	TokenURL string
}

// Scope returns the OAuth scope, always ending in "/.default".
func (c AppCredentials) Scope() string {
	scope := strings.TrimSpace(c.OAuthScope)
	if scope == "" {
		return DefaultScope
	}
	if strings.HasSuffix(scope, "/.default") {
		return scope
	}
	return strings.TrimRight(scope, "/") + "/.default"
}

// Endpoint returns the token endpoint for the credentials' tenant.
func (c AppCredentials) Endpoint() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	tenant := c.TenantID
	if tenant == "" {
		tenant = defaultTenant
	}
	return loginEndpoint + "/" + tenant + "/oauth2/v2.0/token"
}

// NewTokenSource returns a caching token source for the credentials, or nil
// when no app id is set (anonymous access, e.g. the local emulator). ctx
// carries the HTTP client used for token requests (see oauth2.HTTPClient).
func NewTokenSource(ctx context.Context, creds AppCredentials) oauth2.TokenSource {
	if creds.AppID == "" {
		return nil
	}
	cfg := &clientcredentials.Config{
		ClientID:     creds.AppID,
		ClientSecret: creds.AppPassword,
		TokenURL:     creds.Endpoint(),
		Scopes:       []string{creds.Scope()},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cfg.TokenSource(ctx)
}
