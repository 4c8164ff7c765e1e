// ABOUTME: Tests for the client-credentials token source
// ABOUTME: Uses a fake Microsoft identity endpoint

package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppCredentials_Scope(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultScope},
		{"  ", DefaultScope},
		{"https://api.botframework.com", "https://api.botframework.com/.default"},
		{"https://api.botframework.com/", "https://api.botframework.com/.default"},
		{"https://api.botframework.us/.default", "https://api.botframework.us/.default"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, AppCredentials{OAuthScope: tt.in}.Scope())
		})
	}
}

func TestAppCredentials_Endpoint(t *testing.T) {
	assert.Equal(t,
		"https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token",
		AppCredentials{}.Endpoint())
	assert.Equal(t,
		"https://login.microsoftonline.com/contoso-tenant/oauth2/v2.0/token",
		AppCredentials{TenantID: "contoso-tenant"}.Endpoint())
	assert.Equal(t, "http://local/token", AppCredentials{TenantID: "x", TokenURL: "http://local/token"}.Endpoint())
}

func TestNewTokenSource_Anonymous(t *testing.T) {
	assert.Nil(t, NewTokenSource(context.Background(), AppCredentials{}))
}

func TestNewTokenSource_ClientCredentials(t *testing.T) {
	var form map[string]string
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"scope":         r.PostForm.Get("scope"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"bf-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	ts := NewTokenSource(context.Background(), AppCredentials{
		AppID:       "app-id",
		AppPassword: "app-secret",
		TokenURL:    srv.URL,
	})
	require.NotNil(t, ts)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "bf-token", tok.AccessToken)

	assert.Equal(t, "client_credentials", form["grant_type"])
	assert.Equal(t, "app-id", form["client_id"])
	assert.Equal(t, "app-secret", form["client_secret"])
	assert.Equal(t, DefaultScope, form["scope"])

	// Cached until expiry.
	_, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
