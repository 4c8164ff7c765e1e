// ABOUTME: Tests for config path resolution, logging setup and operator subcommands
// ABOUTME: The HTTP subcommands run against httptest servers via --addr

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/teams-gateway/internal/auth"
	"github.com/2389/teams-gateway/internal/config"
	"github.com/2389/teams-gateway/internal/secrets"
)

func TestResolveConfigPath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv(configPathEnv, "")

	assert.Equal(t, "/etc/teams.toml", resolveConfigPath("/etc/teams.toml"))
	assert.Equal(t, "", resolveConfigPath(""), "missing default file means environment only")

	def := filepath.Join(xdg, "teams-gateway", "gateway.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(def), 0o755))
	require.NoError(t, os.WriteFile(def, []byte("env: dev\n"), 0o600))
	assert.Equal(t, def, resolveConfigPath(""))

	t.Setenv(configPathEnv, "/srv/gateway.yaml")
	assert.Equal(t, "/srv/gateway.yaml", resolveConfigPath(""))
	assert.Equal(t, "/etc/teams.toml", resolveConfigPath("/etc/teams.toml"))
}

func TestLocalURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"0.0.0.0:8000", "http://127.0.0.1:8000/health/ready"},
		{":8000", "http://127.0.0.1:8000/health/ready"},
		{"10.0.0.5:9000", "http://10.0.0.5:9000/health/ready"},
		{"http://gw.example.ts.net/", "http://gw.example.ts.net/health/ready"},
		{"gw.internal", "http://gw.internal/health/ready"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, localURL(tt.addr, "/health/ready"), tt.addr)
	}
}

func TestNewLogger_ColorHandler(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.With("component", "gateway").WithGroup("turn").Warn("reply failed", "status", 401)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN reply failed")
	assert.Contains(t, out, " component=gateway")
	assert.Contains(t, out, " turn.status=401")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("remembered", "conversation_id", "conv-1")
	assert.Contains(t, buf.String(), `"msg":"remembered"`)
	assert.Contains(t, buf.String(), `"conversation_id":"conv-1"`)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestRunHealth(t *testing.T) {
	ready := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/ready", r.URL.Path)
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ready","conversations":3}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runHealth(context.Background(), []string{"--addr", srv.URL}, &out))
	assert.Equal(t, "ready (3 conversations)\n", out.String())

	ready = false
	err := runHealth(context.Background(), []string{"--addr", srv.URL}, &out)
	assert.ErrorContains(t, err, "not ready: status 503")
}

func TestRunConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"conversation_id":"conv-1","user_id":"29:abc"}]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runConversations(context.Background(), []string{"--addr", srv.URL, "--api-key", "secret"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"conversation_id": "conv-1"`)

	t.Setenv("PROACTIVE_API_KEY", "")
	err = runConversations(context.Background(), []string{"--addr", srv.URL}, &out)
	assert.ErrorContains(t, err, "status 401")
}

func TestRunHashKey(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runHashKey([]string{"s3cret"}, strings.NewReader(""), &out))
	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	out.Reset()
	require.NoError(t, runHashKey(nil, strings.NewReader("from-stdin\n"), &out))
	hash = strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("from-stdin")))

	err := runHashKey(nil, strings.NewReader("  \n"), &out)
	assert.ErrorContains(t, err, "cannot be empty")
}

func TestRunToken(t *testing.T) {
	var out bytes.Buffer
	err := runToken(context.Background(), []string{"--secret", "jwt-secret", "--subject", "ana", "--ttl", "1h"}, &out)
	require.NoError(t, err)

	sub, err := auth.NewJWTVerifier([]byte("jwt-secret")).Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "ana", sub)
}

func TestRunToken_FromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.toml")
	content := `
[bot]
app_id = "app-id"
app_password = "app-secret"

[auth]
jwt_secret = "from-file"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TEAMS_GATEWAY_JWT_SECRET", "")

	var out bytes.Buffer
	require.NoError(t, runToken(context.Background(), []string{"--config", path}, &out))

	sub, err := auth.NewJWTVerifier([]byte("from-file")).Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, defaultTokenSubject, sub)
}

func TestRunHealth_AddrFromConfigWithoutBotCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ready","conversations":0}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_addr: \""+srv.Listener.Addr().String()+"\"\n"), 0o600))
	t.Setenv("PORT", "")
	t.Setenv("MICROSOFT_APP_ID", "")
	t.Setenv("MicrosoftAppId", "")

	var out bytes.Buffer
	require.NoError(t, runHealth(context.Background(), []string{"--config", path}, &out))
	assert.Equal(t, "ready (0 conversations)\n", out.String())
}

// stubGetter serves Parameter Store values from a map.
type stubGetter map[string]string

func (g stubGetter) GetParameter(_ context.Context, name string) (string, error) {
	v, ok := g[name]
	if !ok {
		return "", errors.New("parameter not found: " + name)
	}
	return v, nil
}

func TestRunToken_SSMSecretWithoutBotCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: \"ssm:/teams/jwt\"\n"), 0o600))
	t.Setenv("TEAMS_GATEWAY_JWT_SECRET", "")

	calls := 0
	prev := newSecretGetter
	newSecretGetter = func(context.Context) (secrets.Getter, error) {
		calls++
		return stubGetter{"/teams/jwt": "from-ssm"}, nil
	}
	t.Cleanup(func() { newSecretGetter = prev })

	var out bytes.Buffer
	require.NoError(t, runToken(context.Background(), []string{"--config", path}, &out))
	assert.Equal(t, 1, calls)

	sub, err := auth.NewJWTVerifier([]byte("from-ssm")).Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, defaultTokenSubject, sub)

	out.Reset()
	require.NoError(t, runToken(context.Background(), []string{"--secret", "plain"}, &out))
	assert.Equal(t, 1, calls, "plain secrets never reach Parameter Store")
}

func TestRunToken_Invalid(t *testing.T) {
	var out bytes.Buffer
	err := runToken(context.Background(), []string{"--secret", "x", "--ttl=-1h"}, &out)
	assert.ErrorContains(t, err, "--ttl must be positive")

	err = runToken(context.Background(), []string{"--secret", "x", "--subject", " "}, &out)
	assert.ErrorContains(t, err, "--subject cannot be empty")
}
