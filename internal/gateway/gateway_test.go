// ABOUTME: Tests for Gateway construction, lifecycle and the gRPC health service
// ABOUTME: Shared helpers build a gateway against a fake Bot Framework connector

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/teams-gateway/internal/activity"
	"github.com/2389/teams-gateway/internal/config"
)

// freeAddr returns a loopback address with a port that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// testConfig creates a minimal config for testing with available ports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env: "test",
		Server: config.ServerConfig{
			GRPCAddr: freeAddr(t),
			HTTPAddr: freeAddr(t),
		},
		Bot: config.BotConfig{
			AppID:                   "app-id",
			AppPassword:             "app-secret",
			DisplayName:             "Mesa de ayuda",
			DefaultReply:            "{bot_name}: {user_input}",
			ProactiveDefaultMessage: config.DefaultProactiveMessage,
		},
		Dedupe: config.DedupeConfig{
			TTL:        time.Minute,
			MaxEntries: 100,
		},
		Database: config.DatabaseConfig{
			Path: ":memory:",
		},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// connectorCall is one request received by the fake Bot Framework service.
type connectorCall struct {
	Path          string
	Authorization string
	Activity      activity.Activity
}

// fakeConnector plays the Bot Framework connector service.
type fakeConnector struct {
	mu     sync.Mutex
	calls  []connectorCall
	status int
	body   string
	srv    *httptest.Server
}

func newFakeConnector(t *testing.T) *fakeConnector {
	t.Helper()
	fc := &fakeConnector{status: http.StatusOK, body: `{"id":"reply-1"}`}
	fc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var act activity.Activity
		_ = json.NewDecoder(r.Body).Decode(&act)

		fc.mu.Lock()
		fc.calls = append(fc.calls, connectorCall{
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Activity:      act,
		})
		status, body := fc.status, fc.body
		fc.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(fc.srv.Close)
	return fc
}

func (f *fakeConnector) fail(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.body = status, body
}

func (f *fakeConnector) received() []connectorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]connectorCall(nil), f.calls...)
}

// newTestGateway builds a gateway whose connector requests carry a static
// bearer token. Shutdown runs on cleanup.
func newTestGateway(t *testing.T, cfg *config.Config, opts ...Option) *Gateway {
	t.Helper()
	opts = append([]Option{WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "bf-token"}))}, opts...)
	gw, err := New(cfg, testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

// serve runs one request through the gateway's HTTP handler.
func serve(gw *Gateway, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	gw.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)
	gw := newTestGateway(t, cfg)

	assert.Same(t, cfg, gw.config)
	assert.NotNil(t, gw.registry)
	assert.NotNil(t, gw.bot)
	assert.NotNil(t, gw.proactive)
	assert.NotNil(t, gw.deliveries)
	assert.NotNil(t, gw.dedupe)
	assert.NotNil(t, gw.tokens)
	assert.False(t, gw.ready.Load(), "not ready before Run")
}

func TestGatewayNew_DerivesTokenSourceFromBotConfig(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())
	assert.NotNil(t, gw.tokens)

	cfg = testConfig(t)
	cfg.Bot.AppID = ""
	gw, err = New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())
	assert.Nil(t, gw.tokens, "no app id means anonymous connector access")
}

func TestGatewayNew_StoreFailure(t *testing.T) {
	cfg := testConfig(t)
	blocker := t.TempDir() + "/file"
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.Database.Path = blocker + "/deliveries.db"

	_, err := New(cfg, testLogger())
	assert.ErrorContains(t, err, "initializing store")
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger(), WithTokenSource(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	url := "http://" + cfg.Server.HTTPAddr + "/health/ready"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
	assert.False(t, gw.ready.Load())
}

func TestGatewayRun_WithoutGRPCAddr(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.GRPCAddr = ""
	gw, err := New(cfg, testLogger(), WithTokenSource(nil))
	require.NoError(t, err)

	grpcLn, httpLn, err := gw.setupListeners(context.Background())
	require.NoError(t, err)
	defer httpLn.Close()
	assert.Nil(t, grpcLn)
	require.NoError(t, gw.Shutdown(context.Background()))
}

func TestGatewayRun_HTTPAddrInUse(t *testing.T) {
	cfg := testConfig(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	cfg.Server.HTTPAddr = busy.Addr().String()

	gw, err := New(cfg, testLogger(), WithTokenSource(nil))
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	err = gw.Run(context.Background())
	assert.ErrorContains(t, err, "listening on HTTP address")
}

func TestGRPCHealth(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = gw.grpcServer.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, service := range []string{"", ServiceName} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus(), "service %q", service)
	}

	gw.health.Shutdown()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/teams-gateway/ts")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/teams-gateway/ts", dir)

	t.Setenv("HOME", "/home/bot")
	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Equal(t, "/home/bot/.local/share/teams-gateway/tailscale", dir)
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)

	t.Setenv("TS_AUTHKEY", "")
	_, err = resolveTailscaleAuthKey("")
	assert.ErrorContains(t, err, "tailscale auth key required")
}

func TestAppendCloseError(t *testing.T) {
	var errs []error
	errs = appendCloseError(errs, "store close", nil)
	assert.Empty(t, errs)

	errs = appendCloseError(errs, "store close", errors.New("boom"))
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "store close: boom")
}
