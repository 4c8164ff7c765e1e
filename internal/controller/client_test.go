// ABOUTME: Tests for the controller client against a fake controller API
// ABOUTME: Covers base URL resolution, query forwarding, status errors and timeouts

package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name       string
		metricsURL string
		baseURL    string
		want       string
	}{
		{"explicit base", "http://c/api/metrics", "http://other/api/", "http://other/api"},
		{"derived from metrics", "http://c:8080/api/metrics", "", "http://c:8080/api"},
		{"trailing slash on metrics", "http://c:8080/api/metrics/", "", "http://c:8080/api"},
		{"nothing configured", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.metricsURL, tt.baseURL, 0, nil)
			assert.Equal(t, tt.want, c.ResolveBaseURL())
		})
	}
}

func newFakeController(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RequestURI())
		_, _ = w.Write([]byte(`{"summary":{"open":12}}`))
	})
	mux.HandleFunc("/api/risk", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RequestURI())
		_, _ = w.Write([]byte(`{"items":[]}`))
	})
	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html></html>`))
	})
	mux.HandleFunc("/api/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestMetrics(t *testing.T) {
	srv, _ := newFakeController(t)
	c := New(srv.URL+"/api/metrics", "", 0, srv.Client())

	raw, err := c.Metrics(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":{"open":12}}`, string(raw))
}

func TestMetrics_NotConfigured(t *testing.T) {
	_, err := New("", "", 0, nil).Metrics(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New("", "", 0, nil).Fetch(context.Background(), "runs", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFetch_ForwardsQuery(t *testing.T) {
	srv, seen := newFakeController(t)
	c := New(srv.URL+"/api/metrics", "", 0, srv.Client())

	raw, err := c.Fetch(context.Background(), "/risk", "level=3&team=mesa")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(raw))
	assert.Equal(t, []string{"/api/risk?level=3&team=mesa"}, *seen)
}

func TestFetch_UpstreamStatus(t *testing.T) {
	srv, _ := newFakeController(t)
	c := New(srv.URL+"/api/metrics", "", 0, srv.Client())

	_, err := c.Fetch(context.Background(), "runs", "")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestFetch_NotJSON(t *testing.T) {
	srv, _ := newFakeController(t)
	c := New(srv.URL+"/api/metrics", "", 0, srv.Client())

	_, err := c.Fetch(context.Background(), "html", "")
	assert.ErrorContains(t, err, "not JSON")
}

func TestFetch_Timeout(t *testing.T) {
	srv, _ := newFakeController(t)
	c := New(srv.URL+"/api/metrics", "", 50*time.Millisecond, srv.Client())

	start := time.Now()
	_, err := c.Fetch(context.Background(), "slow", "")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRoutes_UnavailableCodes(t *testing.T) {
	codes := map[string]string{}
	for _, r := range Routes {
		codes[r.Path] = r.UnavailableCode()
	}
	assert.Equal(t, "controller_risk_unavailable", codes["/dashboard/data/risk"])
	assert.Equal(t, "controller_risk_summary_unavailable", codes["/dashboard/data/risk/summary"])
	assert.Equal(t, "controller_tactical_unavailable", codes["/controller/tactical"])
	assert.Equal(t, "controller_executive_unavailable", codes["/controller/executive"])
	assert.Len(t, Routes, 7)
}
