// ABOUTME: Read-only pass-through of controller metrics for dashboards
// ABOUTME: Relays upstream JSON unchanged and maps failures to stable error codes

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/teams-gateway/internal/controller"
)

const metricsNotConfigured = "controller_metrics_url_not_configured"

// handleDashboardData handles GET /dashboard/data.
func (g *Gateway) handleDashboardData(w http.ResponseWriter, r *http.Request) {
	doc, err := g.controller.Metrics(r.Context())
	if err != nil {
		if errors.Is(err, controller.ErrNotConfigured) {
			g.sendJSONError(w, http.StatusServiceUnavailable, metricsNotConfigured)
			return
		}
		g.logger.Warn("controller metrics fetch failed", "error", err)
		g.sendJSONError(w, http.StatusBadGateway, "controller_metrics_unavailable")
		return
	}
	writeRawJSON(w, doc)
}

// handleControllerRoute returns the handler proxying one controller route.
func (g *Gateway) handleControllerRoute(route controller.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rawQuery string
		if route.ForwardQuery {
			rawQuery = r.URL.RawQuery
		}
		doc, err := g.controller.Fetch(r.Context(), route.Upstream, rawQuery)
		if err != nil {
			if errors.Is(err, controller.ErrNotConfigured) {
				g.sendJSONError(w, http.StatusServiceUnavailable, metricsNotConfigured)
				return
			}
			g.logger.Warn("controller fetch failed", "path", route.Upstream, "error", err)
			g.sendJSONError(w, http.StatusBadGateway, route.UnavailableCode())
			return
		}
		writeRawJSON(w, doc)
	}
}

func writeRawJSON(w http.ResponseWriter, doc json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
