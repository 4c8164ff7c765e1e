// ABOUTME: Liveness, readiness and diagnostic endpoints
// ABOUTME: Reports non-secret config flags and inspects the Bot Framework token

package gateway

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/2389/teams-gateway/internal/auth"
)

// handleRoot returns the service banner.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": ServiceName,
		"adapter": adapterName,
		"ready":   true,
	})
}

// handleHealth returns 200 if the server is alive. Served on /health and /__ready.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady returns 200 once the listeners are up, 503 before that and
// during shutdown.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"conversations": g.registry.Len(),
	})
}

// handleEnv reports which settings are present without revealing secrets.
func (g *Gateway) handleEnv(w http.ResponseWriter, r *http.Request) {
	bot := g.config.Bot
	writeJSON(w, http.StatusOK, map[string]any{
		"ENV":                         g.config.Env,
		"MICROSOFT_APP_ID_set":        bot.AppID != "",
		"MICROSOFT_APP_PASSWORD_set":  bot.AppPassword != "",
		"MICROSOFT_APP_TENANT_ID_set": bot.TenantID != "",
		"MICROSOFT_APP_OAUTH_SCOPE":   appCredentials(bot).Scope(),
		"BOT_DEFAULT_REPLY":           bot.DefaultReply,
		"PROACTIVE_DEFAULT_MESSAGE":   bot.ProactiveDefaultMessage,
		"PROACTIVE_API_KEY_set":       g.config.Auth.APIKey != "" || g.config.Auth.APIKeyHash != "",
		"CONTROLLER_METRICS_URL_set":  g.config.Controller.MetricsURL != "",
		"registry_max_conversations":  g.config.Registry.MaxConversations,
	})
}

// handleBFToken fetches a connector token and returns its unverified claims.
func (g *Gateway) handleBFToken(w http.ResponseWriter, r *http.Request) {
	if g.tokens == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "bot_credentials_not_configured")
		return
	}
	tok, err := g.tokens.Token()
	if err != nil {
		g.logger.Error("token request failed", "error", err)
		g.sendJSONError(w, http.StatusBadGateway, "token_unavailable")
		return
	}
	claims, err := auth.InspectToken(tok.AccessToken)
	if err != nil {
		g.sendJSONError(w, http.StatusBadGateway, "token_not_a_jwt")
		return
	}

	resp := map[string]any{
		"oauth_scope": appCredentials(g.config.Bot).Scope(),
		"aud":         claims.Audience,
		"appid":       claims.AppID,
		"iss":         claims.Issuer,
	}
	if !claims.ExpiresAt.IsZero() {
		resp["exp"] = claims.ExpiresAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAuthProbe checks that the app credentials can obtain a token.
// Failures are reported in the body with status 200 so the probe itself
// never looks like an outage.
func (g *Gateway) handleAuthProbe(w http.ResponseWriter, r *http.Request) {
	if g.tokens == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    false,
			"error": "bot_credentials_not_configured",
			"desc":  "set MICROSOFT_APP_ID and MICROSOFT_APP_PASSWORD",
		})
		return
	}
	tok, err := g.tokens.Token()
	if err != nil {
		g.logger.Warn("auth probe failed", "error", err)
		code, desc := "token_request_failed", err.Error()
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode != "" {
			code, desc = re.ErrorCode, re.ErrorDescription
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    false,
			"error": code,
			"desc":  desc,
		})
		return
	}

	expiresIn := 0
	if !tok.Expiry.IsZero() {
		expiresIn = int(time.Until(tok.Expiry).Seconds())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"expires_in": expiresIn,
		"endpoint":   appCredentials(g.config.Bot).Endpoint(),
	})
}
