// ABOUTME: HTTP handlers for the Bot Framework endpoint and the admin API
// ABOUTME: Covers /api/messages, /api/conversations, /api/proactive and /api/deliveries

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/teams-gateway/internal/activity"
	"github.com/2389/teams-gateway/internal/connector"
	"github.com/2389/teams-gateway/internal/convstore"
	"github.com/2389/teams-gateway/internal/proactive"
	"github.com/2389/teams-gateway/internal/store"
)

// maxActivityBytes bounds inbound request bodies.
const maxActivityBytes = 1 << 20

// messagesResponse is the body of every /api/messages answer.
type messagesResponse struct {
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ConversationsResponse is the JSON response for GET /api/conversations.
type ConversationsResponse struct {
	Items []convstore.Summary `json:"items"`
}

// ProactiveResponse is the JSON response for POST /api/proactive.
type ProactiveResponse struct {
	OK bool `json:"ok"`
	*proactive.Result
}

// DeliveriesResponse is the JSON response for GET /api/deliveries.
type DeliveriesResponse struct {
	Items []store.Delivery `json:"items"`
}

// normalizeRecipientID drops the channel prefix of a bot id ("28:<app id>").
func normalizeRecipientID(id string) string {
	if _, rest, ok := strings.Cut(id, ":"); ok {
		return rest
	}
	return id
}

// handleMessages handles POST /api/messages, the Bot Framework messaging endpoint.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	var act activity.Activity
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes)).Decode(&act); err != nil {
		g.logger.Warn("invalid activity", "error", err)
		writeJSON(w, http.StatusBadRequest, messagesResponse{Error: "invalid_activity"})
		return
	}

	g.logger.Info("incoming activity",
		"type", act.Type,
		"channel_id", act.ChannelID,
		"service_url", act.ServiceURL,
		"conversation_id", act.ConversationID(),
		"from_id", act.FromID(),
		"recipient_id", act.RecipientID(),
		"recipient_id_normalized", normalizeRecipientID(act.RecipientID()),
		"env_app_id", g.config.Bot.AppID,
	)

	if g.dedupe.SeenActivity(&act) {
		g.logger.Debug("duplicate activity dropped", "activity_id", act.ID, "conversation_id", act.ConversationID())
		writeJSON(w, http.StatusOK, messagesResponse{OK: true, Duplicate: true})
		return
	}

	if err := g.bot.OnTurn(r.Context(), &act); err != nil {
		// Error statuses make the Bot Framework redeliver; let the retry through.
		g.dedupe.ForgetActivity(&act)

		var apiErr *connector.APIError
		if errors.As(err, &apiErr) {
			g.logger.Error("connector rejected the reply",
				"status", apiErr.StatusCode,
				"code", apiErr.Code,
				"message", apiErr.Message,
				"body", apiErr.Body,
			)
			writeJSON(w, http.StatusBadGateway, messagesResponse{Error: "connector_unauthorized"})
			return
		}
		g.logger.Error("turn failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, messagesResponse{Error: "unexpected"})
		return
	}

	writeJSON(w, http.StatusOK, messagesResponse{OK: true})
}

// handleListConversations handles GET /api/conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ConversationsResponse{Items: g.registry.Summaries()})
}

// handleProactive handles POST /api/proactive.
func (g *Gateway) handleProactive(w http.ResponseWriter, r *http.Request) {
	req, err := proactive.DecodeRequest(http.MaxBytesReader(w, r.Body, maxActivityBytes))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.proactive.Send(r.Context(), req)
	if err != nil {
		var apiErr *connector.APIError
		switch {
		case errors.Is(err, proactive.ErrReferenceNotFound):
			g.sendJSONError(w, http.StatusNotFound, "conversation_reference_not_found")
		case errors.As(err, &apiErr):
			g.logger.Error("proactive send rejected by connector",
				"status", apiErr.StatusCode,
				"code", apiErr.Code,
				"message", apiErr.Message,
			)
			g.sendJSONError(w, http.StatusBadGateway, "connector_error")
		default:
			g.logger.Error("proactive send failed", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "unexpected")
		}
		return
	}

	writeJSON(w, http.StatusOK, ProactiveResponse{OK: true, Result: result})
}

// handleListDeliveries handles GET /api/deliveries.
// Query parameters: conversation_id, status (sent|failed), since (RFC 3339), limit.
func (g *Gateway) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.DeliveryFilter{
		ConversationID: q.Get("conversation_id"),
		Status:         store.DeliveryStatus(q.Get("status")),
	}
	switch filter.Status {
	case "", store.DeliverySent, store.DeliveryFailed:
	default:
		g.sendJSONError(w, http.StatusBadRequest, "status must be sent or failed")
		return
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	items, err := g.deliveries.ListDeliveries(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to list deliveries", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, DeliveriesResponse{Items: items})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
