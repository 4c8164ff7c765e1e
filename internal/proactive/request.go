// ABOUTME: Proactive message request decoding and validation
// ABOUTME: Rejects unknown fields and requests without a target or content

package proactive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/2389/teams-gateway/internal/convstore"
)

// Text formats accepted in Request.TextFormat.
const (
	TextFormatPlain    = "plain"
	TextFormatMarkdown = "markdown"
	TextFormatHTML     = "html"
)

var (
	// ErrNoTarget is returned when a request names no conversation, user or AAD id.
	ErrNoTarget = errors.New("conversation_id, user_id or aad_object_id is required")
	// ErrNoContent is returned when a request carries neither message nor payload.
	ErrNoContent = errors.New("message or payload is required")
)

// Request asks for a message and/or a card to be pushed into a remembered
// conversation.
type Request struct {
	Message        string         `json:"message,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	AADObjectID    string         `json:"aad_object_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	TextFormat     string         `json:"text_format,omitempty"`
}

// DecodeRequest reads a JSON request body. Unknown fields are an error.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decoding request: %w", err)
	}
	return req, nil
}

// Validate checks that the request has a target and something to send.
func (r Request) Validate() error {
	if r.ConversationID == "" && r.UserID == "" && r.AADObjectID == "" {
		return ErrNoTarget
	}
	if r.Message == "" && len(r.Payload) == 0 {
		return ErrNoContent
	}
	switch strings.ToLower(r.TextFormat) {
	case "", TextFormatPlain, TextFormatMarkdown, TextFormatHTML:
	default:
		return fmt.Errorf("text_format %q must be plain, markdown or html", r.TextFormat)
	}
	return nil
}

// Lookup returns the registry keys of the request.
func (r Request) Lookup() convstore.Lookup {
	return convstore.Lookup{
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		AADObjectID:    r.AADObjectID,
	}
}
