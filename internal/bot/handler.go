// ABOUTME: Turn handler for inbound Bot Framework activities
// ABOUTME: Remembers the conversation of each message and answers with the templated reply

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/teams-gateway/internal/activity"
	"github.com/2389/teams-gateway/internal/connector"
	"github.com/2389/teams-gateway/internal/convstore"
)

// DefaultReply is used when no reply template is configured.
const DefaultReply = "Hola, soy tu bot de Teams."

// Remembering defines what the handler needs from the conversation registry
type Remembering interface {
	Remember(a *activity.Activity) *convstore.StoredConversation
}

// Replier defines what the handler needs from the connector
type Replier interface {
	ReplyToActivity(ctx context.Context, incoming, reply *activity.Activity) (*connector.ResourceResponse, error)
}

// Options configures the reply template.
type Options struct {
	BotName       string
	ReplyTemplate string
}

// Handler processes one turn per inbound activity.
type Handler struct {
	registry Remembering
	replier  Replier
	opts     Options
	logger   *slog.Logger
}

// New creates a turn handler
func New(registry Remembering, replier Replier, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		replier:  replier,
		opts:     opts,
		logger:   logger.With("component", "bot"),
	}
}

// OnTurn handles an inbound activity. Only message activities are answered;
// everything else is logged and ignored.
func (h *Handler) OnTurn(ctx context.Context, a *activity.Activity) error {
	if a == nil {
		return nil
	}
	if a.Type != activity.TypeMessage {
		h.logger.Debug("ignoring activity", "type", a.Type, "conversation_id", a.ConversationID())
		return nil
	}

	if stored := h.registry.Remember(a); stored != nil {
		h.logger.Debug("stored conversation reference",
			"conversation_id", stored.ConversationID,
			"user_id", stored.UserID,
			"aad_object_id", stored.AADObjectID,
		)
	}

	reply := activity.NewMessage(h.RenderReply(strings.TrimSpace(a.Text)))
	if _, err := h.replier.ReplyToActivity(ctx, a, reply); err != nil {
		return fmt.Errorf("replying to activity: %w", err)
	}
	return nil
}

// RenderReply fills the reply template. Supported placeholders are
// {user_input} and {bot_name}; {{ and }} produce literal braces. A template
// with any other placeholder or an unbalanced brace is returned unchanged.
func (h *Handler) RenderReply(userText string) string {
	template := h.opts.ReplyTemplate
	if template == "" {
		template = DefaultReply
	}
	out, ok := renderTemplate(template, map[string]string{
		"user_input": userText,
		"bot_name":   h.opts.BotName,
	})
	if !ok {
		return template
	}
	return out
}

func renderTemplate(template string, values map[string]string) (string, bool) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", false
			}
			v, ok := values[template[i+1:i+1+end]]
			if !ok {
				return "", false
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", false
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}
