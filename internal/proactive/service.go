// ABOUTME: Proactive messaging service
// ABOUTME: Resolves a remembered conversation and pushes text and alert cards into it

package proactive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/2389/teams-gateway/internal/activity"
	"github.com/2389/teams-gateway/internal/cards"
	"github.com/2389/teams-gateway/internal/connector"
	"github.com/2389/teams-gateway/internal/convstore"
	"github.com/2389/teams-gateway/internal/store"
)

// ErrReferenceNotFound is returned when no remembered conversation matches the request.
var ErrReferenceNotFound = errors.New("conversation reference not found")

// Resolver defines what the service needs from the conversation registry
type Resolver interface {
	Resolve(q convstore.Lookup) *activity.ConversationReference
}

// Sender defines what the service needs from the connector
type Sender interface {
	SendToConversation(ctx context.Context, ref activity.ConversationReference, act *activity.Activity) (*connector.ResourceResponse, error)
}

// DeliveryRecorder defines what the service needs from the delivery log
type DeliveryRecorder interface {
	AppendDelivery(ctx context.Context, d *store.Delivery) error
}

// Result describes what was sent.
type Result struct {
	ConversationID string   `json:"conversation_id"`
	ActivityIDs    []string `json:"activity_ids"`
	CardSent       bool     `json:"card_sent"`
}

// Service sends proactive messages.
type Service struct {
	registry   Resolver
	sender     Sender
	deliveries DeliveryRecorder
	markdown   goldmark.Markdown
	logger     *slog.Logger
}

// New creates a proactive messaging service. deliveries may be nil.
func New(registry Resolver, sender Sender, deliveries DeliveryRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry:   registry,
		sender:     sender,
		deliveries: deliveries,
		markdown:   goldmark.New(),
		logger:     logger.With("component", "proactive"),
	}
}

// Send validates req, resolves its conversation and sends the message text
// followed by the card built from the payload, if any. Sending stops at the
// first connector error.
func (s *Service) Send(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ref := s.registry.Resolve(req.Lookup())
	if ref == nil {
		return nil, ErrReferenceNotFound
	}

	result := &Result{ConversationID: ref.ConversationID(), ActivityIDs: []string{}}

	if req.Message != "" {
		msg, err := s.textActivity(req.Message, req.TextFormat)
		if err != nil {
			return nil, err
		}
		id, err := s.deliver(ctx, *ref, msg, store.DeliveryKindText)
		if err != nil {
			return nil, err
		}
		result.ActivityIDs = append(result.ActivityIDs, id)
	}

	if card, ok := cards.FromPayload(req.Payload); ok {
		id, err := s.deliver(ctx, *ref, activity.NewAttachmentMessage(cards.Attachment(card)), store.DeliveryKindCard)
		if err != nil {
			return nil, err
		}
		result.ActivityIDs = append(result.ActivityIDs, id)
		result.CardSent = true
	}

	s.logger.Info("proactive message sent",
		"conversation_id", result.ConversationID,
		"activities", len(result.ActivityIDs),
		"card", result.CardSent,
	)
	return result, nil
}

// textActivity builds the text message. HTML requests are written in
// markdown and rendered to the Bot Framework's xml text format.
func (s *Service) textActivity(text, format string) (*activity.Activity, error) {
	msg := activity.NewMessage(text)

	switch strings.ToLower(format) {
	case TextFormatHTML:
		var buf bytes.Buffer
		if err := s.markdown.Convert([]byte(text), &buf); err != nil {
			return nil, fmt.Errorf("rendering markdown: %w", err)
		}
		msg.Text = strings.TrimSpace(buf.String())
		msg.TextFormat = activity.TextFormatXML
	case TextFormatMarkdown:
		msg.TextFormat = activity.TextFormatMarkdown
	case TextFormatPlain:
		msg.TextFormat = activity.TextFormatPlain
	}
	return msg, nil
}

// deliver sends one activity and records the attempt.
func (s *Service) deliver(ctx context.Context, ref activity.ConversationReference, act *activity.Activity, kind store.DeliveryKind) (string, error) {
	resp, err := s.sender.SendToConversation(ctx, ref, act)

	d := &store.Delivery{
		ConversationID: ref.ConversationID(),
		Kind:           kind,
		Status:         store.DeliverySent,
	}
	if err != nil {
		d.Status = store.DeliveryFailed
		d.Error = err.Error()
	} else if resp != nil {
		d.ActivityID = resp.ID
	}
	s.record(ctx, d)

	if err != nil {
		return "", fmt.Errorf("sending %s: %w", kind, err)
	}
	return d.ActivityID, nil
}

// record logs the delivery. A failing delivery log never fails the send.
func (s *Service) record(ctx context.Context, d *store.Delivery) {
	if s.deliveries == nil {
		return
	}
	if err := s.deliveries.AppendDelivery(ctx, d); err != nil {
		s.logger.Warn("failed to record delivery", "conversation_id", d.ConversationID, "error", err)
	}
}
