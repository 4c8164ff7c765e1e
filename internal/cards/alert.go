// ABOUTME: Adaptive Card builder for controller alert notifications
// ABOUTME: Maps alert levels to header style, audience and icon

package cards

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/2389/teams-gateway/internal/activity"
)

// ContentType is the attachment content type for Adaptive Cards.
const ContentType = "application/vnd.microsoft.card.adaptive"

const (
	cardVersion       = "1.5"
	defaultAlertLevel = "Nivel 1"
	defaultAlertTitle = "Alerta temprana"
	defaultAlertURL   = "https://example.org"
)

// levelStyle is the presentation of one alert level.
type levelStyle struct {
	Style    string
	Audience string
	Icon     string
}

var alertLevels = map[string]levelStyle{
	"Nivel 1": {Style: "emphasis", Audience: "Supervisor de Mesa", Icon: "https://adaptivecards.io/content/People/person2.png"},
	"Nivel 2": {Style: "warning", Audience: "Jefe de Operaciones", Icon: "https://adaptivecards.io/content/People/person3.png"},
	"Nivel 3": {Style: "accent", Audience: "Jefe de Servicios", Icon: "https://adaptivecards.io/content/People/person1.png"},
	"Nivel 4": {Style: "attention", Audience: "Gerente de TI", Icon: "https://adaptivecards.io/content/People/person4.png"},
}

var defaultLevel = levelStyle{
	Style:    "attention",
	Audience: "Equipo responsable",
	Icon:     "https://adaptivecards.io/content/People/person7.png",
}

func resolveLevel(level string) levelStyle {
	if s, ok := alertLevels[level]; ok {
		return s
	}
	return defaultLevel
}

// AlertPayload is the alert body posted by the controller. Field names follow
// the controller's JSON.
type AlertPayload struct {
	Level      string `json:"nivel"`
	Title      string `json:"titulo"`
	Body       string `json:"cuerpo"`
	URL        string `json:"url"`
	TicketID   string `json:"ticket_id"`
	Subject    string `json:"subject"`
	Threshold  string `json:"umbral"`
	Requester  string `json:"requester"`
	Technician string `json:"technician"`
	CreatedAt  string `json:"created_at"`
}

// BuildAlert renders an alert as an Adaptive Card.
func BuildAlert(p AlertPayload) map[string]any {
	level := firstNonEmpty(p.Level, defaultAlertLevel)
	style := resolveLevel(level)
	title := firstNonEmpty(p.Title, defaultAlertTitle)
	url := firstNonEmpty(p.URL, defaultAlertURL)

	rows := compactRows(
		detailRow("Ticket", p.TicketID),
		detailRow("Asunto", p.Subject),
		detailRow("Solicitante", p.Requester),
		detailRow("Asignado a", p.Technician),
		detailRow("Creado", p.CreatedAt),
		detailRow("Umbral", p.Threshold),
		detailRow("Nivel", p.Level),
	)
	if len(rows) == 0 {
		rows = []any{
			detailRow("Ticket", firstNonEmpty(p.TicketID, "N/A")),
			detailRow("Umbral", firstNonEmpty(p.Threshold, "-")),
		}
	}

	return map[string]any{
		"type":    "AdaptiveCard",
		"version": cardVersion,
		"body": []any{
			map[string]any{
				"type":  "ColumnSet",
				"style": style.Style,
				"bleed": true,
				"columns": []any{
					map[string]any{
						"type":  "Column",
						"width": "auto",
						"items": []any{
							map[string]any{"type": "Image", "url": style.Icon, "size": "Small", "style": "person"},
						},
					},
					map[string]any{
						"type":  "Column",
						"width": "stretch",
						"items": []any{
							map[string]any{"type": "TextBlock", "text": title, "weight": "Bolder", "size": "Medium"},
							map[string]any{"type": "TextBlock", "text": "Dirigido a: " + style.Audience, "isSubtle": true, "spacing": "None"},
						},
					},
				},
			},
			map[string]any{"type": "TextBlock", "text": p.Body, "wrap": true, "spacing": "Small"},
			map[string]any{
				"type": "Table",
				"columns": []any{
					map[string]any{"width": 0.8},
					map[string]any{"width": 1.2},
				},
				"rows": rows,
			},
			map[string]any{
				"type": "ActionSet",
				"actions": []any{
					map[string]any{"type": "Action.OpenUrl", "title": "Ver tablero", "url": url},
				},
			},
		},
	}
}

// detailRow renders a label/value table row, or nil when value is empty.
func detailRow(label, value string) map[string]any {
	if value == "" {
		return nil
	}
	return map[string]any{
		"type": "TableRow",
		"cells": []any{
			map[string]any{
				"type":  "TableCell",
				"items": []any{map[string]any{"type": "TextBlock", "text": label, "weight": "Bolder"}},
				"style": "accent",
			},
			map[string]any{
				"type":  "TableCell",
				"items": []any{map[string]any{"type": "TextBlock", "text": value, "wrap": true}},
			},
		},
	}
}

func compactRows(rows ...map[string]any) []any {
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Attachment wraps a card for sending.
func Attachment(card map[string]any) activity.Attachment {
	return activity.Attachment{ContentType: ContentType, Content: card}
}

// FromPayload builds a card from a free-form proactive payload. Only payloads
// with type "alerta" (any case) produce a card.
func FromPayload(payload map[string]any) (map[string]any, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	kind, _ := payload["type"].(string)
	if strings.ToLower(kind) != "alerta" {
		return nil, false
	}
	return BuildAlert(alertFromMap(payload)), true
}

// alertFromMap reads the fields of an alert payload. Scalars are rendered as
// text; empty, zero, false and nested values count as absent.
func alertFromMap(m map[string]any) AlertPayload {
	str := func(key string) string {
		return scalarString(m[key])
	}
	return AlertPayload{
		Level:      str("nivel"),
		Title:      str("titulo"),
		Body:       str("cuerpo"),
		URL:        str("url"),
		TicketID:   str("ticket_id"),
		Subject:    str("subject"),
		Threshold:  str("umbral"),
		Requester:  str("requester"),
		Technician: str("technician"),
		CreatedAt:  str("created_at"),
	}
}

// scalarString formats a decoded JSON scalar. Whole numbers never use
// exponent notation, so ticket 4821 stays "4821".
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		if f, err := x.Float64(); err == nil && f == 0 {
			return ""
		}
		return x.String()
	case int, int32, int64, uint, uint32, uint64:
		s := fmt.Sprint(x)
		if s == "0" {
			return ""
		}
		return s
	case bool:
		if !x {
			return ""
		}
		return "true"
	default:
		return ""
	}
}
