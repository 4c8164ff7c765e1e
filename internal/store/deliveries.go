// ABOUTME: Delivery log store methods
// ABOUTME: Append and filtered list, newest first

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timestampFormat is fixed-width so text order matches time order.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// AppendDelivery appends a delivery attempt to the log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendDelivery(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO deliveries (delivery_id, conversation_id, kind, status, activity_id, error, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ID,
		d.ConversationID,
		string(d.Kind),
		string(d.Status),
		nullString(d.ActivityID),
		nullString(d.Error),
		d.Timestamp.UTC().Format(timestampFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}

	s.logger.Debug("appended delivery",
		"id", d.ID,
		"conversation_id", d.ConversationID,
		"kind", d.Kind,
		"status", d.Status,
	)
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// normalizeDeliveryLimit applies default (100) and cap (1000) to the limit.
func normalizeDeliveryLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const deliveriesQuery = `
	SELECT delivery_id, conversation_id, kind, status, activity_id, error, ts
	FROM deliveries
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR conversation_id = ?)
	  AND (? IS NULL OR status = ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListDeliveries returns deliveries matching the filter, newest first.
func (s *SQLiteStore) ListDeliveries(ctx context.Context, f DeliveryFilter) ([]Delivery, error) {
	var since *string
	if f.Since != nil {
		v := f.Since.UTC().Format(timestampFormat)
		since = &v
	}
	conversationID := nullString(f.ConversationID)
	status := nullString(string(f.Status))

	rows, err := s.db.QueryContext(ctx, deliveriesQuery,
		since, since,
		conversationID, conversationID,
		status, status,
		normalizeDeliveryLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	deliveries := []Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %w", err)
	}
	return deliveries, nil
}

// scanDelivery scans a row into a Delivery.
func scanDelivery(scanner interface{ Scan(dest ...any) error }) (Delivery, error) {
	var d Delivery
	var kind, status, ts string
	var activityID, errMsg *string

	if err := scanner.Scan(&d.ID, &d.ConversationID, &kind, &status, &activityID, &errMsg, &ts); err != nil {
		return d, fmt.Errorf("scanning delivery: %w", err)
	}

	d.Kind = DeliveryKind(kind)
	d.Status = DeliveryStatus(status)
	if activityID != nil {
		d.ActivityID = *activityID
	}
	if errMsg != nil {
		d.Error = *errMsg
	}

	var err error
	d.Timestamp, err = time.Parse(timestampFormat, ts)
	if err != nil {
		return d, fmt.Errorf("parsing timestamp: %w", err)
	}
	return d, nil
}
