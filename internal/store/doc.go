// Package store persists the proactive delivery log in SQLite.
//
// # Scope
//
// Only delivery attempts are stored. The conversation registry is memory-only
// and is rebuilt from inbound traffic after a restart.
//
// # Data Model
//
//   - Delivery: one send attempt (text or card) into a conversation, with its
//     outcome (sent or failed), the connector's activity id, and the error text
//     of failed attempts.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/teams-gateway/deliveries.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.AppendDelivery(ctx, &store.Delivery{
//	    ConversationID: convID,
//	    Kind:           store.DeliveryKindText,
//	    Status:         store.DeliverySent,
//	})
//
//	recent, err := s.ListDeliveries(ctx, store.DeliveryFilter{Status: store.DeliveryFailed})
//
// The path ":memory:" (store.MemoryPath) keeps the log in memory for the
// lifetime of the process. File databases run in WAL mode.
package store
