// Package convstore is the in-memory conversation reference registry used for
// proactive messaging.
//
// # Overview
//
// Every inbound message activity is passed to Store.Remember, which stores a
// re-addressable reference keyed by conversation id and updates two secondary
// indexes: channel user id and AAD object id. The proactive messaging path
// later calls Store.Resolve with whichever key it has.
//
//	store := convstore.New()
//	if stored := store.Remember(act); stored != nil {
//	    logger.Debug("remembered", "conversation_id", stored.ConversationID)
//	}
//	ref := store.Resolve(convstore.Lookup{UserID: "29:abc"})
//
// # Consistency
//
// A single mutex covers all three maps, so a reader never observes a
// secondary index pointing at a conversation that is not yet in the primary
// map. Each public method is one critical section; none of them block on I/O.
//
// # Lifetime
//
// Entries live for the life of the process and are overwritten in full on
// each remember. Nothing is persisted. WithMaxConversations adds an optional
// bound with least-recently-remembered eviction; the default is unbounded.
package convstore
