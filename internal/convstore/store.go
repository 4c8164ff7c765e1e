// ABOUTME: In-memory registry of conversation references for proactive messaging
// ABOUTME: One lock guards the primary map and the user / AAD secondary indexes

package convstore

import (
	"container/list"
	"encoding/json"
	"sync"

	"github.com/2389/teams-gateway/internal/activity"
)

// StoredConversation is one remembered conversation. Optional fields are ""
// when the activity did not carry them. The Reference is only ever replaced
// wholesale, never mutated in place.
type StoredConversation struct {
	Reference      activity.ConversationReference
	ConversationID string
	UserID         string
	AADObjectID    string
	TenantID       string
	ServiceURL     string
	UserName       string
}

// Summary returns the descriptive fields without the reference.
func (s *StoredConversation) Summary() Summary {
	return Summary{
		ConversationID: s.ConversationID,
		UserID:         s.UserID,
		AADObjectID:    s.AADObjectID,
		TenantID:       s.TenantID,
		ServiceURL:     s.ServiceURL,
		UserName:       s.UserName,
	}
}

func (s *StoredConversation) clone() *StoredConversation {
	out := *s
	out.Reference = s.Reference.Clone()
	return &out
}

// Summary is the externally visible view of a stored conversation.
type Summary struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	AADObjectID    string `json:"aad_object_id"`
	TenantID       string `json:"tenant_id"`
	ServiceURL     string `json:"service_url"`
	UserName       string `json:"user_name"`
}

// MarshalJSON writes absent optional fields as null rather than "".
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ConversationID string  `json:"conversation_id"`
		UserID         *string `json:"user_id"`
		AADObjectID    *string `json:"aad_object_id"`
		TenantID       *string `json:"tenant_id"`
		ServiceURL     *string `json:"service_url"`
		UserName       *string `json:"user_name"`
	}{
		ConversationID: s.ConversationID,
		UserID:         nullable(s.UserID),
		AADObjectID:    nullable(s.AADObjectID),
		TenantID:       nullable(s.TenantID),
		ServiceURL:     nullable(s.ServiceURL),
		UserName:       nullable(s.UserName),
	})
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Lookup selects a conversation by one of three keys. Precedence is fixed:
// ConversationID, then UserID, then AADObjectID.
type Lookup struct {
	ConversationID string
	UserID         string
	AADObjectID    string
}

// entry pairs a stored conversation with its position in the recency list.
type entry struct {
	stored  *StoredConversation
	element *list.Element
}

// Store maps conversation ids to references, with secondary indexes by user
// id and by AAD object id.
//
// The secondary indexes are last-writer-wins. When a user is remembered under
// a new conversation id, the index moves to the new conversation and the old
// one stays reachable only by its own conversation id. This is intentional and
// not reconciled.
type Store struct {
	mu             sync.Mutex
	byConversation map[string]*entry
	userIndex      map[string]string
	aadIndex       map[string]string
	order          *list.List // conversation ids, least recently remembered at front

	maxConversations int
	onEvict          func(Summary)
}

// Option configures a Store.
type Option func(*Store)

// WithMaxConversations bounds the number of stored conversations. When a new
// conversation would exceed n, the least recently remembered one is evicted.
// n <= 0 means unbounded, which is the default.
func WithMaxConversations(n int) Option {
	return func(s *Store) {
		s.maxConversations = n
	}
}

// WithEvictHook registers a callback invoked after each eviction, outside the lock.
func WithEvictHook(fn func(Summary)) Option {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		byConversation: make(map[string]*entry),
		userIndex:      make(map[string]string),
		aadIndex:       make(map[string]string),
		order:          list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Remember records the conversation an activity belongs to. It returns a copy
// of the stored record, or nil when the activity has no conversation id.
func (s *Store) Remember(a *activity.Activity) *StoredConversation {
	return s.RememberReference(activity.GetConversationReference(a))
}

// RememberReference records an already extracted reference. Same contract as Remember.
func (s *Store) RememberReference(ref activity.ConversationReference) *StoredConversation {
	conversationID := ref.ConversationID()
	if conversationID == "" {
		return nil
	}

	stored := &StoredConversation{
		Reference:      ref.Clone(),
		ConversationID: conversationID,
		UserID:         ref.UserID(),
		AADObjectID:    ref.AADObjectID(),
		ServiceURL:     ref.ServiceURL,
	}
	if ref.Conversation != nil {
		stored.TenantID = ref.Conversation.TenantID
	}
	if ref.User != nil {
		stored.UserName = ref.User.Name
	}

	evicted := s.store(stored)
	if s.onEvict != nil {
		for _, sum := range evicted {
			s.onEvict(sum)
		}
	}
	return stored.clone()
}

// store writes all three maps in one critical section and returns the
// summaries of any conversations evicted to make room.
func (s *Store) store(stored *StoredConversation) []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := stored.ConversationID
	var evicted []Summary

	if e, ok := s.byConversation[id]; ok {
		e.stored = stored
		s.order.MoveToBack(e.element)
	} else {
		for s.maxConversations > 0 && len(s.byConversation) >= s.maxConversations {
			sum, ok := s.evictOldestLocked()
			if !ok {
				break
			}
			evicted = append(evicted, sum)
		}
		s.byConversation[id] = &entry{stored: stored, element: s.order.PushBack(id)}
	}

	if stored.UserID != "" {
		s.userIndex[stored.UserID] = id
	}
	if stored.AADObjectID != "" {
		s.aadIndex[stored.AADObjectID] = id
	}
	return evicted
}

// evictOldestLocked drops the least recently remembered conversation and any
// index entries still pointing at it. Must be called with mu held.
func (s *Store) evictOldestLocked() (Summary, bool) {
	front := s.order.Front()
	if front == nil {
		return Summary{}, false
	}
	id, _ := front.Value.(string)
	s.order.Remove(front)

	e := s.byConversation[id]
	delete(s.byConversation, id)
	if e == nil {
		return Summary{}, false
	}

	if e.stored.UserID != "" && s.userIndex[e.stored.UserID] == id {
		delete(s.userIndex, e.stored.UserID)
	}
	if e.stored.AADObjectID != "" && s.aadIndex[e.stored.AADObjectID] == id {
		delete(s.aadIndex, e.stored.AADObjectID)
	}
	return e.stored.Summary(), true
}

// Resolve finds a stored reference. The first non-empty key in precedence
// order decides the conversation id, even if that id is unknown. Returns a
// copy of the reference, or nil when nothing matches.
func (s *Store) Resolve(q Lookup) *activity.ConversationReference {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := q.ConversationID
	if key == "" && q.UserID != "" {
		key = s.userIndex[q.UserID]
	}
	if key == "" && q.AADObjectID != "" {
		key = s.aadIndex[q.AADObjectID]
	}
	if key == "" {
		return nil
	}

	e, ok := s.byConversation[key]
	if !ok {
		return nil
	}
	ref := e.stored.Reference.Clone()
	return &ref
}

// Summaries returns a point-in-time snapshot of every stored conversation.
// Order is unspecified.
func (s *Store) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.byConversation))
	for _, e := range s.byConversation {
		out = append(out, e.stored.Summary())
	}
	return out
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byConversation)
}
