// ABOUTME: Thread-safe TTL cache that drops redelivered Bot Framework activities.
// ABOUTME: Keys activities by channel, conversation and activity id.

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/teams-gateway/internal/activity"
)

// cacheEntry stores when a key was seen and its position in the eviction list.
type cacheEntry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache is a TTL-based, size-limited set of recently processed activity keys.
// The Bot Framework retries deliveries it considers failed, so the same
// activity can arrive more than once.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size, and starts a
// background goroutine that sweeps expired keys every sweep interval.
func New(ttl time.Duration, maxSize int) *Cache {
	c := newCache(ttl, maxSize, time.Now)
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func newCache(ttl time.Duration, maxSize int, now func() time.Time) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
}

// sweepInterval keeps sweeps infrequent but no slower than once a minute.
func sweepInterval(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// ActivityKey identifies an inbound activity for deduplication. Activities
// without an id cannot be deduplicated and yield "".
func ActivityKey(a *activity.Activity) string {
	if a == nil || a.ID == "" {
		return ""
	}
	return a.ChannelID + ":" + a.ConversationID() + ":" + a.ID
}

// SeenActivity reports whether the activity was already processed inside the
// TTL, marking it as processed otherwise. Activities without a key are never
// considered duplicates.
func (c *Cache) SeenActivity(a *activity.Activity) bool {
	key := ActivityKey(a)
	if key == "" {
		return false
	}
	return c.CheckAndMark(key)
}

// ForgetActivity clears the mark left by SeenActivity so a redelivery of a
// turn that failed is processed again.
func (c *Cache) ForgetActivity(a *activity.Activity) {
	if key := ActivityKey(a); key != "" {
		c.Forget(key)
	}
}

// Forget removes key from the cache.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok {
		c.order.Remove(e.element)
		delete(c.seen, key)
	}
}

// CheckAndMark atomically checks if a key has been seen and marks it if not.
// Returns true for a duplicate, false if the key is new and now marked.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.seen[key]; ok && now.Sub(e.seenAt) < c.ttl {
		return true
	}
	c.markLocked(key, now)
	return false
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// markLocked records key as seen at now. Must be called with mu held.
func (c *Cache) markLocked(key string, now time.Time) {
	if e, ok := c.seen[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seen[key] = &cacheEntry{seenAt: now, element: c.order.PushBack(key)}
}

// evictOldestLocked removes the oldest key. Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired keys. The list is ordered by seenAt, so it stops at the
// first live key.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		e := c.seen[key]
		if e != nil && now.Sub(e.seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
