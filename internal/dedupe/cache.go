// ABOUTME: Thread-safe TTL cache for suppressing re-posted JSON-RPC requests.
// ABOUTME: Keys are session-scoped request IDs; oldest entries evict first.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry pairs a key's mark time with its position in insertion order.
type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache tracks recently seen request keys so a client retrying a POST
// does not execute the same tool call twice. Entries expire after the
// TTL and the oldest entry is evicted when the cache is full, both O(1)
// via the insertion-order list.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache holding up to maxSize keys for ttl each. A
// background goroutine sweeps expired entries until Close.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Key builds the cache key for a request within a session. Request IDs
// are only unique per client, so the session ID scopes them.
func Key(sessionID, requestID string) string {
	return sessionID + "\x00" + requestID
}

// Duplicate atomically reports whether the key was already seen within
// the TTL, marking it if not. The single check-and-mark step means two
// racing retries agree on which one proceeds.
func (c *Cache) Duplicate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && time.Since(e.markedAt) < c.ttl {
		return true
	}
	c.markLocked(key)
	return false
}

func (c *Cache) markLocked(key string) {
	now := time.Now()

	if e, ok := c.seen[key]; ok {
		e.markedAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = &entry{
		markedAt: now,
		element:  c.order.PushBack(key),
	}
}

// Len returns the number of live keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
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

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.seen {
		if now.Sub(e.markedAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
