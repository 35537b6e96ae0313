// ABOUTME: Thread-safe TTL cache for deduplicating push-event ids
// ABOUTME: Absorbs at-least-once feed delivery before events reach the reconciler

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the mark time and list element for a cached event id.
type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache tracks recently seen push-event ids. The feed consults it before
// publishing so a reconnect replay never reaches the reconciler twice.
// Size-bounded with oldest-first eviction; expired ids are swept in the
// background.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // event ids in mark order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates an event-id cache with the given TTL and maximum size.
// A background goroutine periodically sweeps expired entries.
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

// Seen atomically checks whether an event id was already delivered and marks
// it if not. Returns true for a duplicate, false for a first delivery.
func (c *Cache) Seen(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[eventID]; ok && time.Since(e.markedAt) < c.ttl {
		// Refresh so a burst of redeliveries keeps the id hot
		e.markedAt = time.Now()
		c.order.MoveToBack(e.element)
		return true
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(eventID)
	c.seen[eventID] = &entry{markedAt: time.Now(), element: elem}
	return false
}

// Len returns the number of tracked ids, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// evictOldest removes the oldest id. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}

// sweepLoop periodically removes expired ids until Close.
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
	for id, e := range c.seen {
		if now.Sub(e.markedAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, id)
		}
	}
}

// Close stops the background sweep. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
