// ABOUTME: In-memory fan-out of push events to in-process subscribers
// ABOUTME: Buffered per-subscriber channels, non-blocking publish, ctx auto-cleanup

package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/inbox-console/internal/model"
)

// subscriberBufferSize is the channel buffer for each subscriber. A full
// burst of reconnect replays fits without blocking the feed reader.
const subscriberBufferSize = 64

// Broadcaster fans push events out to in-process subscribers (the engine,
// a CLI tail, tests). The feed is account-scoped, so every subscriber sees
// every event; staleness and relevance are the reconciler's concern.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan *model.PushEvent // subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan *model.PushEvent),
		logger:      logger.With("component", "feed"),
	}
}

// Subscribe registers a subscriber. Returns the event channel and a
// subscription ID. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan *model.PushEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *model.PushEvent, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish delivers an event to all subscribers. Non-blocking: events are
// dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(event *model.PushEvent) {
	b.mu.RLock()
	targets := make([]chan *model.PushEvent, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber", "event_id", event.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("broadcaster closed")
}
