// ABOUTME: Per-conversation transient highlight markers with auto-expiry
// ABOUTME: absent -> new|updated -> absent; cleared by timeout or by opening

package highlight

import (
	"log/slog"
	"sync"
	"time"
)

// Kind is the highlight flavor shown in the conversation list.
type Kind string

// Highlight kinds. An insert-type event marks "new", an update-type event
// marks "updated".
const (
	KindNew     Kind = "new"
	KindUpdated Kind = "updated"
)

// entry is one live highlight.
type entry struct {
	kind  Kind
	timer *time.Timer
}

// Tracker holds the transient highlight state per conversation id. A
// conversation carries at most one highlight; a second event before expiry
// replaces the kind and restarts the timer rather than stacking.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	logger  *slog.Logger
	closed  bool
}

// NewTracker creates a tracker whose highlights expire after ttl.
// Pass nil logger for default.
func NewTracker(ttl time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		entries: make(map[string]*entry),
		ttl:     ttl,
		logger:  logger.With("component", "highlight"),
	}
}

// Mark sets the highlight for a conversation, replacing any existing one
// and restarting its expiry clock.
func (t *Tracker) Mark(conversationID string, kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if e, ok := t.entries[conversationID]; ok {
		e.timer.Stop()
		e.kind = kind
		e.timer = t.expireAfterLocked(conversationID)
		return
	}

	t.entries[conversationID] = &entry{
		kind:  kind,
		timer: t.expireAfterLocked(conversationID),
	}
	t.logger.Debug("highlight set", "conversation_id", conversationID, "kind", kind)
}

// expireAfterLocked arms the expiry timer for an id. Must be called with mu
// held.
func (t *Tracker) expireAfterLocked(conversationID string) *time.Timer {
	return time.AfterFunc(t.ttl, func() {
		t.Clear(conversationID)
	})
}

// Clear removes a conversation's highlight, if any. Called on expiry and
// when the operator opens the conversation.
func (t *Tracker) Clear(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[conversationID]
	if !ok {
		return
	}
	e.timer.Stop()
	delete(t.entries, conversationID)

	t.logger.Debug("highlight cleared", "conversation_id", conversationID)
}

// Get returns the highlight kind for a conversation, if one is live.
func (t *Tracker) Get(conversationID string) (Kind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[conversationID]
	if !ok {
		return "", false
	}
	return e.kind, true
}

// Snapshot returns the current id→kind mapping.
func (t *Tracker) Snapshot() map[string]Kind {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Kind, len(t.entries))
	for id, e := range t.entries {
		out[id] = e.kind
	}
	return out
}

// Close stops all timers and rejects future marks. Safe to call multiple
// times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for id, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, id)
	}
}
