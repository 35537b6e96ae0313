// ABOUTME: Merges push events into the in-memory conversation index
// ABOUTME: Staleness guard, change classification, upsert with conditional move-to-front

package reconcile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/2389/inbox-console/internal/highlight"
	"github.com/2389/inbox-console/internal/index"
	"github.com/2389/inbox-console/internal/model"
	"github.com/2389/inbox-console/internal/preview"
)

// Reconciler folds push events into the index and highlight state. The
// selected conversation is passed explicitly into each call rather than read
// from shared state, so staleness and ordering rules are testable in
// isolation.
type Reconciler struct {
	mu            sync.Mutex
	index         *index.Index
	highlights    *highlight.Tracker
	lastProcessed time.Time
	logger        *slog.Logger
}

// Result describes what one reconcile pass did.
type Result struct {
	Inserted         bool
	MovedToFront     bool
	MergedOpenThread bool
	Highlighted      highlight.Kind // empty when no highlight was set
}

// changeClass separates operator-driven live-agent toggles from genuine
// activity. Toggles are frequent and must not compete for attention the way
// a new inbound message does.
type changeClass struct {
	liveAgentChanged   bool
	otherFieldsChanged bool
}

// New creates a reconciler over the given index and highlight tracker.
// Pass nil logger for default.
func New(ix *index.Index, hl *highlight.Tracker, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		index:      ix,
		highlights: hl,
		logger:     logger.With("component", "reconcile"),
	}
}

// Reconcile merges one push event. selectedID is the id of the conversation
// currently open in the view, or empty. Returns model.ErrStaleEvent for
// events whose commit timestamp does not advance past the last accepted
// one; stale events leave the index and highlight state untouched.
func (r *Reconciler) Reconcile(ev *model.PushEvent, selectedID string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !ev.CommitTimestamp.After(r.lastProcessed) {
		r.logger.Debug("rejecting stale event",
			"event_id", ev.ID,
			"commit", ev.CommitTimestamp,
			"last_processed", r.lastProcessed)
		return nil, model.ErrStaleEvent
	}

	switch ev.Kind {
	case model.RecordUser:
		return r.reconcileUser(ev), nil
	default:
		return r.reconcileConversation(ev, selectedID), nil
	}
}

// MarkOpened records that the operator opened a conversation: the highlight
// is cleared immediately and the processed timestamp advances to now so
// events already visible in the open view cannot re-highlight it.
func (r *Reconciler) MarkOpened(conversationID string) {
	r.mu.Lock()
	r.lastProcessed = time.Now()
	r.mu.Unlock()

	r.highlights.Clear(conversationID)
}

// LastProcessed returns the staleness watermark.
func (r *Reconciler) LastProcessed() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastProcessed
}

// reconcileConversation applies an insert/update for a conversation record.
// Must be called with mu held.
func (r *Reconciler) reconcileConversation(ev *model.PushEvent, selectedID string) *Result {
	res := &Result{}
	incoming := ev.NewConversation
	class := classify(ev)

	r.index.Apply(func(items []*model.ConversationSummary) []*model.ConversationSummary {
		existing, pos := find(items, incoming.ID)
		if existing == nil {
			// Unknown id: construct a summary and prepend it, whatever the
			// event type claims. Idempotence for duplicated inserts is
			// handled by the upsert path, not here.
			fresh := *incoming
			res.Inserted = true
			if selectedID == incoming.ID {
				res.MergedOpenThread = len(fresh.FullThread) > 0
			}
			return append([]*model.ConversationSummary{&fresh}, items...)
		}

		mergeSummary(existing, incoming)

		if selectedID == existing.ID && len(incoming.FullThread) > 0 {
			// Keep the open view live without a refetch. Edits arrive as
			// whole-thread replacements, so the event's thread wins.
			existing.FullThread = append([]model.MessageRecord(nil), incoming.FullThread...)
			existing.MessageCount = len(existing.FullThread)
			if last := lastMessage(existing.FullThread); last != nil {
				existing.LastMessagePreview = preview.Line(last.Body, preview.DefaultMaxLen)
			}
			res.MergedOpenThread = true
		}

		if class.otherFieldsChanged && !class.liveAgentChanged && pos != 0 {
			items = append(items[:pos], items[pos+1:]...)
			items = append([]*model.ConversationSummary{existing}, items...)
			res.MovedToFront = true
		}
		return items
	})

	if res.Inserted {
		r.index.IncrementTotal()
	}

	// A pure live-agent toggle is not activity: no highlight, and the
	// watermark stays put so it cannot mask a slower content event.
	if !class.otherFieldsChanged {
		r.logger.Debug("live-agent toggle reconciled", "conversation_id", incoming.ID)
		return res
	}

	// The open conversation renders its own thread; highlighting it would
	// flag activity the operator is already looking at.
	if selectedID != incoming.ID {
		kind := highlight.KindUpdated
		if ev.Type == model.EventInsert {
			kind = highlight.KindNew
		}
		r.highlights.Mark(incoming.ID, kind)
		res.Highlighted = kind
	}

	r.lastProcessed = ev.CommitTimestamp

	r.logger.Debug("conversation reconciled",
		"conversation_id", incoming.ID,
		"inserted", res.Inserted,
		"moved_to_front", res.MovedToFront,
		"merged_open_thread", res.MergedOpenThread)

	return res
}

// reconcileUser patches counterparty identity across every matching summary.
// No reordering, no highlighting. Must be called with mu held.
func (r *Reconciler) reconcileUser(ev *model.PushEvent) *Result {
	user := ev.NewUser
	patched := 0

	r.index.Apply(func(items []*model.ConversationSummary) []*model.ConversationSummary {
		for _, c := range items {
			if c.Counterparty.ID != user.ID {
				continue
			}
			c.Counterparty.Name = user.Name
			c.Counterparty.AvatarURL = user.AvatarURL
			c.Counterparty.Email = user.Email
			patched++
		}
		return items
	})

	r.logger.Debug("user record reconciled", "user_id", user.ID, "patched", patched)
	return &Result{}
}

// classify compares old and new records. An update without an old record is
// treated as a content change.
func classify(ev *model.PushEvent) changeClass {
	old, cur := ev.OldConversation, ev.NewConversation
	if old == nil {
		return changeClass{otherFieldsChanged: true}
	}

	c := changeClass{
		liveAgentChanged: old.IsLiveAgent != cur.IsLiveAgent,
	}
	if old.MessageCount != cur.MessageCount ||
		old.LastMessagePreview != cur.LastMessagePreview ||
		len(old.FullThread) != len(cur.FullThread) {
		c.otherFieldsChanged = true
	}
	return c
}

// mergeSummary folds the event's fields into the cached summary, preserving
// the lazily loaded thread unless the caller replaces it.
func mergeSummary(dst, src *model.ConversationSummary) {
	dst.ThreadID = src.ThreadID
	dst.Channel = src.Channel
	dst.Counterparty = src.Counterparty
	dst.MessageCount = src.MessageCount
	dst.IsLiveAgent = src.IsLiveAgent
	if src.LastMessagePreview != "" {
		dst.LastMessagePreview = src.LastMessagePreview
	}
	if src.UpdatedAt.After(dst.UpdatedAt) {
		dst.UpdatedAt = src.UpdatedAt
	}
	if src.ChannelAccountID != "" {
		dst.ChannelAccountID = src.ChannelAccountID
	}
	if src.ChannelAccountName != "" {
		dst.ChannelAccountName = src.ChannelAccountName
	}
	if src.InboundMessageID != "" {
		dst.InboundMessageID = src.InboundMessageID
	}
}

func find(items []*model.ConversationSummary, id string) (*model.ConversationSummary, int) {
	for i, c := range items {
		if c.ID == id {
			return c, i
		}
	}
	return nil, -1
}

func lastMessage(thread []model.MessageRecord) *model.MessageRecord {
	if len(thread) == 0 {
		return nil
	}
	return &thread[len(thread)-1]
}
