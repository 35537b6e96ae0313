// ABOUTME: The single ordered loop coordinating index, reconciler, threads, and dispatch
// ABOUTME: Push events and operator commands are serialized through one goroutine

package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/inbox-console/internal/config"
	"github.com/2389/inbox-console/internal/dispatch"
	"github.com/2389/inbox-console/internal/feed"
	"github.com/2389/inbox-console/internal/highlight"
	"github.com/2389/inbox-console/internal/index"
	"github.com/2389/inbox-console/internal/model"
	"github.com/2389/inbox-console/internal/reconcile"
	"github.com/2389/inbox-console/internal/thread"
)

// debounceKeyRefetch is the single debounce key for list refetches. Every
// filter change schedules under the same key, so a burst of changes settles
// into exactly one fetch.
const debounceKeyRefetch = "refetch"

// refetchTimeout bounds the debounced background fetch, which runs detached
// from any caller context.
const refetchTimeout = 30 * time.Second

// LiveAgentToggler is what the engine needs from the backend to flip the
// live-agent flag. The updated record is ignored here: the push feed
// delivers the authoritative change, and reconciling it is a no-op against
// the optimistic local flip.
type LiveAgentToggler interface {
	SetLiveAgent(ctx context.Context, conversationID string, enabled bool) (*model.ConversationSummary, error)
}

// Deps are the collaborators the engine coordinates.
type Deps struct {
	Index       *index.Index
	Reconciler  *reconcile.Reconciler
	Highlights  *highlight.Tracker
	Threads     *thread.Cache
	Router      *dispatch.Router
	Broadcaster *feed.Broadcaster
	Toggler     LiveAgentToggler
	Debounce    config.DebounceConfig
	Logger      *slog.Logger
}

// Snapshot is a render-ready copy of the engine's view state.
type Snapshot struct {
	Conversations []*model.ConversationSummary
	TotalCount    int
	HasMore       bool
	Threads       []string
	Highlights    map[string]highlight.Kind
	SelectedID    string
}

// command is one closure to run on the loop goroutine.
type command struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Engine serializes everything that touches selection state through one
// goroutine: push events from the feed and operator commands are drained from
// the same loop, so an event and a selection change can never interleave.
// Fetches and thread loads run off the loop; the index and thread cache carry
// their own synchronization and staleness checks.
type Engine struct {
	index       *index.Index
	reconciler  *reconcile.Reconciler
	highlights  *highlight.Tracker
	threads     *thread.Cache
	router      *dispatch.Router
	broadcaster *feed.Broadcaster
	toggler     LiveAgentToggler
	debounce    *index.Debouncer
	searchDelay time.Duration
	filterDelay time.Duration
	logger      *slog.Logger

	cmds chan command

	// selectedID is written only on the loop goroutine.
	selectedID string
}

// New creates an engine. Call Run to start the loop. Pass nil Logger in deps
// for default.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		index:       deps.Index,
		reconciler:  deps.Reconciler,
		highlights:  deps.Highlights,
		threads:     deps.Threads,
		router:      deps.Router,
		broadcaster: deps.Broadcaster,
		toggler:     deps.Toggler,
		debounce:    index.NewDebouncer(),
		searchDelay: deps.Debounce.Search,
		filterDelay: deps.Debounce.Filter,
		logger:      logger.With("component", "engine"),
		cmds:        make(chan command),
	}
}

// Run performs the initial list load, then drains push events and commands
// until ctx is cancelled. Returns ctx.Err() on shutdown, nil when the
// broadcaster closes.
func (e *Engine) Run(ctx context.Context) error {
	defer e.debounce.Stop()

	events, subID := e.broadcaster.Subscribe(ctx)
	defer e.broadcaster.Unsubscribe(subID)

	if _, err := e.index.FetchNext(ctx); err != nil {
		// The loop still starts: the feed may recover the view, and the
		// operator can retry via a filter change.
		e.logger.Warn("initial load failed", "error", err)
	}

	e.logger.Info("engine running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handleEvent(ev)
		case cmd := <-e.cmds:
			cmd.fn(ctx)
			close(cmd.done)
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func(context.Context)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleEvent feeds one push event to the reconciler under the current
// selection. Stale events are expected and dropped quietly.
func (e *Engine) handleEvent(ev *model.PushEvent) {
	if _, err := e.reconciler.Reconcile(ev, e.selectedID); err != nil {
		if errors.Is(err, model.ErrStaleEvent) {
			return
		}
		e.logger.Warn("event reconcile failed", "event_id", ev.ID, "error", err)
	}
}

// Select opens a conversation: selection state and the highlight clear apply
// immediately on the loop, then the full thread loads off the loop and is
// backfilled once it arrives. Returns model.ErrNotFound for an unknown id and
// model.ErrSuperseded when the operator selected something else while the
// thread was loading; the loaded messages are still returned in that case so
// a cache layer above can keep them.
//
// Only copies of the thread cross goroutines. The summary pointer stays on
// the loop, where the reconciler may be replacing its thread concurrently
// with the off-loop fetch.
func (e *Engine) Select(ctx context.Context, conversationID string) ([]model.MessageRecord, error) {
	var cached []model.MessageRecord
	found := false
	err := e.do(ctx, func(context.Context) {
		conv := e.index.Get(conversationID)
		if conv == nil {
			return
		}
		found = true
		e.selectedID = conversationID
		e.reconciler.MarkOpened(conversationID)
		if len(conv.FullThread) > 0 {
			cached = append([]model.MessageRecord(nil), conv.FullThread...)
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.ErrNotFound
	}
	if cached != nil {
		return cached, nil
	}

	msgs, err := e.threads.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	superseded := false
	err = e.do(ctx, func(context.Context) {
		if e.selectedID != conversationID {
			superseded = true
			return
		}
		e.index.Apply(func(items []*model.ConversationSummary) []*model.ConversationSummary {
			for _, conv := range items {
				if conv.ID != conversationID {
					continue
				}
				if len(conv.FullThread) == 0 {
					// An event may have merged a fresher thread while the
					// load was in flight; only backfill when nothing beat
					// us to it.
					thread.Backfill(conv, msgs)
				}
				msgs = append([]model.MessageRecord(nil), conv.FullThread...)
				break
			}
			return items
		})
	})
	if err != nil {
		return nil, err
	}
	if superseded {
		return msgs, model.ErrSuperseded
	}
	return msgs, nil
}

// Deselect closes the open conversation, if any.
func (e *Engine) Deselect(ctx context.Context) error {
	return e.do(ctx, func(context.Context) {
		e.selectedID = ""
	})
}

// Send dispatches body on the selected conversation's channel. Returns
// model.ErrNotFound when nothing is selected. See dispatch.Router for the
// validation and no-rollback contract.
//
// Validation and the optimistic local append run on the loop; the network
// delivery runs on the caller's goroutine so a slow transport only suspends
// the sender, not event draining.
func (e *Engine) Send(ctx context.Context, body string) (*dispatch.Result, error) {
	var out *dispatch.Outbound
	var prepErr error
	err := e.do(ctx, func(context.Context) {
		conv := e.index.Get(e.selectedID)
		out, prepErr = e.router.Prepare(conv, body)
	})
	if err != nil {
		return nil, err
	}
	if prepErr != nil {
		return nil, prepErr
	}

	res := &dispatch.Result{MessageID: out.MessageID()}
	if err := e.router.Deliver(ctx, out); err != nil {
		return res, err
	}
	res.Delivered = true
	return res, nil
}

// ApplyFilter replaces the filter state and schedules a debounced refetch.
// The new filter takes effect immediately for staleness purposes; in-flight
// fetches under the old filter are discarded on arrival. A search text change
// settles on the longer search delay, any other change on the filter delay.
func (e *Engine) ApplyFilter(f model.FilterCriteria) error {
	prev := e.index.Filter()
	if err := e.index.SetFilter(f); err != nil {
		return err
	}

	delay := e.filterDelay
	if f.SearchQuery != prev.SearchQuery {
		delay = e.searchDelay
	}

	e.debounce.Schedule(debounceKeyRefetch, delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
		defer cancel()
		if _, err := e.index.FetchPage(ctx, 0, true); err != nil {
			e.logger.Warn("list refetch failed", "error", err)
		}
	})
	return nil
}

// LoadMore fetches the next page under the current filter and appends it.
func (e *Engine) LoadMore(ctx context.Context) error {
	_, err := e.index.FetchNext(ctx)
	return err
}

// ToggleLiveAgent flips the live-agent flag optimistically: the local copy
// changes first, the backend call follows, and a failed call reverts the
// local copy.
func (e *Engine) ToggleLiveAgent(ctx context.Context, conversationID string, enabled bool) error {
	conv := e.index.Get(conversationID)
	if conv == nil {
		return model.ErrNotFound
	}

	var prev bool
	e.index.Apply(func(items []*model.ConversationSummary) []*model.ConversationSummary {
		prev = conv.IsLiveAgent
		conv.IsLiveAgent = enabled
		return items
	})

	if _, err := e.toggler.SetLiveAgent(ctx, conversationID, enabled); err != nil {
		e.index.Apply(func(items []*model.ConversationSummary) []*model.ConversationSummary {
			conv.IsLiveAgent = prev
			return items
		})
		return err
	}

	e.logger.Debug("live agent toggled",
		"conversation_id", conversationID,
		"enabled", enabled)
	return nil
}

// Snapshot returns a render-ready copy of the current view state.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := e.do(ctx, func(context.Context) {
		snap = Snapshot{
			Conversations: e.index.Items(),
			TotalCount:    e.index.TotalCount(),
			HasMore:       e.index.HasMore(),
			Threads:       e.index.Threads(),
			Highlights:    e.highlights.Snapshot(),
			SelectedID:    e.selectedID,
		}
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
