// ABOUTME: Tests for the engine loop
// ABOUTME: Covers event application, selection, dispatch wiring, debounced refetch, optimistic toggles

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/inbox-console/internal/config"
	"github.com/2389/inbox-console/internal/dispatch"
	"github.com/2389/inbox-console/internal/feed"
	"github.com/2389/inbox-console/internal/highlight"
	"github.com/2389/inbox-console/internal/index"
	"github.com/2389/inbox-console/internal/model"
	"github.com/2389/inbox-console/internal/reconcile"
	"github.com/2389/inbox-console/internal/thread"
)

type fakeFetcher struct {
	mu         sync.Mutex
	calls      int
	lastFilter model.FilterCriteria
	page       *model.Page
	err        error
}

func (f *fakeFetcher) ListConversations(_ context.Context, filter model.FilterCriteria, _, _ int) (*model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) last() model.FilterCriteria {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFilter
}

type fakeLoader struct {
	mu      sync.Mutex
	calls   int
	threads map[string][]model.MessageRecord
	block   chan struct{} // when set, GetThread waits on it
}

func (f *fakeLoader) GetThread(_ context.Context, conversationID string) ([]model.MessageRecord, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	msgs := f.threads[conversationID]
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return msgs, nil
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeToggler struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (f *fakeToggler) SetLiveAgent(_ context.Context, id string, enabled bool) (*model.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enabled)
	if f.err != nil {
		return nil, f.err
	}
	return &model.ConversationSummary{ID: id, IsLiveAgent: enabled}, nil
}

type fakeSender struct {
	calls atomic.Int64
	err   error
	block chan struct{} // when set, Send waits on it
}

func (f *fakeSender) Send(context.Context, model.DispatchTarget, string) error {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.err
}

type fakeAppender struct{}

func (fakeAppender) AppendMessages(context.Context, string, []model.MessageRecord) error {
	return nil
}

func summary(id string) *model.ConversationSummary {
	return &model.ConversationSummary{
		ID:                 id,
		Channel:            model.ChannelTelegram,
		Counterparty:       model.Counterparty{ID: "user-" + id, Name: "Pat"},
		ChannelAccountID:   "1001",
		ChannelAccountName: "pat_q",
		InboundMessageID:   "42",
		LastMessagePreview: "hello",
		MessageCount:       1,
		UpdatedAt:          time.Now().Add(-time.Hour),
	}
}

type testRig struct {
	engine  *Engine
	fetcher *fakeFetcher
	loader  *fakeLoader
	toggler *fakeToggler
	sender  *fakeSender
	bus     *feed.Broadcaster
}

func newRig(t *testing.T, listed ...*model.ConversationSummary) *testRig {
	t.Helper()

	fetcher := &fakeFetcher{page: &model.Page{Items: listed, TotalCount: len(listed)}}
	loader := &fakeLoader{threads: map[string][]model.MessageRecord{}}
	toggler := &fakeToggler{}
	sender := &fakeSender{}

	ix := index.New(fetcher, 20, nil)
	hl := highlight.NewTracker(time.Minute, nil)
	t.Cleanup(hl.Close)
	rec := reconcile.New(ix, hl, nil)
	threads := thread.NewCache(loader, nil)
	router := dispatch.NewRouter(fakeAppender{}, nil)
	router.Register(model.ChannelTelegram, sender)
	bus := feed.NewBroadcaster(nil)

	eng := New(Deps{
		Index:       ix,
		Reconciler:  rec,
		Highlights:  hl,
		Threads:     threads,
		Router:      router,
		Broadcaster: bus,
		Toggler:     toggler,
		Debounce:    config.DebounceConfig{Search: 40 * time.Millisecond, Filter: 20 * time.Millisecond},
	})

	go eng.Run(context.Background())

	// Snapshot succeeding means the loop is draining commands.
	_, err := eng.Snapshot(context.Background())
	require.NoError(t, err)

	return &testRig{engine: eng, fetcher: fetcher, loader: loader, toggler: toggler, sender: sender, bus: bus}
}

func TestRunInitialLoad(t *testing.T) {
	rig := newRig(t, summary("a"), summary("b"))

	snap, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Conversations, 2)
	assert.Equal(t, 2, snap.TotalCount)
	assert.Empty(t, snap.SelectedID)
}

func TestEventInsertReachesTheList(t *testing.T) {
	rig := newRig(t, summary("a"))

	fresh := summary("b")
	rig.bus.Publish(&model.PushEvent{
		ID:              "ev-1",
		Kind:            model.RecordConversation,
		Type:            model.EventInsert,
		NewConversation: fresh,
		CommitTimestamp: time.Now().Add(time.Second),
	})

	require.Eventually(t, func() bool {
		snap, err := rig.engine.Snapshot(context.Background())
		return err == nil && len(snap.Conversations) == 2
	}, time.Second, 5*time.Millisecond)

	snap, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Conversations[0].ID, "insert lands at the front")
	assert.Equal(t, 2, snap.TotalCount)
	assert.Equal(t, highlight.KindNew, snap.Highlights["b"])
}

func TestSelectLoadsThreadOnce(t *testing.T) {
	rig := newRig(t, summary("a"))
	rig.loader.threads["a"] = []model.MessageRecord{
		{ID: "m1", AuthorRole: model.RoleUser, Body: "hi there"},
		{ID: "m2", AuthorRole: model.RoleBot, Body: "how can I help?"},
	}

	msgs, err := rig.engine.Select(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 1, rig.loader.callCount())

	snap, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", snap.SelectedID)
	conv := snap.Conversations[0]
	assert.Equal(t, 2, conv.MessageCount, "count corrected from the real thread")
	assert.Equal(t, "how can I help?", conv.LastMessagePreview)

	// Reopening hits the cached thread.
	msgs, err = rig.engine.Select(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 1, rig.loader.callCount())
}

func TestSelectUnknownConversation(t *testing.T) {
	rig := newRig(t, summary("a"))

	_, err := rig.engine.Select(context.Background(), "nope")
	require.ErrorIs(t, err, model.ErrNotFound)

	snap, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.SelectedID, "failed select leaves selection unchanged")
}

func TestSelectSupersededByFasterSelection(t *testing.T) {
	rig := newRig(t, summary("a"), summary("b"))
	release := make(chan struct{})
	rig.loader.block = release
	rig.loader.threads["a"] = []model.MessageRecord{{ID: "ma", AuthorRole: model.RoleUser, Body: "slow"}}
	rig.loader.threads["b"] = []model.MessageRecord{{ID: "mb", AuthorRole: model.RoleUser, Body: "fast"}}

	type outcome struct {
		msgs []model.MessageRecord
		err  error
	}
	slowDone := make(chan outcome, 1)
	go func() {
		msgs, err := rig.engine.Select(context.Background(), "a")
		slowDone <- outcome{msgs, err}
	}()

	// Wait for the slow load to be in flight, then select something else.
	require.Eventually(t, func() bool { return rig.loader.callCount() == 1 }, time.Second, time.Millisecond)

	fastDone := make(chan outcome, 1)
	go func() {
		msgs, err := rig.engine.Select(context.Background(), "b")
		fastDone <- outcome{msgs, err}
	}()
	require.Eventually(t, func() bool { return rig.loader.callCount() == 2 }, time.Second, time.Millisecond)

	close(release)

	fast := <-fastDone
	require.NoError(t, fast.err)

	slow := <-slowDone
	require.ErrorIs(t, slow.err, model.ErrSuperseded)
	require.Len(t, slow.msgs, 1, "superseded load still hands back the messages")

	snap, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", snap.SelectedID)
}

func TestSendWithoutSelection(t *testing.T) {
	rig := newRig(t, summary("a"))

	_, err := rig.engine.Send(context.Background(), "hello")
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Zero(t, rig.sender.calls.Load())
}

func TestSendOnSelectedConversation(t *testing.T) {
	rig := newRig(t, summary("a"))
	rig.loader.threads["a"] = []model.MessageRecord{
		{ID: "m1", AuthorRole: model.RoleUser, Body: "hi"},
	}

	_, err := rig.engine.Select(context.Background(), "a")
	require.NoError(t, err)

	res, err := rig.engine.Send(context.Background(), "right with you")
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, int64(1), rig.sender.calls.Load())

	snap, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	conv := snap.Conversations[0]
	require.Len(t, conv.FullThread, 2)
	assert.Equal(t, res.MessageID, conv.FullThread[1].ID)
}

func TestSendFailureKeepsLocalMessage(t *testing.T) {
	rig := newRig(t, summary("a"))
	rig.sender.err = errors.New("upstream 502")
	rig.loader.threads["a"] = []model.MessageRecord{
		{ID: "m1", AuthorRole: model.RoleUser, Body: "hi"},
	}

	_, err := rig.engine.Select(context.Background(), "a")
	require.NoError(t, err)

	res, err := rig.engine.Send(context.Background(), "did this arrive?")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Delivered)

	snap, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Conversations[0].FullThread, 2, "optimistic append survives the failure")
}

func TestApplyFilterDebouncesIntoOneFetch(t *testing.T) {
	rig := newRig(t, summary("a"))
	base := rig.fetcher.callCount()

	require.NoError(t, rig.engine.ApplyFilter(model.FilterCriteria{SearchQuery: "or"}))
	require.NoError(t, rig.engine.ApplyFilter(model.FilterCriteria{SearchQuery: "ord"}))
	require.NoError(t, rig.engine.ApplyFilter(model.FilterCriteria{SearchQuery: "order"}))

	require.Eventually(t, func() bool {
		return rig.fetcher.callCount() == base+1
	}, time.Second, 5*time.Millisecond)

	// Settle past another debounce window: still just the one fetch.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, base+1, rig.fetcher.callCount())
}

func TestApplyFilterRejectsInvalidCriteria(t *testing.T) {
	rig := newRig(t, summary("a"))
	base := rig.fetcher.callCount()

	err := rig.engine.ApplyFilter(model.FilterCriteria{Channel: model.Channel("smoke-signal")})
	require.ErrorIs(t, err, model.ErrUnknownChannel)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, base, rig.fetcher.callCount(), "invalid filter schedules nothing")
}

func TestToggleLiveAgentOptimistic(t *testing.T) {
	rig := newRig(t, summary("a"))

	require.NoError(t, rig.engine.ToggleLiveAgent(context.Background(), "a", true))

	snap, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Conversations[0].IsLiveAgent)
	assert.Equal(t, []bool{true}, rig.toggler.calls)
}

func TestToggleLiveAgentRevertsOnBackendFailure(t *testing.T) {
	rig := newRig(t, summary("a"))
	rig.toggler.err = errors.New("conflict")

	err := rig.engine.ToggleLiveAgent(context.Background(), "a", true)
	require.Error(t, err)

	snap, snapErr := rig.engine.Snapshot(context.Background())
	require.NoError(t, snapErr)
	assert.False(t, snap.Conversations[0].IsLiveAgent, "failed toggle reverts the local flag")
}

func TestToggleLiveAgentUnknownConversation(t *testing.T) {
	rig := newRig(t, summary("a"))

	err := rig.engine.ToggleLiveAgent(context.Background(), "nope", true)
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, rig.toggler.calls)
}

func TestSelectWhileEventsReplaceOpenThread(t *testing.T) {
	rig := newRig(t, summary("a"))
	rig.loader.threads["a"] = []model.MessageRecord{
		{ID: "m1", AuthorRole: model.RoleUser, Body: "hi"},
	}

	_, err := rig.engine.Select(context.Background(), "a")
	require.NoError(t, err)

	// Reopen repeatedly while update events keep replacing the open thread.
	// The copies handed out by Select must never observe a half-replaced
	// slice.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			msgs, err := rig.engine.Select(context.Background(), "a")
			if err != nil || len(msgs) == 0 {
				assert.NoError(t, err)
				assert.NotEmpty(t, msgs)
				return
			}
		}
	}()

	base := time.Now().Add(time.Hour)
	for i := 0; i < 200; i++ {
		replaced := summary("a")
		replaced.FullThread = make([]model.MessageRecord, i+2)
		for j := range replaced.FullThread {
			replaced.FullThread[j] = model.MessageRecord{
				ID:         fmt.Sprintf("m%d-%d", i, j),
				AuthorRole: model.RoleUser,
				Body:       "reply",
			}
		}
		replaced.MessageCount = len(replaced.FullThread)
		rig.bus.Publish(&model.PushEvent{
			ID:              fmt.Sprintf("ev-%d", i),
			Kind:            model.RecordConversation,
			Type:            model.EventUpdate,
			NewConversation: replaced,
			CommitTimestamp: base.Add(time.Duration(i) * time.Millisecond),
		})
	}
	<-done
}

func TestSnapshotIsDetachedFromLiveState(t *testing.T) {
	rig := newRig(t, summary("a"))

	before, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	require.False(t, before.Conversations[0].IsLiveAgent)

	require.NoError(t, rig.engine.ToggleLiveAgent(context.Background(), "a", true))
	assert.False(t, before.Conversations[0].IsLiveAgent,
		"earlier snapshot must not see later mutations")

	// Scribbling on a snapshot must not reach the live list either.
	before.Conversations[0].LastMessagePreview = "scribble"
	after, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "scribble", after.Conversations[0].LastMessagePreview)
	assert.True(t, after.Conversations[0].IsLiveAgent)
}

func TestSendDoesNotBlockEventDraining(t *testing.T) {
	rig := newRig(t, summary("a"))
	rig.loader.threads["a"] = []model.MessageRecord{
		{ID: "m1", AuthorRole: model.RoleUser, Body: "hi"},
	}
	release := make(chan struct{})
	rig.sender.block = release

	_, err := rig.engine.Select(context.Background(), "a")
	require.NoError(t, err)

	sendDone := make(chan error, 1)
	go func() {
		_, err := rig.engine.Send(context.Background(), "hold on")
		sendDone <- err
	}()
	require.Eventually(t, func() bool { return rig.sender.calls.Load() == 1 },
		time.Second, time.Millisecond, "delivery should be in flight")

	// With delivery still blocked, the loop must keep applying events.
	rig.bus.Publish(&model.PushEvent{
		ID:              "ev-during-send",
		Kind:            model.RecordConversation,
		Type:            model.EventInsert,
		NewConversation: summary("b"),
		CommitTimestamp: time.Now().Add(time.Hour),
	})
	require.Eventually(t, func() bool {
		snap, err := rig.engine.Snapshot(context.Background())
		return err == nil && len(snap.Conversations) == 2
	}, time.Second, 5*time.Millisecond, "event must land while delivery is blocked")

	close(release)
	require.NoError(t, <-sendDone)
}

func TestApplyFilterBurstFetchesCombinedState(t *testing.T) {
	rig := newRig(t, summary("a"))
	base := rig.fetcher.callCount()

	require.NoError(t, rig.engine.ApplyFilter(model.FilterCriteria{SearchQuery: "x"}))
	require.NoError(t, rig.engine.ApplyFilter(model.FilterCriteria{
		SearchQuery: "x",
		Channel:     model.ChannelTelegram,
	}))

	require.Eventually(t, func() bool {
		return rig.fetcher.callCount() == base+1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, base+1, rig.fetcher.callCount(), "burst settles into one fetch")

	got := rig.fetcher.last()
	assert.Equal(t, "x", got.SearchQuery)
	assert.Equal(t, model.ChannelTelegram, got.Channel)
}

func TestDeselectStopsThreadMerges(t *testing.T) {
	rig := newRig(t, summary("a"))
	rig.loader.threads["a"] = []model.MessageRecord{
		{ID: "m1", AuthorRole: model.RoleUser, Body: "hi"},
	}

	_, err := rig.engine.Select(context.Background(), "a")
	require.NoError(t, err)
	require.NoError(t, rig.engine.Deselect(context.Background()))

	snap, err := rig.engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.SelectedID)
}
