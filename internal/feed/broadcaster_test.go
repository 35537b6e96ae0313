// ABOUTME: Tests for the push-event broadcaster
// ABOUTME: Covers fan-out, slow subscribers, context cleanup, close semantics

package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/inbox-console/internal/model"
)

func makeEvent(id string) *model.PushEvent {
	return &model.PushEvent{
		ID:   id,
		Kind: model.RecordConversation,
		Type: model.EventUpdate,
		NewConversation: &model.ConversationSummary{
			ID: "c1",
		},
		CommitTimestamp: time.Now(),
	}
}

func TestBroadcaster_AllSubscribersReceiveEvent(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()
	ch1, _ := b.Subscribe(ctx)
	ch2, _ := b.Subscribe(ctx)

	b.Publish(makeEvent("evt-1"))

	for i, ch := range []<-chan *model.PushEvent{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "evt-1", got.ID, "subscriber %d got wrong event", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()

	// Never read from this one
	_, _ = b.Subscribe(ctx)
	ch, _ := b.Subscribe(ctx)

	for i := 0; i < subscriberBufferSize*2; i++ {
		b.Publish(makeEvent("evt-" + string(rune('a'+i%26))))
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		case <-time.After(200 * time.Millisecond):
			assert.Greater(t, received, 0, "fast subscriber should receive events")
			return
		}
	}
}

func TestBroadcaster_ContextCancellationUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestBroadcaster_ManualUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background())
	b.Unsubscribe(subID)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Publishing after unsubscribe should not panic
	b.Publish(makeEvent("evt-after"))

	// Double unsubscribe should be a no-op
	b.Unsubscribe(subID)
}

func TestBroadcaster_CloseClosesAll(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, _ := b.Subscribe(context.Background())
	ch2, _ := b.Subscribe(context.Background())

	b.Close()

	for i, ch := range []<-chan *model.PushEvent{ch1, ch2} {
		select {
		case _, ok := <-ch:
			require.False(t, ok, "channel %d should be closed", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed", i)
		}
	}
}
