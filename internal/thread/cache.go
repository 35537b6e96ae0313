// ABOUTME: Lazy loading of full message threads with single-flight fetches
// ABOUTME: Back-fills summary preview and message count once the real thread is known

package thread

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/2389/inbox-console/internal/model"
	"github.com/2389/inbox-console/internal/preview"
)

// Loader is what the cache needs from the backend client.
type Loader interface {
	GetThread(ctx context.Context, conversationID string) ([]model.MessageRecord, error)
}

// Cache loads full message threads on demand. Concurrent loads for the same
// id collapse into one backend call. The cache itself holds no summary
// state: whether a cached thread makes the fetch unnecessary is the owning
// loop's decision, taken where the summary can be read safely.
type Cache struct {
	loader Loader
	flight singleflight.Group
	logger *slog.Logger
}

// NewCache creates a thread cache. Pass nil logger for default.
func NewCache(loader Loader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		loader: loader,
		logger: logger.With("component", "thread"),
	}
}

// Load fetches the full thread for a conversation id, once even under
// concurrent callers. A load failure leaves any cached thread untouched; the
// caller surfaces a loading-error state instead.
func (c *Cache) Load(ctx context.Context, conversationID string) ([]model.MessageRecord, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	v, err, _ := c.flight.Do(conversationID, func() (any, error) {
		return c.loader.GetThread(ctx, conversationID)
	})
	if err != nil {
		c.logger.Warn("thread load failed",
			"conversation_id", conversationID,
			"error", err)
		return nil, err
	}

	msgs := v.([]model.MessageRecord)
	c.logger.Debug("thread loaded",
		"conversation_id", conversationID,
		"messages", len(msgs))
	return msgs, nil
}

// Backfill stores a loaded thread on the summary and corrects the fields the
// list view shows: the preview reflects the actual last message rather than
// a stale placeholder, and the count reflects the real thread length.
func Backfill(conv *model.ConversationSummary, msgs []model.MessageRecord) {
	conv.FullThread = msgs
	conv.MessageCount = len(msgs)
	if len(msgs) > 0 {
		conv.LastMessagePreview = preview.Line(msgs[len(msgs)-1].Body, preview.DefaultMaxLen)
	}
}

// AppendLocal appends an optimistic outbound message to the cached thread
// and updates the derived summary fields. Used by dispatch: the local append
// is not awaited on channel confirmation.
func AppendLocal(conv *model.ConversationSummary, msg model.MessageRecord) {
	conv.FullThread = append(conv.FullThread, msg)
	conv.MessageCount = len(conv.FullThread)
	conv.LastMessagePreview = preview.Line(msg.Body, preview.DefaultMaxLen)
	if msg.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.CreatedAt
	}
}
