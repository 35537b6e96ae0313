// ABOUTME: SSE consumer for the backend push-event feed
// ABOUTME: Reconnects with capped backoff, dedupes replayed event ids, publishes to the broadcaster

package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/inbox-console/internal/dedupe"
)

const (
	// dedupeTTL covers the window in which a reconnect can replay events.
	dedupeTTL     = 5 * time.Minute
	dedupeMaxSize = 4096
)

// Subscriber consumes the backend's SSE push-event stream and publishes
// decoded events to a Broadcaster. Delivery is at-least-once on the wire;
// the dedupe cache makes it at-most-once toward subscribers.
type Subscriber struct {
	url         string
	token       string
	http        *http.Client
	broadcaster *Broadcaster
	seen        *dedupe.Cache
	backoffMin  time.Duration
	backoffMax  time.Duration
	logger      *slog.Logger
}

// NewSubscriber creates a feed subscriber publishing into b.
func NewSubscriber(url, token string, b *Broadcaster, backoffMin, backoffMax time.Duration, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		url:         url,
		token:       token,
		http:        &http.Client{}, // no timeout: the stream stays open
		broadcaster: b,
		seen:        dedupe.New(dedupeTTL, dedupeMaxSize),
		backoffMin:  backoffMin,
		backoffMax:  backoffMax,
		logger:      logger.With("component", "feed"),
	}
}

// Run consumes the stream until ctx is cancelled, reconnecting with capped
// exponential backoff on any stream error. A connection that delivered at
// least one event resets the ladder, so a drop after hours of healthy
// streaming retries at the minimum again. Returns ctx.Err() on shutdown.
func (s *Subscriber) Run(ctx context.Context) error {
	defer s.seen.Close()

	backoff := s.backoffMin
	for {
		received, err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			backoff = s.backoffMin
		}

		s.logger.Warn("feed stream ended, reconnecting",
			"error", err,
			"backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > s.backoffMax {
			backoff = s.backoffMax
		}
	}
}

// consume opens one stream and reads events until it breaks. Reports whether
// any event payload arrived on this connection.
func (s *Subscriber) consume(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("building feed request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	s.logger.Debug("feed stream connected", "url", s.url)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	received := false
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			// Blank line dispatches the accumulated event
			if data.Len() > 0 {
				s.handle(data.String())
				received = true
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:/id:/retry: fields and comments are not needed; the
			// payload carries its own id and type
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return received, fmt.Errorf("reading feed stream: %w", err)
	}
	return received, fmt.Errorf("feed stream closed by server")
}

// handle decodes and publishes one event payload.
func (s *Subscriber) handle(payload string) {
	ev, err := decodeEvent([]byte(payload))
	if err != nil {
		s.logger.Warn("dropping undecodable push event", "error", err)
		return
	}

	if ev.ID != "" && s.seen.Seen(ev.ID) {
		s.logger.Debug("dropping replayed push event", "event_id", ev.ID)
		return
	}

	s.broadcaster.Publish(ev)
}
