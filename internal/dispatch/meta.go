// ABOUTME: Graph-API transport for the Facebook and Instagram channels
// ABOUTME: POSTs page-scoped messages addressed by pageId + userId

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/2389/inbox-console/internal/model"
)

// wrapTransport normalizes a channel failure into the transport error
// taxonomy.
func wrapTransport(op string, err error) error {
	return &model.TransportError{Op: op, Err: err}
}

// DefaultGraphBaseURL is Meta's Graph API endpoint. Facebook and Instagram
// messaging both go through it; the two channels differ only in which page
// token is configured.
const DefaultGraphBaseURL = "https://graph.facebook.com/v19.0"

const graphSendTimeout = 15 * time.Second

// GraphTransport sends messages through the Meta Graph API. One instance
// per channel: facebook and instagram share the request shape and differ
// only by access token.
type GraphTransport struct {
	channel string
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewGraphTransport creates a transport for one Meta-backed channel.
// Pass nil logger for default.
func NewGraphTransport(channel, token string, logger *slog.Logger) *GraphTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphTransport{
		channel: channel,
		baseURL: DefaultGraphBaseURL,
		token:   token,
		http:    &http.Client{Timeout: graphSendTimeout},
		logger:  logger.With("component", "transport", "channel", channel),
	}
}

// SetBaseURL overrides the Graph endpoint, used by tests.
func (t *GraphTransport) SetBaseURL(u string) { t.baseURL = u }

// graphSendRequest is the page-messages request shape.
type graphSendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	MessagingType string `json:"messaging_type"`
}

// Send delivers one message to target.UserID via the page identified by
// target.AccountID. No reply anchor is needed on Meta channels.
func (t *GraphTransport) Send(ctx context.Context, target model.DispatchTarget, body string) error {
	var payload graphSendRequest
	payload.Recipient.ID = target.UserID
	payload.Message.Text = body
	payload.MessagingType = "RESPONSE"

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding graph request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages?access_token=%s",
		t.baseURL, url.PathEscape(target.AccountID), url.QueryEscape(t.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return wrapTransport(t.channel+" send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t.logger.Warn("graph send rejected",
			"status", resp.StatusCode,
			"body", string(snippet))
		return wrapTransport(t.channel+" send", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	t.logger.Debug("graph message sent",
		"page_id", target.AccountID,
		"user_id", target.UserID)
	return nil
}
