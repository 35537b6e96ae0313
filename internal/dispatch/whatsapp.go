// ABOUTME: WhatsApp Cloud API transport
// ABOUTME: Requires a reply anchor: every outbound message references the last inbound id

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

const whatsappSendTimeout = 15 * time.Second

// WhatsAppTransport sends messages through the WhatsApp Cloud API. The API
// threads replies to a specific inbound message id, so the router must
// supply a ReplyAnchorID; dispatches without one are blocked upstream.
type WhatsAppTransport struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewWhatsAppTransport creates the transport. Pass nil logger for default.
func NewWhatsAppTransport(token string, logger *slog.Logger) *WhatsAppTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppTransport{
		baseURL: DefaultGraphBaseURL,
		token:   token,
		http:    &http.Client{Timeout: whatsappSendTimeout},
		logger:  logger.With("component", "transport", "channel", "whatsapp"),
	}
}

// SetBaseURL overrides the Cloud API endpoint, used by tests.
func (t *WhatsAppTransport) SetBaseURL(u string) { t.baseURL = u }

// whatsappSendRequest is the Cloud API text-message shape.
type whatsappSendRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Context          struct {
		MessageID string `json:"message_id"`
	} `json:"context"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Send delivers one message to the phone number in target.UserID via the
// business number identified by target.AccountID, anchored to
// target.ReplyAnchorID.
func (t *WhatsAppTransport) Send(ctx context.Context, target model.DispatchTarget, body string) error {
	if target.ReplyAnchorID == "" {
		// The router validates this before appending; double-checking here
		// keeps the transport safe for direct use.
		return model.ErrMissingAnchor
	}

	payload := whatsappSendRequest{
		MessagingProduct: "whatsapp",
		To:               target.UserID,
		Type:             "text",
	}
	payload.Context.MessageID = target.ReplyAnchorID
	payload.Text.Body = body

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding whatsapp request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", t.baseURL, url.PathEscape(target.AccountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.http.Do(req)
	if err != nil {
		return wrapTransport("whatsapp send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t.logger.Warn("whatsapp send rejected",
			"status", resp.StatusCode,
			"body", string(snippet))
		return wrapTransport("whatsapp send", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	t.logger.Debug("whatsapp message sent",
		"phone_number_id", target.AccountID,
		"to", target.UserID,
		"anchor", target.ReplyAnchorID)
	return nil
}
