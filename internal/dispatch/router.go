// ABOUTME: Routes composed outbound messages to the correct channel transport
// ABOUTME: Prepare validates and appends locally; Deliver performs the network call

package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/inbox-console/internal/model"
	"github.com/2389/inbox-console/internal/thread"
)

// ErrNoTransport means the conversation's channel has no registered
// transport.
var ErrNoTransport = errors.New("no transport registered for channel")

// Transport delivers one message over a specific channel.
type Transport interface {
	Send(ctx context.Context, target model.DispatchTarget, body string) error
}

// Persister is what the website channel needs: persisting the appended
// message array on the conversation record is the delivery, since the
// website widget polls the record.
type Persister interface {
	AppendMessages(ctx context.Context, conversationID string, msgs []model.MessageRecord) error
}

// Result describes one dispatch. MessageID identifies the optimistically
// appended local record; Delivered reports whether the transport accepted
// the message. A failed delivery leaves the local append in place so the
// caller can offer retry.
type Result struct {
	MessageID string
	Delivered bool
}

// Router validates outbound messages, derives channel addressing, and
// invokes the matching transport. The live-agent flag is not consulted
// here; it gates UI affordances, not routing.
type Router struct {
	transports map[model.Channel]Transport
	persister  Persister
	logger     *slog.Logger
}

// NewRouter creates a router. Pass nil logger for default.
func NewRouter(persister Persister, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		transports: make(map[model.Channel]Transport),
		persister:  persister,
		logger:     logger.With("component", "dispatch"),
	}
}

// Register installs a transport for a channel.
func (r *Router) Register(ch model.Channel, t Transport) {
	r.transports[ch] = t
}

// Outbound is one validated, locally appended message awaiting delivery. It
// carries copies of everything delivery needs, so Deliver can run on a
// different goroutine than the one that owns the conversation summary.
type Outbound struct {
	channel model.Channel
	convID  string
	target  model.DispatchTarget
	message model.MessageRecord
	thread  []model.MessageRecord
}

// MessageID identifies the optimistically appended local record.
func (o *Outbound) MessageID() string { return o.message.ID }

// Prepare validates body and channel, derives the channel addressing, and
// appends the message to the local thread. No network. Validation failures
// (empty body, unresolvable channel, missing whatsapp reply anchor) return
// before the local append.
func (r *Router) Prepare(conv *model.ConversationSummary, body string) (*Outbound, error) {
	if strings.TrimSpace(body) == "" {
		return nil, model.ErrEmptyMessage
	}
	if conv == nil {
		return nil, model.ErrNotFound
	}
	ch, err := model.ParseChannel(string(conv.Channel))
	if err != nil {
		return nil, err
	}

	target, err := r.buildTarget(ch, conv)
	if err != nil {
		return nil, err
	}

	msg := model.MessageRecord{
		ID:             uuid.New().String(),
		AuthorRole:     model.RoleAgent,
		Body:           body,
		CreatedAt:      time.Now(),
		DeliveryStatus: model.DeliverySent,
	}
	thread.AppendLocal(conv, msg)

	return &Outbound{
		channel: ch,
		convID:  conv.ID,
		target:  target,
		message: msg,
		thread:  append([]model.MessageRecord(nil), conv.FullThread...),
	}, nil
}

// Deliver performs the channel delivery for a prepared message. The local
// append already happened in Prepare and is never rolled back on failure.
func (r *Router) Deliver(ctx context.Context, out *Outbound) error {
	var err error
	if out.channel == model.ChannelWebsite {
		err = r.persister.AppendMessages(ctx, out.convID, out.thread)
	} else {
		err = r.transports[out.channel].Send(ctx, out.target, out.message.Body)
	}
	if err != nil {
		r.logger.Warn("dispatch failed after local append",
			"conversation_id", out.convID,
			"channel", out.channel,
			"message_id", out.message.ID,
			"error", err)
		return err
	}

	r.logger.Debug("message dispatched",
		"conversation_id", out.convID,
		"channel", out.channel,
		"message_id", out.message.ID)
	return nil
}

// Dispatch is Prepare and Deliver in one call, for one-shot callers with
// nothing else to interleave. A transport failure returns both the Result
// (so the appended message can be retried) and the error.
func (r *Router) Dispatch(ctx context.Context, conv *model.ConversationSummary, body string) (*Result, error) {
	out, err := r.Prepare(conv, body)
	if err != nil {
		return nil, err
	}

	res := &Result{MessageID: out.MessageID()}
	if err := r.Deliver(ctx, out); err != nil {
		return res, err
	}
	res.Delivered = true
	return res, nil
}

// buildTarget derives the channel-specific addressing, validating that the
// required pieces exist before anything is appended or sent.
func (r *Router) buildTarget(ch model.Channel, conv *model.ConversationSummary) (model.DispatchTarget, error) {
	target := model.DispatchTarget{
		Channel:        ch,
		ConversationID: conv.ID,
	}

	switch ch {
	case model.ChannelWebsite:
		// Delivery is persistence; no addressing needed.
		return target, nil

	case model.ChannelFacebook, model.ChannelInstagram:
		target.AccountID = conv.ChannelAccountID
		target.UserID = conv.Counterparty.ID

	case model.ChannelTelegram:
		target.AccountID = conv.ChannelAccountID
		target.AccountName = conv.ChannelAccountName
		target.ReplyAnchorID = conv.InboundMessageID

	case model.ChannelWhatsApp:
		target.AccountID = conv.ChannelAccountID
		target.UserID = conv.Counterparty.ID
		// WhatsApp replies reference a specific inbound message id, not a
		// conversation id. Scan the cached thread in reverse for the most
		// recent counterparty message.
		anchor := conv.LastUserMessageID()
		if anchor == "" {
			return target, model.ErrMissingAnchor
		}
		target.ReplyAnchorID = anchor
	}

	if _, ok := r.transports[ch]; !ok {
		return target, ErrNoTransport
	}
	return target, nil
}
