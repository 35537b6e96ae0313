// ABOUTME: Core domain types for the inbox engine
// ABOUTME: ConversationSummary, MessageRecord, FilterCriteria, PushEvent, DispatchTarget

package model

import (
	"fmt"
	"time"
)

// Channel identifies the external messaging surface a conversation lives on.
type Channel string

// Supported channels.
const (
	ChannelWebsite   Channel = "website"
	ChannelFacebook  Channel = "facebook"
	ChannelInstagram Channel = "instagram"
	ChannelTelegram  Channel = "telegram"
	ChannelWhatsApp  Channel = "whatsapp"
)

// ParseChannel validates a raw channel string from the backend.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelWebsite, ChannelFacebook, ChannelInstagram, ChannelTelegram, ChannelWhatsApp:
		return Channel(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// AuthorRole identifies who authored a message within a thread.
type AuthorRole string

// Message author roles. RoleUser is the end customer (the counterparty),
// RoleBot is the automated agent, RoleAgent is a human operator.
const (
	RoleUser  AuthorRole = "user"
	RoleBot   AuthorRole = "bot"
	RoleAgent AuthorRole = "agent"
)

// DeliveryStatus is the channel-reported delivery state of a message.
type DeliveryStatus string

// Delivery states.
const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryRead    DeliveryStatus = "read"
	DeliveryUnknown DeliveryStatus = "unknown"
)

// SortOrder controls backend result ordering.
type SortOrder string

// Sort orders accepted by the paginated query endpoint.
const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortName   SortOrder = "name"
)

// MessageRecord is a single message within a conversation thread.
// Records are immutable once created; a thread is ordered by CreatedAt and
// append-only from the client's perspective.
type MessageRecord struct {
	ID             string         `json:"id"`
	AuthorRole     AuthorRole     `json:"role"`
	Body           string         `json:"body"`
	CreatedAt      time.Time      `json:"created_at"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
}

// Counterparty is the end user on the other side of a conversation.
// Email may be empty (most channel identities carry no email).
type Counterparty struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// ConversationSummary is one end user's conversation with a deployed agent,
// as listed by the paginated query endpoint. FullThread is nil until the
// thread is lazily loaded; LastMessagePreview may be a stale placeholder
// until then.
//
// Invariants: ID is unique within the index; UpdatedAt only moves forward
// for a given ID once events are reconciled.
type ConversationSummary struct {
	ID                 string        `json:"id"`
	ThreadID           string        `json:"thread_id"`
	Channel            Channel       `json:"channel"`
	Counterparty       Counterparty  `json:"counterparty"`
	LastMessagePreview string        `json:"last_message_preview"`
	UpdatedAt          time.Time     `json:"updated_at"`
	MessageCount       int           `json:"message_count"`
	IsLiveAgent        bool          `json:"is_live_agent"`
	FullThread         []MessageRecord `json:"messages,omitempty"`

	// Channel addressing, populated by the backend from the inbound webhook
	// that created the conversation. ChannelAccountID is the page id
	// (facebook/instagram), phone number id (whatsapp), or chat id
	// (telegram). InboundMessageID is the id of the original inbound
	// message, used by transports that thread replies.
	ChannelAccountID   string `json:"channel_account_id,omitempty"`
	ChannelAccountName string `json:"channel_account_name,omitempty"`
	InboundMessageID   string `json:"inbound_message_id,omitempty"`
}

// LastUserMessageID scans the cached thread in reverse for the most recent
// message authored by the counterparty. Returns empty string when the thread
// is not loaded or contains no user-authored message.
func (c *ConversationSummary) LastUserMessageID() string {
	for i := len(c.FullThread) - 1; i >= 0; i-- {
		if c.FullThread[i].AuthorRole == RoleUser {
			return c.FullThread[i].ID
		}
	}
	return ""
}

// FilterCriteria is the filter/sort state driving the paginated index.
// A value type: any change produces a new fetch generation.
type FilterCriteria struct {
	SearchQuery      string
	Channel          Channel // empty means all channels
	DateStart        *time.Time
	DateEnd          *time.Time
	SelectedThreadID string
	Sort             SortOrder
}

// Validate checks the criteria are self-consistent.
func (f FilterCriteria) Validate() error {
	if f.Channel != "" {
		if _, err := ParseChannel(string(f.Channel)); err != nil {
			return err
		}
	}
	switch f.Sort {
	case "", SortNewest, SortOldest, SortName:
	default:
		return fmt.Errorf("invalid sort order %q", f.Sort)
	}
	if f.DateStart != nil && f.DateEnd != nil && f.DateEnd.Before(*f.DateStart) {
		return fmt.Errorf("date range end %s before start %s", f.DateEnd, f.DateStart)
	}
	return nil
}

// Key returns a stable identity string for the filter state. Late-arriving
// fetch results are discarded when the current key no longer matches the one
// the fetch was issued under.
func (f FilterCriteria) Key() string {
	start, end := "", ""
	if f.DateStart != nil {
		start = f.DateStart.UTC().Format(time.RFC3339Nano)
	}
	if f.DateEnd != nil {
		end = f.DateEnd.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("q=%s|ch=%s|thread=%s|from=%s|to=%s|sort=%s",
		f.SearchQuery, f.Channel, f.SelectedThreadID, start, end, f.Sort)
}

// Page is one page of conversation summaries from the query endpoint.
type Page struct {
	Items      []*ConversationSummary
	TotalCount int
	HasMore    bool
}

// RecordKind discriminates which backend table a push event describes.
type RecordKind string

// Push event record kinds.
const (
	RecordConversation RecordKind = "conversation"
	RecordUser         RecordKind = "user"
)

// EventType is the kind of change a push event carries.
type EventType string

// Push event types.
const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// UserRecord is a counterparty identity change delivered by the push feed.
type UserRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// PushEvent is one change notification from the push feed. Exactly one of
// the conversation or user pairs is populated, per Kind. Old is nil for
// insert events. Events are ephemeral: consumed by the reconciler and never
// stored.
type PushEvent struct {
	ID              string
	Kind            RecordKind
	Type            EventType
	OldConversation *ConversationSummary
	NewConversation *ConversationSummary
	OldUser         *UserRecord
	NewUser         *UserRecord
	CommitTimestamp time.Time
}

// DispatchTarget is the channel-specific addressing a transport needs to
// deliver one outbound message. Derived per dispatch, never persisted.
type DispatchTarget struct {
	Channel        Channel
	ConversationID string
	AccountID      string // page id, phone number id, or chat id
	AccountName    string // telegram channel name
	UserID         string // recipient: psid, ig user id, or phone number
	ReplyAnchorID  string // inbound message id for reply threading
}
