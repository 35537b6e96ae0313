// ABOUTME: Push-event envelope decoding for the feed
// ABOUTME: Maps wire JSON (table, eventType, old/new, commitTimestamp) to model.PushEvent

package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/inbox-console/internal/model"
)

// envelope is the wire shape of one push notification.
type envelope struct {
	ID              string          `json:"id"`
	EventType       string          `json:"eventType"`
	Table           string          `json:"table"`
	Old             json.RawMessage `json:"old"`
	New             json.RawMessage `json:"new"`
	CommitTimestamp time.Time       `json:"commitTimestamp"`
}

// decodeEvent parses one data payload into a PushEvent. Events for tables
// other than conversations and users are rejected; the feed is scoped to the
// operator's account so nothing else should arrive.
func decodeEvent(data []byte) (*model.PushEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	ev := &model.PushEvent{
		ID:              env.ID,
		CommitTimestamp: env.CommitTimestamp,
	}

	switch env.EventType {
	case "insert", "INSERT":
		ev.Type = model.EventInsert
	case "update", "UPDATE":
		ev.Type = model.EventUpdate
	default:
		return nil, fmt.Errorf("unsupported event type %q", env.EventType)
	}

	switch env.Table {
	case "conversations":
		ev.Kind = model.RecordConversation
		if len(env.New) > 0 && string(env.New) != "null" {
			ev.NewConversation = &model.ConversationSummary{}
			if err := json.Unmarshal(env.New, ev.NewConversation); err != nil {
				return nil, fmt.Errorf("decoding new conversation: %w", err)
			}
		}
		if len(env.Old) > 0 && string(env.Old) != "null" {
			ev.OldConversation = &model.ConversationSummary{}
			if err := json.Unmarshal(env.Old, ev.OldConversation); err != nil {
				return nil, fmt.Errorf("decoding old conversation: %w", err)
			}
		}
		if ev.NewConversation == nil {
			return nil, fmt.Errorf("conversation event missing new record")
		}
	case "users":
		ev.Kind = model.RecordUser
		if len(env.New) > 0 && string(env.New) != "null" {
			ev.NewUser = &model.UserRecord{}
			if err := json.Unmarshal(env.New, ev.NewUser); err != nil {
				return nil, fmt.Errorf("decoding new user: %w", err)
			}
		}
		if len(env.Old) > 0 && string(env.Old) != "null" {
			ev.OldUser = &model.UserRecord{}
			if err := json.Unmarshal(env.Old, ev.OldUser); err != nil {
				return nil, fmt.Errorf("decoding old user: %w", err)
			}
		}
		if ev.NewUser == nil {
			return nil, fmt.Errorf("user event missing new record")
		}
	default:
		return nil, fmt.Errorf("unsupported table %q", env.Table)
	}

	return ev, nil
}
