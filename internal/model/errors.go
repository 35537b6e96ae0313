// ABOUTME: Error taxonomy for the inbox engine
// ABOUTME: Sentinel errors plus the TransportError wrapper for backend/channel failures

package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a conversation id is not present in the index.
var ErrNotFound = errors.New("conversation not found")

// ErrStaleEvent is returned when a push event's commit timestamp does not
// advance past the last processed event. Stale events are discarded, never
// surfaced to the view layer.
var ErrStaleEvent = errors.New("stale push event")

// ErrMissingAnchor is returned when a whatsapp dispatch finds no inbound
// message to reply to. The send is blocked before any network call.
var ErrMissingAnchor = errors.New("no inbound message to anchor reply")

// ErrEmptyMessage is returned when a dispatch is attempted with an empty body.
var ErrEmptyMessage = errors.New("message body is empty")

// ErrUnknownChannel is returned when a conversation's channel cannot be
// resolved to a registered transport.
var ErrUnknownChannel = errors.New("unknown channel")

// ErrSuperseded is returned when a fetch result is discarded because the
// filter state changed while the fetch was in flight.
var ErrSuperseded = errors.New("fetch superseded by newer filter state")

// TransportError wraps a network or backend failure. The list and thread
// state are left unchanged when one occurs; callers surface a generic
// failure rather than propagating the cause into rendering.
type TransportError struct {
	Op  string // operation that failed, e.g. "list conversations"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
