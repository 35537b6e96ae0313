// Package feed consumes the backend's push-event stream and fans decoded
// events out to in-process subscribers.
//
// The Subscriber reads server-sent events over HTTP and reconnects with
// capped exponential backoff; replayed event ids are dropped via a dedupe
// cache so downstream consumers see each change at most once. The
// Broadcaster is the message-passing boundary the reconciler drains: it
// never runs reconciliation inline with stream reads, which keeps ordering
// and staleness rules independently testable.
package feed
