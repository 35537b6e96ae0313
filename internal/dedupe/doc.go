// Package dedupe provides a TTL cache for push-event ids so feed reconnect
// replays are dropped before they reach the reconciler.
package dedupe
