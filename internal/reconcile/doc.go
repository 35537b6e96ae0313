// Package reconcile merges asynchronously arriving push events into the
// already-fetched, possibly stale, in-memory conversation list.
//
// The rules, in order: reject events whose commit timestamp does not advance
// past the last accepted one; classify live-agent toggles apart from genuine
// activity; upsert by id, moving to the front only on non-toggle activity;
// merge thread content into the open conversation so the view stays live
// without a refetch; highlight everything except pure toggles and the
// conversation the operator is already looking at.
package reconcile
