// ABOUTME: Package model defines the domain types shared across the engine
// ABOUTME: Conversation summaries, message records, filters, push events, errors

// Package model holds the data types the inbox engine reconciles and routes:
// conversation summaries fetched from the backend, the messages inside a
// thread, the filter state that drives pagination, the push events the
// reconciler consumes, and the dispatch targets the router builds.
//
// Types here are plain values with validation only. Behavior lives in the
// packages that operate on them (index, reconcile, thread, dispatch).
package model
