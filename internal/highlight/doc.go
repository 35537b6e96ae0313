// Package highlight tracks the transient "new"/"updated" markers the
// reconciler attaches to conversations, expiring them on a fixed delay or
// immediately when the operator opens the conversation.
package highlight
