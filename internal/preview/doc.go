// Package preview renders a message body into the one-line plain-text
// summary shown in conversation list rows. Markdown structure is parsed and
// discarded so formatting characters never leak into the list.
package preview
