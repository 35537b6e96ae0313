// Package thread loads full message threads lazily and back-fills the
// conversation summary's preview and count so the list view reflects the
// actual last message. Loaded threads live on the summary; the loader only
// fetches, so the goroutine that owns the summary decides when a fetch is
// needed.
package thread
