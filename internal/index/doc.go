// Package index holds the paginated conversation list: page fetches under
// the current filter, the server total count and has-more flag, the
// distinct-thread discovery that populates the thread picker, and the
// debouncer that coalesces filter-change bursts into single fetches.
//
// The index never reorders what the server returned; post-hoc reordering is
// the reconciler's job, applied through Apply under the index lock. A fetch
// that lands after the filter has moved on is discarded, never applied.
package index
