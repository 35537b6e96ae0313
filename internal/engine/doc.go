// Package engine coordinates the conversation view: the paginated index,
// the push-event reconciler, lazy thread loads, transient highlights, and
// outbound dispatch.
//
// One goroutine owns the ordering. Feed events and operator commands drain
// from the same loop, which is the only writer of selection state, so an
// event can never observe a half-applied selection change. Network work
// (page fetches, thread loads, deliveries) runs off the loop and
// re-validates against the current generation or selection when it lands;
// only copies of view state ever cross off the loop.
package engine
