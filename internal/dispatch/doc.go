// Package dispatch routes an operator's composed message to the correct
// external channel transport.
//
// The router validates everything it can before touching the network: body
// non-empty, channel resolvable, and for whatsapp a reply anchor found by
// scanning the cached thread in reverse for the last counterparty message.
// Valid messages are appended to the local thread before the transport call
// and never rolled back on failure; the Result carries the appended message
// id so callers can offer retry.
package dispatch
