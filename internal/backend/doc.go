// Package backend is the HTTP client for the backend query API: paginated
// conversation listing, on-demand full-thread loads, live-agent toggles, and
// message persistence for the website channel.
//
// All failures surface as *model.TransportError so callers can distinguish
// "the network broke" from validation problems and keep stale state intact.
package backend
