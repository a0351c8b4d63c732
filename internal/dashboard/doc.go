// Package dashboard is the client side of the push channel: a query-keyed
// cache whose entries are marked stale by broadcast events, and a
// subscriber that keeps a connection to the server open.
//
// Entries are never updated from event payloads. An event only marks the
// collections it affects stale, and the next Get refetches them over REST.
// Collections that no event covers (branches, employees and the rest) stay
// as last fetched until the caller marks them stale itself.
//
// After every (re)connect the server sends initial_status, which marks the
// whole cache stale so nothing missed while disconnected survives.
package dashboard
