// Package api implements the HTTP REST API and the push channel for the POS
// fleet dashboard.
//
// This package provides:
//   - CRUD endpoints for every entity under /api/v1/{resource}
//   - Device status and alert endpoints that go through the watched
//     mutations of the fleet service
//   - A WebSocket hub that sends initial_status to each new session and
//     broadcasts device_status_change and new_alert events
//   - JWT authentication with role permissions and ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Push channel
//
// A session moves Connecting → Open → Closed. It receives broadcasts only
// while Open, and initial_status is always its first message. Broadcast
// never blocks: a session with a full send buffer misses the event, and the
// dashboard recovers by refetching on reconnect.
//
// # Security
//
// With security.auth_enabled set, REST calls need a bearer token and the
// push channel needs ?ticket= (from POST /auth/ws-ticket) or ?token=.
package api
