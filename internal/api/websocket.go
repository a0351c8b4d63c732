package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/posfleet-core/internal/auth"
	"github.com/nerrad567/posfleet-core/internal/fleet"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/logging"
)

// Push channel defaults, used when the websocket config leaves them zero.
const (
	defaultSendBuffer     = 256
	defaultMaxMessageSize = 4096
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second

	// snapshotTimeout bounds the initial_status query for a new session.
	snapshotTimeout = 5 * time.Second
)

// SessionState is the lifecycle position of a push channel session.
type SessionState int32

const (
	// SessionConnecting: upgraded, initial_status not yet queued.
	SessionConnecting SessionState = iota
	// SessionOpen sessions receive broadcasts.
	SessionOpen
	// SessionClosed is terminal.
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionOpen:
		return "open"
	case SessionClosed:
		return "closed"
	}
	return "unknown"
}

// StatusSource produces the snapshot sent to each new session. Satisfied by
// *fleet.Service.
type StatusSource interface {
	InitialStatusEvent(ctx context.Context) (fleet.Event, error)
}

// Hub is the registry of push channel sessions. Register and Unregister are
// its only mutators; Broadcast delivers to every Open session.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	source   StatusSource
	sessions map[*Session]struct{}
	closed   bool
	mu       sync.RWMutex
}

// Session is one connected push channel client.
type Session struct {
	ID        string
	Principal auth.Principal

	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	state atomic.Int32
}

// State returns the session's lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. source may be nil, in which case sessions get no
// initial_status.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, source StatusSource) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		sessions: make(map[*Session]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) newSession(conn *websocket.Conn, p auth.Principal) *Session {
	size := h.cfg.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Principal: p,
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, size),
	}
	sess.state.Store(int32(SessionConnecting))
	return sess
}

// Register adds a Connecting session and marks it Open. It returns false
// once the hub has shut down.
func (h *Hub) Register(sess *Session) bool {
	h.mu.Lock()
	if h.closed || sess.State() != SessionConnecting {
		h.mu.Unlock()
		return false
	}
	h.sessions[sess] = struct{}{}
	sess.state.Store(int32(SessionOpen))
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Debug("websocket session opened", "session_id", sess.ID, "sessions", count)
	return true
}

// Unregister removes a session and marks it Closed. Only the call that
// removes the session closes its send channel.
func (h *Hub) Unregister(sess *Session) {
	h.mu.Lock()
	_, existed := h.sessions[sess]
	delete(h.sessions, sess)
	if existed {
		close(sess.send)
	}
	sess.state.Store(int32(SessionClosed))
	count := len(h.sessions)
	h.mu.Unlock()

	if existed {
		h.logger.Debug("websocket session closed", "session_id", sess.ID, "sessions", count)
	}
}

// Broadcast sends e to every Open session. Enqueueing never blocks: a
// session whose buffer is full misses this event.
func (h *Hub) Broadcast(e fleet.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to marshal broadcast event", "type", e.Type, "error", err)
		return
	}

	// Sends happen under the read lock so Unregister cannot close a
	// channel mid-broadcast.
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent, dropped := 0, 0
	for sess := range h.sessions {
		if sess.State() != SessionOpen {
			continue
		}
		select {
		case sess.send <- data:
			sent++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket send buffer full, event dropped", "type", e.Type, "dropped", dropped)
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "type", e.Type, "recipients", sent)
	}
}

// HandleEvent implements fleet.EventSink.
func (h *Hub) HandleEvent(_ context.Context, e fleet.Event) {
	h.Broadcast(e)
}

// SessionCount returns the number of Open sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// closeAll closes every session and refuses later registrations.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sess := range h.sessions {
		close(sess.send)
		sess.state.Store(int32(SessionClosed))
		delete(h.sessions, sess)
	}
}

// snapshot encodes the initial_status event for a new session.
func (h *Hub) snapshot(ctx context.Context) ([]byte, error) {
	if h.source == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	e, err := h.source.InitialStatusEvent(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// handleWebSocket upgrades the connection, queues initial_status and
// registers the session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.authenticateSocket(r)
	if !ok {
		writeUnauthorized(w, "valid ticket or token query parameter is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := s.hub.newSession(conn, principal)

	initial, err := s.hub.snapshot(r.Context())
	if err != nil {
		s.logger.Warn("websocket initial status failed", "session_id", sess.ID, "error", err)
		sess.state.Store(int32(SessionClosed))
		//nolint:errcheck // Best-effort close frame
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "status unavailable"))
		conn.Close()
		return
	}
	if initial != nil {
		sess.send <- initial
	}

	if !s.hub.Register(sess) {
		sess.state.Store(int32(SessionClosed))
		conn.Close()
		return
	}

	go sess.writePump(s.wsCfg)
	go sess.readPump(s.wsCfg)
}

func pingTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// readPump consumes client frames to keep the connection alive. Their
// content is ignored.
func (s *Session) readPump(cfg config.WebSocketConfig) {
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
	}()

	limit := int64(cfg.MaxMessageSize)
	if limit <= 0 {
		limit = defaultMaxMessageSize
	}
	s.conn.SetReadLimit(limit)
	pingInterval, pongWait := pingTimings(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("websocket read error", "session_id", s.ID, "error", err)
			} else {
				s.hub.logger.Debug("websocket closed", "session_id", s.ID, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump writes queued events and keepalive pings. A write error closes
// the connection, which ends readPump and unregisters the session.
func (s *Session) writePump(cfg config.WebSocketConfig) {
	pingInterval, writeWait := pingTimings(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close message
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.hub.logger.Debug("websocket write failed", "session_id", s.ID, "error", err)
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
