package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/posfleet-core/internal/fleet"
)

// ReconnectDelay is the fixed wait between connection attempts. There is no
// backoff and no attempt limit.
const ReconnectDelay = 5 * time.Second

// Logger is the logging interface used by the subscriber.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// URLSource returns the push channel URL for one connection attempt. It is
// called before every dial, so credentials embedded in the URL can be
// renewed between attempts.
type URLSource func(ctx context.Context) (string, error)

// StaticURL returns a URLSource that always yields url.
func StaticURL(url string) URLSource {
	return func(context.Context) (string, error) {
		return url, nil
	}
}

// Subscriber holds a push channel connection open and applies each event
// to a Cache.
type Subscriber struct {
	source URLSource
	header http.Header
	cache  *Cache
	dialer *websocket.Dialer
	delay  time.Duration
	logger Logger

	onEvent   func(fleet.Event)
	connected atomic.Bool
}

// NewSubscriber creates a subscriber that dials the URL produced by source.
func NewSubscriber(source URLSource, cache *Cache) *Subscriber {
	return &Subscriber{
		source: source,
		cache:  cache,
		dialer: websocket.DefaultDialer,
		delay:  ReconnectDelay,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Subscriber) SetLogger(logger Logger) {
	s.logger = logger
}

// SetHeader sets extra handshake headers, such as Authorization.
func (s *Subscriber) SetHeader(h http.Header) {
	s.header = h
}

// OnEvent registers fn to run after each event has been applied to the
// cache. It runs on the subscriber goroutine.
func (s *Subscriber) OnEvent(fn func(fleet.Event)) {
	s.onEvent = fn
}

// Connected reports whether a connection is currently open.
func (s *Subscriber) Connected() bool {
	return s.connected.Load()
}

// Run connects and reads events until ctx is cancelled. Every lost or
// failed connection is retried after the fixed delay.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("push channel disconnected, reconnecting", "error", err, "delay", s.delay)

		t := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session runs one connection from dial to close.
func (s *Subscriber) session(ctx context.Context) error {
	url, err := s.source(ctx)
	if err != nil {
		return fmt.Errorf("resolving push url: %w", err)
	}
	conn, resp, err := s.dialer.DialContext(ctx, url, s.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.connected.Store(true)
	defer s.connected.Store(false)

	// Anything cached may have changed while disconnected.
	s.cache.MarkAllStale()
	s.logger.Info("push channel connected", "url", redactURL(url))

	stop := context.AfterFunc(ctx, func() {
		//nolint:errcheck // Best-effort close frame on shutdown
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var e fleet.Event
		if err := json.Unmarshal(data, &e); err != nil {
			s.logger.Warn("ignoring push message", "error", err)
			continue
		}
		cols := s.cache.Apply(e)
		s.logger.Debug("push event applied", "type", e.Type, "stale", cols)
		if s.onEvent != nil {
			s.onEvent(e)
		}
	}
}

// redactURL drops the query string, which may carry a token or ticket.
func redactURL(raw string) string {
	base, _, _ := strings.Cut(raw, "?")
	return base
}
