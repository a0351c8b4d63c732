package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/posfleet-core/internal/infrastructure/config"
)

// Identity describes this back end in the presence messages it publishes on
// the system status topic, so terminal gateways can tell which build and
// storage backend they are talking to.
type Identity struct {
	Version string
	Backend string
}

// Client is the fleet's connection to the MQTT broker. It carries terminal
// status reports in and relays monitoring events out.
//
// paho reconnects on its own. On every (re)connect the client restores the
// tracked subscriptions (the terminal status wildcard above all) and
// republishes its retained online presence. All methods are safe for
// concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	id     Identity

	mu            sync.Mutex
	subscriptions map[string]subscription
	onConnect     func()
	onDisconnect  func(err error)
	logger        Logger

	connected atomic.Bool
	sessions  atomic.Int64
	lastLoss  atomic.Pointer[connectionLoss]
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

type connectionLoss struct {
	at  time.Time
	err error
}

// MessageHandler handles one received message. topic has its wildcards
// expanded. A returned error is logged; it does not affect delivery.
// Handlers run on paho goroutines and must not block for long.
type MessageHandler func(topic string, payload []byte) error

// Stats is a point-in-time view of the connection.
type Stats struct {
	Connected      bool
	Reconnects     int64
	Subscriptions  int
	LastDisconnect time.Time
	LastError      string
}

// Connect connects to the broker named in cfg and waits up to
// defaultConnectTimeout for the first session. The Last Will marks this
// back end offline if it vanishes without Close.
func Connect(cfg config.MQTTConfig, id Identity) (*Client, error) {
	c := newClient(cfg, id)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark the session usable now
	// so Subscribe can be called straight after Connect returns.
	c.connected.Store(true)
	return c, nil
}

// newClient builds an unconnected client with its paho callbacks wired.
func newClient(cfg config.MQTTConfig, id Identity) *Client {
	c := &Client{
		cfg:           cfg,
		id:            id,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID, id)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting", "broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port))
		}
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.sessions.Add(1)

	c.restoreSubscriptions()
	c.publishPresence(buildOnlinePayload(c.cfg.Broker.ClientID, c.id))

	c.mu.Lock()
	callback := c.onConnect
	c.mu.Unlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)
	c.lastLoss.Store(&connectionLoss{at: time.Now().UTC(), err: err})

	c.mu.Lock()
	callback := c.onDisconnect
	c.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes every tracked topic; the clean session
// leaves none on the broker.
func (c *Client) restoreSubscriptions() {
	c.mu.Lock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		var err error
		if token.WaitTimeout(defaultPublishTimeout) {
			err = token.Error()
		} else {
			err = fmt.Errorf("timeout after %v", defaultPublishTimeout)
		}
		if err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT resubscribe failed", "topic", sub.topic, "error", err)
			}
		}
	}
}

// publishPresence publishes a retained presence message without waiting.
func (c *Client) publishPresence(payload string) pahomqtt.Token {
	return c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close publishes a graceful offline presence (distinct from the Last
// Will), lets pending publishes drain and disconnects. Closing a client that
// never connected is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishPresence(buildOfflinePayload(c.cfg.Broker.ClientID, c.id)).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns nil while a session is up. When down, the error wraps
// ErrNotConnected and names the last connection loss.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if c.IsConnected() {
		return nil
	}
	if loss := c.lastLoss.Load(); loss != nil && loss.err != nil {
		return fmt.Errorf("%w since %s: %v", ErrNotConnected, loss.at.Format(time.RFC3339), loss.err)
	}
	return ErrNotConnected
}

// IsConnected reports whether a session is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// Stats returns the connection counters.
func (c *Client) Stats() Stats {
	s := Stats{
		Connected:     c.IsConnected(),
		Subscriptions: c.SubscriptionCount(),
	}
	if n := c.sessions.Load(); n > 1 {
		s.Reconnects = n - 1
	}
	if loss := c.lastLoss.Load(); loss != nil {
		s.LastDisconnect = loss.at
		if loss.err != nil {
			s.LastError = loss.err.Error()
		}
	}
	return s
}

// SetOnConnect sets a callback run after every (re)connect, once
// subscriptions are restored.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger. Without one, handler errors are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// wrapHandler adds panic recovery and error logging to handler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
