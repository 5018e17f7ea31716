package mqtt

import (
	"context"
	"fmt"
	"slices"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/simmsb/synapse-extension/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// MessageHandler receives one message. Paho calls handlers on its own
// goroutines; a returned error is logged and the message is still acked.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is the service's broker connection. It restores subscriptions
// after every reconnect, contains handler panics, and keeps a retained
// status message on synapse/system/status listing the apps it serves.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subMu sync.RWMutex
	subs  map[string]subscription

	mu           sync.RWMutex
	connected    bool
	apps         []string
	logger       Logger
	onConnect    func()
	onDisconnect func(err error)
}

// Connect dials the broker and waits for the first connection.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		subs:   make(map[string]subscription),
		logger: noopLogger{},
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	tok := c.client.Connect()
	if !tok.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler may not have run yet.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return c, nil
}

// newWithPaho wraps an existing paho client.
func newWithPaho(pc pahomqtt.Client, cfg config.MQTTConfig) *Client {
	return &Client{
		client:    pc,
		cfg:       cfg,
		subs:      make(map[string]subscription),
		connected: pc.IsConnected(),
		logger:    noopLogger{},
	}
}

func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	fn := c.onConnect
	c.mu.Unlock()

	c.restoreSubscriptions()
	c.publishStatus("online", "")
	if fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	fn := c.onDisconnect
	c.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}

func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.subMu.RUnlock()

	for topic, s := range subs {
		tok := c.client.Subscribe(topic, s.qos, c.wrapHandler(s.handler))
		if !tok.WaitTimeout(defaultPublishTimeout) || tok.Error() != nil {
			c.getLogger().Warn("MQTT resubscribe failed", "topic", topic, "error", tok.Error())
		}
	}
}

func (c *Client) publishStatus(status, reason string) {
	c.mu.RLock()
	apps := c.apps
	c.mu.RUnlock()

	payload := buildStatusPayload(status, c.cfg.Broker.ClientID, reason, apps)
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload).WaitTimeout(defaultPublishTimeout)
}

// SetApps records the app names this service bridges and, when connected,
// republishes the online status so apps see the current list.
func (c *Client) SetApps(apps []string) {
	c.mu.Lock()
	c.apps = slices.Clone(apps)
	c.mu.Unlock()

	if c.IsConnected() {
		c.publishStatus("online", "")
	}
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus("offline", "graceful_shutdown")
	}
	c.client.Disconnect(defaultDisconnectQuiesce)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect runs fn after the initial connection and every reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect runs fn when the connection is lost.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures. nil disables logging.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// DefaultQoS returns the configured QoS level.
func (c *Client) DefaultQoS() byte {
	return byte(c.cfg.QoS)
}

// wrapHandler adapts handler to paho, logging errors and recovering panics
// so one bad app payload cannot take down the paho router.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
