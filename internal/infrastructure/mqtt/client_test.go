package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/simmsb/synapse-extension/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "synapse-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Fakes
// =============================================================================

// fakeToken is a completed paho token.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho is an in-memory pahomqtt.Client that records calls and lets
// tests deliver messages to subscribed handlers.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	unsubscribed []string
	disconnected bool

	publishErr   error
	subscribeErr error
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakePaho) IsConnectionOpen() bool  { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token { return &fakeToken{} }
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return &fakeToken{err: f.publishErr}
	}
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	f.published = append(f.published, published{topic: topic, qos: qos, retained: retained, payload: data})
	return &fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return &fakeToken{err: f.subscribeErr}
	}
	f.handlers[topic] = cb
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, cb)
	}
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.handlers, topic)
		f.unsubscribed = append(f.unsubscribed, topic)
	}
	return &fakeToken{}
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver invokes the handler registered for topic as paho would.
func (f *fakePaho) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	cb, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	cb(f, &fakeMessage{topic: topic, payload: payload})
	return true
}

func (f *fakePaho) lastPublished() (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return published{}, false
	}
	return f.published[len(f.published)-1], true
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true for client without paho client")
	}
}

func TestClosePublishesGracefulOffline(t *testing.T) {
	fake := newFakePaho()
	c := newWithPaho(fake, testConfig())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	msg, ok := fake.lastPublished()
	if !ok {
		t.Fatal("Close() published nothing")
	}
	if msg.topic != "synapse/system/status" || !msg.retained {
		t.Errorf("status publish = %s retained=%v", msg.topic, msg.retained)
	}

	var status statusPayload
	if err := json.Unmarshal(msg.payload, &status); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if status.Status != "offline" || status.Reason != "graceful_shutdown" {
		t.Errorf("status = %+v, want offline/graceful_shutdown", status)
	}
	if !fake.disconnected {
		t.Error("Close() did not disconnect paho client")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestHealthCheck(t *testing.T) {
	fake := newFakePaho()
	c := newWithPaho(fake, testConfig())

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}

	c.handleDisconnect(errors.New("link down"))
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestConnectCallbacks(t *testing.T) {
	fake := newFakePaho()
	c := newWithPaho(fake, testConfig())

	var connects int
	var lost error
	c.SetOnConnect(func() { connects++ })
	c.SetOnDisconnect(func(err error) { lost = err })

	c.handleDisconnect(errors.New("boom"))
	if lost == nil || lost.Error() != "boom" {
		t.Errorf("disconnect callback got %v", lost)
	}

	c.handleConnect()
	if connects != 1 {
		t.Errorf("connect callback count = %d, want 1", connects)
	}
	msg, _ := fake.lastPublished()
	if !strings.Contains(string(msg.payload), `"online"`) {
		t.Errorf("reconnect did not publish online status: %s", msg.payload)
	}
}

func TestSetAppsRepublishesStatus(t *testing.T) {
	fake := newFakePaho()
	c := newWithPaho(fake, testConfig())

	c.SetApps([]string{"kitchen", "porch"})

	msg, ok := fake.lastPublished()
	if !ok {
		t.Fatal("SetApps() published nothing while connected")
	}
	var status statusPayload
	if err := json.Unmarshal(msg.payload, &status); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if status.Status != "online" || len(status.Apps) != 2 || status.Apps[1] != "porch" {
		t.Errorf("status = %+v", status)
	}

	fake.connected = false
	before := len(fake.published)
	c.SetApps(nil)
	if len(fake.published) != before {
		t.Error("SetApps() published while disconnected")
	}
}

func TestReconnectRestoresSubscriptions(t *testing.T) {
	fake := newFakePaho()
	c := newWithPaho(fake, testConfig())

	topic := Topics{}.Event("register", "kitchen")
	var got int
	if err := c.Subscribe(topic, 1, func(string, []byte) error { got++; return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Broker forgets everything on a clean session.
	fake.mu.Lock()
	fake.handlers = make(map[string]pahomqtt.MessageHandler)
	fake.mu.Unlock()

	c.handleConnect()

	if !fake.deliver(topic, []byte(`{}`)) {
		t.Fatal("subscription not restored after reconnect")
	}
	if got != 1 {
		t.Errorf("handler calls = %d, want 1", got)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublishValidation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 1, []byte("x"), ErrInvalidTopic},
		{"invalid qos", "synapse/turn_on/a", 3, []byte("x"), ErrInvalidQoS},
		{"too large", "synapse/turn_on/a", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"ok", "synapse/turn_on/a", 1, []byte("x"), nil},
		{"nil payload", "synapse/turn_on/a", 0, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newWithPaho(newFakePaho(), testConfig())
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Publish() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishDisconnected(t *testing.T) {
	fake := newFakePaho()
	fake.connected = false
	c := newWithPaho(fake, testConfig())

	if err := c.Publish("synapse/turn_on/a", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishBrokerError(t *testing.T) {
	fake := newFakePaho()
	fake.publishErr = errors.New("not authorised")
	c := newWithPaho(fake, testConfig())

	err := c.Publish("synapse/turn_on/a", []byte("x"), 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishJSON(t *testing.T) {
	fake := newFakePaho()
	c := newWithPaho(fake, testConfig())

	topic := Topics{}.Event("turn_on", "kitchen")
	if err := c.PublishJSON(topic, map[string]any{"unique_id": "abc", "brightness": 128}); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	msg, _ := fake.lastPublished()
	if msg.topic != topic || msg.retained || msg.qos != 1 {
		t.Errorf("published %+v", msg)
	}
	var body map[string]any
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if body["unique_id"] != "abc" || body["brightness"] != float64(128) {
		t.Errorf("payload = %v", body)
	}

	if err := c.PublishJSON(topic, make(chan int)); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrPublishFailed", err)
	}
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSubscribeValidation(t *testing.T) {
	noop := func(string, []byte) error { return nil }
	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"invalid qos", "synapse/#", 5, noop, ErrInvalidQoS},
		{"nil handler", "synapse/#", 1, nil, ErrSubscribeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newWithPaho(newFakePaho(), testConfig())
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeFailureIsNotTracked(t *testing.T) {
	fake := newFakePaho()
	fake.subscribeErr = errors.New("denied")
	c := newWithPaho(fake, testConfig())

	err := c.Subscribe("synapse/#", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("synapse/#") {
		t.Error("failed subscription still tracked")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	fake := newFakePaho()
	c := newWithPaho(fake, testConfig())
	noop := func(string, []byte) error { return nil }

	topics := []string{
		Topics{}.Event("register", "a"),
		Topics{}.Event("configuration", "a"),
		Topics{}.AllAppEvents("b"),
	}
	for _, topic := range topics {
		if err := c.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if c.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", c.SubscriptionCount(), len(topics))
	}

	if err := c.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription(topics[0]) {
		t.Error("HasSubscription() = true after Unsubscribe()")
	}
	if len(fake.unsubscribed) != 1 || fake.unsubscribed[0] != topics[0] {
		t.Errorf("paho unsubscribed = %v", fake.unsubscribed)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestHandlerErrorAndPanicAreLogged(t *testing.T) {
	fake := newFakePaho()
	c := newWithPaho(fake, testConfig())
	logger := &mockLogger{}
	c.SetLogger(logger)

	_ = c.Subscribe("synapse/err/a", 1, func(string, []byte) error { return errors.New("bad payload") })
	_ = c.Subscribe("synapse/panic/a", 1, func(string, []byte) error { panic("boom") })

	fake.deliver("synapse/err/a", []byte("x"))
	fake.deliver("synapse/panic/a", []byte("x"))

	if len(logger.warns) != 1 {
		t.Errorf("warn logs = %v, want 1", logger.warns)
	}
	if len(logger.errors) != 1 {
		t.Errorf("error logs = %v, want 1", logger.errors)
	}

	c.SetLogger(nil)
	if _, ok := c.getLogger().(noopLogger); !ok {
		t.Error("SetLogger(nil) should install the no-op logger")
	}
	// No logger: panics are still contained.
	fake.deliver("synapse/panic/a", []byte("x"))
}

// =============================================================================
// Options and Topic Tests
// =============================================================================

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("brokerURL(tls) = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "synapse"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	if opts.ClientID != "synapse-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "synapse" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect with clean session")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v", opts.MaxReconnectInterval)
	}
	if !opts.WillEnabled || opts.WillTopic != "synapse/system/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"event", topics.Event("turn_on", "kitchen"), "synapse/turn_on/kitchen"},
		{"register", topics.Event("register", "kitchen"), "synapse/register/kitchen"},
		{"system status", topics.SystemStatus(), "synapse/system/status"},
		{"all app events", topics.AllAppEvents("kitchen"), "synapse/+/kitchen"},
		{"all action events", topics.AllActionEvents("turn_off"), "synapse/turn_off/+"},
		{"all", topics.AllTopics(), "synapse/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
