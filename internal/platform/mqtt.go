package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/simmsb/synapse-extension/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of *mqtt.Client the bus needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	DefaultQoS() byte
}

// MQTTBus carries events over MQTT. The event name is the topic and the
// data is published as a JSON object, never retained.
//
// One broker subscription is held per event name no matter how many
// listeners share it; it is released when the last listener cancels.
type MQTTBus struct {
	client MQTTClient

	mu        sync.Mutex
	listeners map[string][]listener
	nextID    uint64

	ctx    context.Context
	cancel context.CancelFunc

	logger Logger
	now    func() time.Time
}

// NewMQTTBus creates a bus over client. Handlers receive a context that
// is cancelled by Close.
func NewMQTTBus(client MQTTClient) *MQTTBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &MQTTBus{
		client:    client,
		listeners: make(map[string][]listener),
		ctx:       ctx,
		cancel:    cancel,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger.
func (b *MQTTBus) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Fire publishes data as JSON on the topic name.
func (b *MQTTBus) Fire(ctx context.Context, name string, data map[string]any) error {
	if name == "" {
		return ErrInvalidEventName
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}

	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", name, err)
	}

	if err := b.client.Publish(name, payload, b.client.DefaultQoS(), false); err != nil {
		return fmt.Errorf("firing event %s: %w", name, err)
	}
	return nil
}

// Listen subscribes handler to the topic name.
func (b *MQTTBus) Listen(name string, handler Handler) (Subscription, error) {
	if name == "" {
		return nil, ErrInvalidEventName
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	if b.ctx.Err() != nil {
		return nil, ErrBusClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.listeners[name]) == 0 {
		err := b.client.Subscribe(name, b.client.DefaultQoS(), func(topic string, payload []byte) error {
			return b.deliver(topic, payload)
		})
		if err != nil {
			return nil, fmt.Errorf("listening for %s: %w", name, err)
		}
	}

	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], listener{id: id, handler: handler})

	var once sync.Once
	return &subscriptionFunc{cancel: func() {
		once.Do(func() { b.remove(name, id) })
	}}, nil
}

func (b *MQTTBus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[name]
	for i, l := range ls {
		if l.id == id {
			b.listeners[name] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(b.listeners[name]) > 0 {
		return
	}
	delete(b.listeners, name)
	if err := b.client.Unsubscribe(name); err != nil {
		b.logger.Warn("releasing event subscription failed", "event", name, "error", err)
	}
}

// deliver decodes an incoming message and runs the listeners for its topic.
func (b *MQTTBus) deliver(topic string, payload []byte) error {
	data, err := decodeEventData(payload)
	if err != nil {
		return fmt.Errorf("event %s: %w", topic, err)
	}

	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.listeners[topic]))
	for _, l := range b.listeners[topic] {
		handlers = append(handlers, l.handler)
	}
	logger := b.logger
	b.mu.Unlock()

	ev := Event{Name: topic, Data: data, TimeFired: b.now()}
	for _, h := range handlers {
		dispatch(b.ctx, h, ev, logger)
	}
	return nil
}

// decodeEventData accepts a JSON object or an empty payload.
func decodeEventData(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if data == nil {
		// "null"
		return map[string]any{}, nil
	}
	return data, nil
}

// Close cancels the handler context and stops accepting new listeners.
// Broker subscriptions are released with the MQTT connection.
func (b *MQTTBus) Close() {
	b.cancel()
}
