package platform

import (
	"context"
	"sync"
	"time"
)

type listener struct {
	id      uint64
	handler Handler
}

// LocalBus is an in-process Bus. Fire runs every handler registered for
// the event name on the caller's goroutine, in registration order, so an
// event is fully handled when Fire returns.
type LocalBus struct {
	mu        sync.RWMutex
	listeners map[string][]listener
	nextID    uint64
	closed    bool

	logger Logger
	now    func() time.Time
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{
		listeners: make(map[string][]listener),
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger used for handler panics.
func (b *LocalBus) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Fire delivers the event synchronously. Handlers registered or cancelled
// while an event is being delivered take effect from the next Fire.
func (b *LocalBus) Fire(ctx context.Context, name string, data map[string]any) error {
	if name == "" {
		return ErrInvalidEventName
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	handlers := make([]Handler, 0, len(b.listeners[name]))
	for _, l := range b.listeners[name] {
		handlers = append(handlers, l.handler)
	}
	logger := b.logger
	b.mu.RUnlock()

	if data == nil {
		data = map[string]any{}
	}
	ev := Event{Name: name, Data: data, TimeFired: b.now()}
	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		dispatch(ctx, h, ev, logger)
	}
	return nil
}

// Listen registers handler for name.
func (b *LocalBus) Listen(name string, handler Handler) (Subscription, error) {
	if name == "" {
		return nil, ErrInvalidEventName
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], listener{id: id, handler: handler})

	var once sync.Once
	return &subscriptionFunc{cancel: func() {
		once.Do(func() { b.remove(name, id) })
	}}, nil
}

func (b *LocalBus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[name]
	for i, l := range ls {
		if l.id == id {
			b.listeners[name] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(b.listeners[name]) == 0 {
		delete(b.listeners, name)
	}
}

// ListenerCount returns the number of handlers registered for name.
func (b *LocalBus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Close drops all listeners; later Fire and Listen calls fail.
func (b *LocalBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.listeners = make(map[string][]listener)
	b.mu.Unlock()
}

// dispatch runs one handler, containing panics so one broken listener
// cannot stop delivery to the rest.
func dispatch(ctx context.Context, h Handler, ev Event, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panic recovered", "event", ev.Name, "panic", r)
		}
	}()
	h(ctx, ev)
}
