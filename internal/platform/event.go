package platform

import (
	"context"
	"time"
)

// Event is a named notification on the bus.
type Event struct {
	Name      string
	Data      map[string]any
	TimeFired time.Time
}

// Handler receives events for the name it was registered on.
// Handlers should return quickly; the bus calls them one at a time.
type Handler func(ctx context.Context, ev Event)

// Subscription is returned by Listen. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// Bus is the event bus shared by the host and its integrations.
type Bus interface {
	// Fire delivers an event to every listener of name. Delivery is
	// fire-and-forget: a nil error means the event was handed off, not
	// that any listener acted on it.
	Fire(ctx context.Context, name string, data map[string]any) error

	// Listen registers handler for events named name.
	Listen(name string, handler Handler) (Subscription, error)
}

// Logger is the logging interface used by the bus implementations.
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

// subscriptionFunc adapts a cancel function to Subscription.
type subscriptionFunc struct {
	cancel func()
}

func (s *subscriptionFunc) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}
