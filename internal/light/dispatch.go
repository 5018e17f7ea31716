package light

import (
	"context"

	"github.com/simmsb/synapse-extension/internal/platform"
)

// Dispatcher delivers an action payload to the app. Delivery is
// fire-and-forget: a nil error means the transport accepted it.
type Dispatcher interface {
	Dispatch(ctx context.Context, action string, payload map[string]any) error
}

// EventEmitter is the bridge's own emit method.
type EventEmitter interface {
	EmitEvent(ctx context.Context, action string, payload map[string]any) error
}

// EventNamer derives bus event names for actions.
type EventNamer interface {
	EventName(action string) string
}

// BridgeDispatcher lets the bridge choose the transport.
type BridgeDispatcher struct {
	Bridge EventEmitter
}

// Dispatch implements Dispatcher.
func (d BridgeDispatcher) Dispatch(ctx context.Context, action string, payload map[string]any) error {
	return d.Bridge.EmitEvent(ctx, action, payload)
}

// BusDispatcher fires the action on the host bus under the bridge's event name.
type BusDispatcher struct {
	Bus   platform.Bus
	Names EventNamer
}

// Dispatch implements Dispatcher.
func (d BusDispatcher) Dispatch(ctx context.Context, action string, payload map[string]any) error {
	return d.Bus.Fire(ctx, d.Names.EventName(action), payload)
}
