package light

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/simmsb/synapse-extension/internal/platform"
	"github.com/simmsb/synapse-extension/internal/synapse"
)

// SetupMode selects where the initial descriptors come from.
type SetupMode string

// Setup modes.
const (
	// SetupDynamic prefers the runtime configuration and listens for
	// register events.
	SetupDynamic SetupMode = "dynamic"

	// SetupStatic uses the app data only.
	SetupStatic SetupMode = "static"
)

// DispatchMode selects how actions reach the app.
type DispatchMode string

// Dispatch modes.
const (
	DispatchBridge DispatchMode = "bridge"
	DispatchBus    DispatchMode = "bus"
)

// Bridge is what the light platform needs from a Synapse bridge.
type Bridge interface {
	CurrentConfiguration() (synapse.Configuration, bool)
	AppData() synapse.Configuration
	MetadataUniqueID() string
	EventName(action string) string
	EmitEvent(ctx context.Context, action string, payload map[string]any) error
}

// Logger is the logging interface used during setup.
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

// SetupOptions holds the collaborators for one configuration entry.
type SetupOptions struct {
	Bridge      Bridge
	Bus         platform.Bus
	AddEntities platform.AddEntitiesFunc

	// Mode defaults to SetupDynamic.
	Mode SetupMode

	// Dispatch defaults to DispatchBridge.
	Dispatch DispatchMode

	// Logger is optional.
	Logger Logger
}

// Platform is the running light platform of one entry.
type Platform struct {
	bridge     Bridge
	add        platform.AddEntitiesFunc
	dispatcher Dispatcher
	logger     Logger

	mu     sync.Mutex
	lights []*Light
	sub    platform.Subscription
}

// SetupEntry hands the entry's initial lights to the host and, in dynamic
// mode, starts listening for register events. Missing categories yield no
// lights and are not an error. A cancelled ctx returns its error before
// any entity is added or listener registered.
func SetupEntry(ctx context.Context, opts SetupOptions) (*Platform, error) {
	if opts.Bridge == nil {
		return nil, fmt.Errorf("%w: bridge is required", ErrInvalidSetup)
	}
	if opts.AddEntities == nil {
		return nil, fmt.Errorf("%w: add entities callback is required", ErrInvalidSetup)
	}

	mode := opts.Mode
	if mode == "" {
		mode = SetupDynamic
	}
	if mode != SetupDynamic && mode != SetupStatic {
		return nil, fmt.Errorf("%w: unknown setup mode %q", ErrInvalidSetup, mode)
	}
	if mode == SetupDynamic && opts.Bus == nil {
		return nil, fmt.Errorf("%w: bus is required for dynamic setup", ErrInvalidSetup)
	}

	dispatcher, err := newDispatcher(opts)
	if err != nil {
		return nil, err
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &Platform{
		bridge:     opts.Bridge,
		add:        opts.AddEntities,
		dispatcher: dispatcher,
		logger:     logger,
	}

	p.addLights(initialDescriptors(opts.Bridge, mode))

	if mode == SetupDynamic {
		sub, err := opts.Bus.Listen(opts.Bridge.EventName(synapse.ActionRegister), p.handleRegistration)
		if err != nil {
			return nil, fmt.Errorf("listening for registrations: %w", err)
		}
		p.sub = sub
	}

	logger.Info("light platform set up", "mode", string(mode), "lights", p.Count())
	return p, nil
}

func newDispatcher(opts SetupOptions) (Dispatcher, error) {
	switch opts.Dispatch {
	case "", DispatchBridge:
		return BridgeDispatcher{Bridge: opts.Bridge}, nil
	case DispatchBus:
		if opts.Bus == nil {
			return nil, fmt.Errorf("%w: bus is required for bus dispatch", ErrInvalidSetup)
		}
		return BusDispatcher{Bus: opts.Bus, Names: opts.Bridge}, nil
	default:
		return nil, fmt.Errorf("%w: unknown dispatch mode %q", ErrInvalidSetup, opts.Dispatch)
	}
}

// initialDescriptors applies the mode's selection policy.
func initialDescriptors(b Bridge, mode SetupMode) []*synapse.Descriptor {
	if mode == SetupDynamic {
		if cfg, ok := b.CurrentConfiguration(); ok {
			if ds, ok := cfg.Category(Domain); ok {
				return ds
			}
		}
	}
	ds, _ := b.AppData().Category(Domain)
	return ds
}

// handleRegistration re-reads the dynamic configuration when the app
// announces one. Every light in it is handed over again, including ones
// already registered.
func (p *Platform) handleRegistration(_ context.Context, ev platform.Event) {
	if ev.Data[synapse.KeyUniqueID] != p.bridge.MetadataUniqueID() {
		return
	}
	cfg, ok := p.bridge.CurrentConfiguration()
	if !ok {
		return
	}
	ds, _ := cfg.Category(Domain)
	p.addLights(ds)
}

// addLights wraps ds and calls the host once if any light was built.
func (p *Platform) addLights(ds []*synapse.Descriptor) {
	entities := make([]platform.Entity, 0, len(ds))
	built := make([]*Light, 0, len(ds))
	for _, d := range ds {
		if err := ValidateDescriptor(d); err != nil {
			if errors.Is(err, ErrMissingUniqueID) {
				p.logger.Warn("skipping light descriptor", "error", err)
				continue
			}
			p.logger.Warn("light descriptor has invalid fields", "unique_id", d.UniqueID(), "error", err)
		}
		l := New(d, p.dispatcher)
		built = append(built, l)
		entities = append(entities, l)
	}
	if len(entities) == 0 {
		return
	}

	p.mu.Lock()
	p.lights = append(p.lights, built...)
	p.mu.Unlock()

	p.add(entities)
}

// Lights returns every wrapper this platform has built, in creation order.
func (p *Platform) Lights() []*Light {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Light, len(p.lights))
	copy(out, p.lights)
	return out
}

// Count returns the number of wrappers built.
func (p *Platform) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lights)
}

// Close stops listening for register events.
func (p *Platform) Close() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}
