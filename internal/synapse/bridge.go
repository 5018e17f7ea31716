package synapse

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/simmsb/synapse-extension/internal/infrastructure/mqtt"
	"github.com/simmsb/synapse-extension/internal/platform"
)

// Event actions used by the bridge itself.
const (
	ActionConfiguration = "configuration"
	ActionRegister      = "register"
	ActionUpdate        = "update"
)

// Publisher sends a JSON document to a topic. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Logger is the logging interface used by the bridge.
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

// Options holds what a bridge needs.
type Options struct {
	// EntryID is the configuration entry this bridge serves.
	EntryID string

	// AppName scopes the event names; defaults to EntryID.
	AppName string

	// MetadataUniqueID identifies the app in configuration and register events.
	MetadataUniqueID string

	// AppData is the static configuration loaded at startup.
	AppData Configuration

	// Bus carries inbound app events and the register notification.
	Bus platform.Bus

	// Publisher is the transport for EmitEvent. When nil, EmitEvent fires
	// on Bus instead.
	Publisher Publisher

	// Logger is optional.
	Logger Logger
}

// Bridge mediates between the host and one Synapse app.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	entryID    string
	appName    string
	metadataID string
	bus        platform.Bus
	publisher  Publisher
	logger     Logger

	mu      sync.RWMutex
	appData Configuration
	current Configuration // nil until the app publishes one

	observersMu sync.RWMutex
	observers   []func(*Descriptor)

	subsMu sync.Mutex
	subs   []platform.Subscription
}

// New validates opts and builds a bridge. Call Start to listen for app events.
func New(opts Options) (*Bridge, error) {
	if opts.EntryID == "" {
		return nil, fmt.Errorf("%w: entry id is required", ErrInvalidOptions)
	}
	if opts.MetadataUniqueID == "" {
		return nil, fmt.Errorf("%w: metadata unique id is required", ErrInvalidOptions)
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("%w: bus is required", ErrInvalidOptions)
	}

	appName := opts.AppName
	if appName == "" {
		appName = opts.EntryID
	}
	if strings.ContainsAny(appName, "/+#") {
		return nil, fmt.Errorf("%w: app name %q contains topic characters", ErrInvalidOptions, appName)
	}

	appData := opts.AppData
	if appData == nil {
		appData = Configuration{}
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	return &Bridge{
		entryID:    opts.EntryID,
		appName:    appName,
		metadataID: opts.MetadataUniqueID,
		bus:        opts.Bus,
		publisher:  opts.Publisher,
		logger:     logger,
		appData:    appData,
	}, nil
}

// EntryID returns the configuration entry id.
func (b *Bridge) EntryID() string { return b.entryID }

// AppName returns the app name used in event names.
func (b *Bridge) AppName() string { return b.appName }

// MetadataUniqueID returns the app's identifier.
func (b *Bridge) MetadataUniqueID() string { return b.metadataID }

// Bus returns the bus the bridge listens on.
func (b *Bridge) Bus() platform.Bus { return b.bus }

// AppData returns the static configuration.
func (b *Bridge) AppData() Configuration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.appData
}

// CurrentConfiguration returns the dynamic configuration, and false while
// the app has not published one.
func (b *Bridge) CurrentConfiguration() (Configuration, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current, b.current != nil
}

// EventName returns the bus event name for action, synapse/{action}/{app}.
func (b *Bridge) EventName(action string) string {
	return mqtt.Topics{}.Event(action, b.appName)
}

// EmitEvent sends payload to the app under EventName(action).
// The call returns once the transport has accepted the message; the app
// does not acknowledge it.
func (b *Bridge) EmitEvent(ctx context.Context, action string, payload map[string]any) error {
	if action == "" || strings.ContainsAny(action, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name := b.EventName(action)
	b.logger.Debug("emitting app event", "event", name, "unique_id", payload[KeyUniqueID])

	if b.publisher != nil {
		if err := b.publisher.PublishJSON(name, payload); err != nil {
			return fmt.Errorf("emitting %s: %w", action, err)
		}
		return nil
	}
	if err := b.bus.Fire(ctx, name, payload); err != nil {
		return fmt.Errorf("emitting %s: %w", action, err)
	}
	return nil
}

// OnChange registers fn to run after a descriptor's fields change through
// a configuration or update event.
func (b *Bridge) OnChange(fn func(*Descriptor)) {
	if fn == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, fn)
	b.observersMu.Unlock()
}

func (b *Bridge) notify(ds ...*Descriptor) {
	b.observersMu.RLock()
	observers := b.observers
	b.observersMu.RUnlock()

	for _, d := range ds {
		for _, fn := range observers {
			fn(d)
		}
	}
}

// Start listens for the app's configuration and update events.
func (b *Bridge) Start(_ context.Context) error {
	handlers := map[string]platform.Handler{
		b.EventName(ActionConfiguration): b.handleConfiguration,
		b.EventName(ActionUpdate):        b.handleUpdate,
	}

	for name, h := range handlers {
		sub, err := b.bus.Listen(name, h)
		if err != nil {
			b.Stop()
			return fmt.Errorf("listening for %s: %w", name, err)
		}
		b.subsMu.Lock()
		b.subs = append(b.subs, sub)
		b.subsMu.Unlock()
	}

	b.logger.Info("synapse bridge started", "entry_id", b.entryID, "app", b.appName)
	return nil
}

// Stop cancels the bridge's listeners. Safe to call more than once.
func (b *Bridge) Stop() {
	b.subsMu.Lock()
	subs := b.subs
	b.subs = nil
	b.subsMu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
}

// handleConfiguration stores a configuration published by the app, then
// announces it with a register event.
func (b *Bridge) handleConfiguration(ctx context.Context, ev platform.Event) {
	if ev.Data[KeyUniqueID] != b.metadataID {
		return
	}

	raw, ok := ev.Data["configuration"].(map[string]any)
	if !ok {
		b.logger.Warn("configuration event without configuration object", "app", b.appName)
		return
	}
	cfg, err := ParseConfiguration(raw)
	if err != nil {
		b.logger.Warn("ignoring invalid configuration", "app", b.appName, "error", err)
		return
	}

	changed := b.SetConfiguration(cfg)
	b.notify(changed...)

	if err := b.bus.Fire(ctx, b.EventName(ActionRegister), map[string]any{KeyUniqueID: b.metadataID}); err != nil {
		b.logger.Error("announcing configuration failed", "app", b.appName, "error", err)
	}
}

// SetConfiguration replaces the dynamic configuration. A descriptor whose
// unique_id is already known, from an earlier configuration or from app
// data, keeps its identity and has its fields replaced, so wrappers built
// on it read the new values. It returns every descriptor of the new
// configuration.
func (b *Bridge) SetConfiguration(cfg Configuration) []*Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(Configuration, len(cfg))
	var all []*Descriptor
	for category, ds := range cfg {
		kept := make([]*Descriptor, 0, len(ds))
		for _, d := range ds {
			if existing := b.knownLocked(d.UniqueID()); existing != nil {
				existing.Replace(d.Snapshot())
				d = existing
			}
			kept = append(kept, d)
		}
		next[category] = kept
		all = append(all, kept...)
	}
	b.current = next

	b.logger.Info("synapse configuration updated", "app", b.appName, "categories", len(next), "descriptors", len(all))
	return all
}

// knownLocked returns the live descriptor for uniqueID, preferring the
// dynamic configuration over app data. b.mu must be held.
func (b *Bridge) knownLocked(uniqueID string) *Descriptor {
	if d := b.current.find(uniqueID); d != nil {
		return d
	}
	return b.appData.find(uniqueID)
}

// handleUpdate merges a state update into the matching descriptor.
func (b *Bridge) handleUpdate(_ context.Context, ev platform.Event) {
	id, _ := ev.Data[KeyUniqueID].(string)
	if id == "" {
		b.logger.Warn("update event without unique_id", "app", b.appName)
		return
	}

	b.mu.RLock()
	d := b.knownLocked(id)
	b.mu.RUnlock()

	if d == nil {
		b.logger.Debug("update for unknown descriptor", "app", b.appName, "unique_id", id)
		return
	}

	fields := maps.Clone(ev.Data)
	delete(fields, KeyUniqueID)
	d.Merge(fields)
	b.notify(d)
}
