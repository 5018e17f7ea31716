package light

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/simmsb/synapse-extension/internal/platform"
	"github.com/simmsb/synapse-extension/internal/synapse"
)

// addRecorder collects AddEntities calls.
type addRecorder struct {
	calls [][]platform.Entity
}

func (r *addRecorder) add(entities []platform.Entity) {
	r.calls = append(r.calls, entities)
}

func (r *addRecorder) uniqueIDs(call int) []string {
	ids := make([]string, 0, len(r.calls[call]))
	for _, e := range r.calls[call] {
		ids = append(ids, e.UniqueID())
	}
	return ids
}

func descriptors(ids ...string) []*synapse.Descriptor {
	ds := make([]*synapse.Descriptor, 0, len(ids))
	for _, id := range ids {
		ds = append(ds, synapse.NewDescriptor(map[string]any{"unique_id": id, "name": "Light " + id}))
	}
	return ds
}

func newBridge(t *testing.T, bus platform.Bus, appData synapse.Configuration) *synapse.Bridge {
	t.Helper()
	b, err := synapse.New(synapse.Options{
		EntryID:          "entry-1",
		AppName:          "kitchen",
		MetadataUniqueID: "meta-123",
		AppData:          appData,
		Bus:              bus,
	})
	if err != nil {
		t.Fatalf("synapse.New() error = %v", err)
	}
	return b
}

func setup(t *testing.T, opts SetupOptions) *Platform {
	t.Helper()
	p, err := SetupEntry(context.Background(), opts)
	if err != nil {
		t.Fatalf("SetupEntry() error = %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func fireRegister(t *testing.T, bus platform.Bus, b *synapse.Bridge, id string) {
	t.Helper()
	err := bus.Fire(context.Background(), b.EventName(synapse.ActionRegister), map[string]any{"unique_id": id})
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
}

func TestSetupStaticUsesAppData(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, synapse.Configuration{"light": descriptors("a")})
	b.SetConfiguration(synapse.Configuration{"light": descriptors("x", "y")})
	rec := &addRecorder{}

	p := setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add, Mode: SetupStatic})

	if len(rec.calls) != 1 || !reflect.DeepEqual(rec.uniqueIDs(0), []string{"a"}) {
		t.Fatalf("AddEntities calls = %v, want one call with [a]", rec.calls)
	}
	if p.Count() != 1 {
		t.Errorf("Count() = %d, want 1", p.Count())
	}
	if n := bus.ListenerCount(b.EventName(synapse.ActionRegister)); n != 0 {
		t.Errorf("static setup registered %d listeners", n)
	}

	fireRegister(t, bus, b, "meta-123")
	if len(rec.calls) != 1 {
		t.Errorf("static setup reacted to a register event")
	}
}

func TestSetupDynamicPrefersCurrentConfiguration(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, synapse.Configuration{"light": descriptors("static")})
	b.SetConfiguration(synapse.Configuration{"light": descriptors("d1", "d2")})
	rec := &addRecorder{}

	setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add})

	if len(rec.calls) != 1 || !reflect.DeepEqual(rec.uniqueIDs(0), []string{"d1", "d2"}) {
		t.Fatalf("AddEntities calls = %v, want [d1 d2]", rec.calls)
	}
}

func TestSetupDynamicFallsBackToAppData(t *testing.T) {
	tests := []struct {
		name    string
		current synapse.Configuration
	}{
		{"no configuration", nil},
		{"configuration without lights", synapse.Configuration{"switch": descriptors("s1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := platform.NewLocalBus()
			b := newBridge(t, bus, synapse.Configuration{"light": descriptors("a")})
			if tt.current != nil {
				b.SetConfiguration(tt.current)
			}
			rec := &addRecorder{}

			setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add, Mode: SetupDynamic})

			if len(rec.calls) != 1 || !reflect.DeepEqual(rec.uniqueIDs(0), []string{"a"}) {
				t.Errorf("AddEntities calls = %v, want [a]", rec.calls)
			}
		})
	}
}

func TestSetupNoLightsSkipsAddEntities(t *testing.T) {
	for _, mode := range []SetupMode{SetupDynamic, SetupStatic} {
		t.Run(string(mode), func(t *testing.T) {
			bus := platform.NewLocalBus()
			b := newBridge(t, bus, nil)
			rec := &addRecorder{}

			setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add, Mode: mode})

			if len(rec.calls) != 0 {
				t.Errorf("AddEntities called %d times with no lights", len(rec.calls))
			}
		})
	}
}

func TestSetupSkipsDescriptorsWithoutUniqueID(t *testing.T) {
	bus := platform.NewLocalBus()
	ds := append(descriptors("a"), synapse.NewDescriptor(map[string]any{"name": "orphan"}))
	b := newBridge(t, bus, synapse.Configuration{"light": ds})
	rec := &addRecorder{}

	setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add, Mode: SetupStatic})

	if len(rec.calls) != 1 || !reflect.DeepEqual(rec.uniqueIDs(0), []string{"a"}) {
		t.Errorf("AddEntities calls = %v, want [a]", rec.calls)
	}
}

func TestRegistrationIgnoresOtherApps(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, nil)
	b.SetConfiguration(synapse.Configuration{"light": descriptors("d1")})
	rec := &addRecorder{}
	setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add})

	fireRegister(t, bus, b, "someone-else")
	if err := bus.Fire(context.Background(), b.EventName(synapse.ActionRegister), nil); err != nil {
		t.Fatal(err)
	}

	if len(rec.calls) != 1 {
		t.Errorf("AddEntities calls = %d, want only the initial one", len(rec.calls))
	}
}

func TestRegistrationReaddsEveryLight(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, nil)
	b.SetConfiguration(synapse.Configuration{"light": descriptors("d1", "d2")})
	rec := &addRecorder{}
	p := setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add})

	b.SetConfiguration(synapse.Configuration{"light": descriptors("d1", "d2", "d3")})
	fireRegister(t, bus, b, "meta-123")

	if len(rec.calls) != 2 {
		t.Fatalf("AddEntities calls = %d, want 2", len(rec.calls))
	}
	if got := rec.uniqueIDs(1); !reflect.DeepEqual(got, []string{"d1", "d2", "d3"}) {
		t.Errorf("second call = %v, want all three lights", got)
	}
	if p.Count() != 5 {
		t.Errorf("Count() = %d, want 5 wrappers built", p.Count())
	}
}

func TestRegistrationWithoutConfigurationIsIgnored(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, synapse.Configuration{"light": descriptors("a")})
	rec := &addRecorder{}
	setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add})

	fireRegister(t, bus, b, "meta-123")

	if len(rec.calls) != 1 {
		t.Errorf("AddEntities calls = %d, want 1", len(rec.calls))
	}
}

func TestConfigurationEventRegistersLights(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Stop)
	rec := &addRecorder{}
	setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add})

	err := bus.Fire(context.Background(), b.EventName(synapse.ActionConfiguration), map[string]any{
		"unique_id": "meta-123",
		"configuration": map[string]any{
			"light": []any{map[string]any{"unique_id": "abc123", "is_on": true}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(rec.calls) != 1 || !reflect.DeepEqual(rec.uniqueIDs(0), []string{"abc123"}) {
		t.Fatalf("AddEntities calls = %v, want [abc123]", rec.calls)
	}
	l, ok := rec.calls[0][0].(*Light)
	if !ok || !l.IsOn() {
		t.Errorf("registered entity = %#v, want an on Light", rec.calls[0][0])
	}
}

func TestCloseStopsListening(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, nil)
	rec := &addRecorder{}
	p, err := SetupEntry(context.Background(), SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add})
	if err != nil {
		t.Fatal(err)
	}

	p.Close()
	p.Close()

	if n := bus.ListenerCount(b.EventName(synapse.ActionRegister)); n != 0 {
		t.Errorf("ListenerCount() after Close = %d", n)
	}
}

func TestSetupCancelledContextLeavesNoListener(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, synapse.Configuration{"light": descriptors("a")})
	rec := &addRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := SetupEntry(ctx, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("SetupEntry() error = %v, want context.Canceled", err)
	}
	if p != nil {
		t.Errorf("SetupEntry() platform = %v, want nil", p)
	}
	if n := bus.ListenerCount(b.EventName(synapse.ActionRegister)); n != 0 {
		t.Errorf("ListenerCount() after cancelled setup = %d, want 0", n)
	}
	if len(rec.calls) != 0 {
		t.Errorf("AddEntities calls = %d after cancelled setup, want 0", len(rec.calls))
	}
}

func TestAppDataLightFollowsConfigurationAndUpdates(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, synapse.Configuration{
		"light": {synapse.NewDescriptor(map[string]any{"unique_id": "abc", "is_on": false})},
	})
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Stop)
	rec := &addRecorder{}
	setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add})

	fire := func(action string, data map[string]any) {
		t.Helper()
		if err := bus.Fire(context.Background(), b.EventName(action), data); err != nil {
			t.Fatal(err)
		}
	}
	configure := func(fields map[string]any) {
		t.Helper()
		fire(synapse.ActionConfiguration, map[string]any{
			"unique_id":     "meta-123",
			"configuration": map[string]any{"light": []any{fields}},
		})
	}

	if len(rec.calls) != 1 {
		t.Fatalf("AddEntities calls = %d, want the app data light", len(rec.calls))
	}
	first, ok := rec.calls[0][0].(*Light)
	if !ok {
		t.Fatalf("registered entity = %#v, want *Light", rec.calls[0][0])
	}
	if first.IsOn() {
		t.Fatal("app data light should start off")
	}

	configure(map[string]any{"unique_id": "abc", "is_on": true})
	fire(synapse.ActionUpdate, map[string]any{"unique_id": "abc", "brightness": 50})

	if !first.IsOn() {
		t.Error("first wrapper IsOn() = false after configuration turned it on")
	}
	if got, ok := first.Brightness(); !ok || got != 50 {
		t.Errorf("first wrapper Brightness() = %v, %v, want 50, true", got, ok)
	}

	// A republish that omits fields drops them.
	configure(map[string]any{"unique_id": "abc"})

	if first.IsOn() {
		t.Error("IsOn() = true after republish without is_on")
	}
	if got, ok := first.Brightness(); ok {
		t.Errorf("Brightness() = %v after republish without brightness, want absent", got)
	}
	if first.UniqueID() != "abc" {
		t.Errorf("UniqueID() = %q, want abc", first.UniqueID())
	}
}

func TestDispatchModes(t *testing.T) {
	tests := []struct {
		name     string
		dispatch DispatchMode
	}{
		{"bridge", DispatchBridge},
		{"bus", DispatchBus},
		{"default", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := platform.NewLocalBus()
			b := newBridge(t, bus, synapse.Configuration{"light": descriptors("abc123")})
			rec := &addRecorder{}
			p := setup(t, SetupOptions{Bridge: b, Bus: bus, AddEntities: rec.add, Mode: SetupStatic, Dispatch: tt.dispatch})

			var got []platform.Event
			sub, err := bus.Listen(b.EventName(ActionTurnOn), func(_ context.Context, ev platform.Event) {
				got = append(got, ev)
			})
			if err != nil {
				t.Fatal(err)
			}
			defer sub.Cancel()

			if err := p.Lights()[0].TurnOn(context.Background(), map[string]any{"brightness": 200}); err != nil {
				t.Fatalf("TurnOn() error = %v", err)
			}

			if len(got) != 1 {
				t.Fatalf("events on %s = %d, want 1", b.EventName(ActionTurnOn), len(got))
			}
			want := map[string]any{"unique_id": "abc123", "brightness": 200}
			if !reflect.DeepEqual(got[0].Data, want) {
				t.Errorf("event data = %v, want %v", got[0].Data, want)
			}
		})
	}
}

func TestSetupEntryValidation(t *testing.T) {
	bus := platform.NewLocalBus()
	b := newBridge(t, bus, nil)
	add := func([]platform.Entity) {}

	tests := []struct {
		name string
		opts SetupOptions
	}{
		{"missing bridge", SetupOptions{Bus: bus, AddEntities: add}},
		{"missing add entities", SetupOptions{Bridge: b, Bus: bus}},
		{"unknown mode", SetupOptions{Bridge: b, Bus: bus, AddEntities: add, Mode: "sometimes"}},
		{"dynamic without bus", SetupOptions{Bridge: b, AddEntities: add}},
		{"bus dispatch without bus", SetupOptions{Bridge: b, AddEntities: add, Mode: SetupStatic, Dispatch: DispatchBus}},
		{"unknown dispatch", SetupOptions{Bridge: b, Bus: bus, AddEntities: add, Dispatch: "pigeon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SetupEntry(context.Background(), tt.opts); !errors.Is(err, ErrInvalidSetup) {
				t.Errorf("SetupEntry() error = %v, want ErrInvalidSetup", err)
			}
		})
	}
}
