package platform

import "context"

// Entity is a device object exposed to the host. Every accessor reads live
// state; the host never caches the returned values.
type Entity interface {
	// UniqueID identifies the device within its integration.
	UniqueID() string

	// Domain is the entity kind, for example "light".
	Domain() string

	// Name is the human-readable name.
	Name() string

	// Attributes returns the entity's current state attributes.
	Attributes() map[string]any
}

// ToggleEntity is an entity that accepts turn_on and turn_off service calls.
// Params are the free-form keyword arguments of the call.
type ToggleEntity interface {
	Entity
	TurnOn(ctx context.Context, params map[string]any) error
	TurnOff(ctx context.Context, params map[string]any) error
}

// AddEntitiesFunc hands newly constructed entities to the host. Platforms
// may call it any number of times over their lifetime.
type AddEntitiesFunc func(entities []Entity)
