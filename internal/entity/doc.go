// Package entity is the host's entity registry.
//
// Platforms hand entities over through the AddEntitiesFunc returned by
// Registry.AddEntities. The registry gives each entity a stable entity_id
// (for example light.desk_lamp) that is persisted in SQLite and reused for
// the same unique_id after a restart, so API clients and history keep
// pointing at the same device.
//
// Only one live entity may hold a (domain, unique_id) pair. A second one is
// rejected and logged; the first stays registered.
package entity
