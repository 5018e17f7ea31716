package entity

import "errors"

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("entity: not found")

	// ErrMissingUniqueID is returned when an entity has an empty unique id.
	ErrMissingUniqueID = errors.New("entity: unique id is required")

	// ErrDuplicateUniqueID is returned when a live entity already holds the
	// same domain and unique id.
	ErrDuplicateUniqueID = errors.New("entity: unique id already registered")

	// ErrEntityIDExists is returned when inserting a record whose entity_id
	// is taken.
	ErrEntityIDExists = errors.New("entity: entity id already exists")
)
