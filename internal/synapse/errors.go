package synapse

import "errors"

var (
	// ErrInvalidOptions is returned by New when a required option is missing.
	ErrInvalidOptions = errors.New("synapse: invalid bridge options")

	// ErrInvalidConfiguration is returned when a configuration or app data
	// document does not map categories to lists of objects.
	ErrInvalidConfiguration = errors.New("synapse: invalid configuration")

	// ErrInvalidAction is returned when an event action is empty or contains
	// MQTT topic separators or wildcards.
	ErrInvalidAction = errors.New("synapse: invalid action")
)
