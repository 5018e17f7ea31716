package platform

import "errors"

var (
	// ErrInvalidEventName is returned when an event name is empty.
	ErrInvalidEventName = errors.New("platform: event name cannot be empty")

	// ErrNilHandler is returned when Listen is called without a handler.
	ErrNilHandler = errors.New("platform: handler cannot be nil")

	// ErrBusClosed is returned when firing or listening on a closed bus.
	ErrBusClosed = errors.New("platform: bus closed")

	// ErrInvalidPayload is returned when an incoming event is not a JSON object.
	ErrInvalidPayload = errors.New("platform: event payload must be a JSON object")
)
