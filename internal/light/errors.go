package light

import "errors"

var (
	// ErrInvalidSetup is returned by SetupEntry when a required option is
	// missing or a mode is unknown.
	ErrInvalidSetup = errors.New("light: invalid setup options")

	// ErrInvalidField reports a descriptor field with the wrong type.
	ErrInvalidField = errors.New("light: invalid descriptor field")

	// ErrMissingUniqueID reports a descriptor without a usable unique_id.
	ErrMissingUniqueID = errors.New("light: descriptor has no unique_id")

	// ErrNoDispatcher is returned when an action is invoked on a light built
	// without a dispatcher.
	ErrNoDispatcher = errors.New("light: no dispatcher")
)
