package fleet

import "errors"

// Domain errors for the fleet package.
var (
	// ErrUnknownEvent is returned when decoding an event of an unrecognised type.
	ErrUnknownEvent = errors.New("fleet: unknown event type")

	// ErrInvalidStatus is returned for a device status outside the writable set.
	ErrInvalidStatus = errors.New("fleet: invalid device status")

	// ErrInvalidReport is returned for a malformed terminal status report.
	ErrInvalidReport = errors.New("fleet: invalid terminal report")
)
