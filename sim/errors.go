package sim

import "errors"

// Construction-time validation errors. These are reported before any
// simulation state exists and are never recoverable.
var (
	// ErrInvalidModel wraps every lattice, type, configuration or process
	// validation failure.
	ErrInvalidModel = errors.New("invalid model")
	// ErrUnknownType is returned when a type label is absent from the type table.
	ErrUnknownType = errors.New("unknown type")
)

// Runtime fatal errors. The simulation cannot continue; the configuration is
// left in its last valid state.
var (
	// ErrNoAvailableProcess is returned when the total rate is zero.
	ErrNoAvailableProcess = errors.New("no available process: total rate is zero")
	// ErrNegativeCount is returned when a bucket update would drive a count negative.
	ErrNegativeCount = errors.New("bucket update drives a type count negative")
	// ErrInvalidRate is returned when a rate calculator yields a negative or non-finite rate.
	ErrInvalidRate = errors.New("rate calculator returned an invalid rate")
	// ErrInvalidState is returned when a kernel operation is called out of order.
	ErrInvalidState = errors.New("operation not valid in current kernel state")
)
