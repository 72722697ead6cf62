package bus

import "errors"

var (
	// ErrClosed is returned by all operations after Destroy.
	ErrClosed = errors.New("bus: bus is destroyed")

	// ErrTooManyListeners is returned by Subscribe when the configured
	// listener cap is reached.
	ErrTooManyListeners = errors.New("bus: listener limit reached")

	// ErrDeliveryTimeout is passed to the delivery failure hook when an
	// event's delivery exceeds the configured timeout.
	ErrDeliveryTimeout = errors.New("bus: delivery timed out")
)
