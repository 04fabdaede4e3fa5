package core

import "errors"

// Bus transfer failure modes. The addressed-bus driver distinguishes a
// missing acknowledge at each phase of a transfer from a wedged bus, so
// callers can tell an absent device from a broken one.
var (
	ErrTimeout       = errors.New("bus timeout")
	ErrNACK          = errors.New("nack on data byte")
	ErrStartNACK     = errors.New("nack on address write")
	ErrStartReadNACK = errors.New("nack on address read")
)

// UnrecoverableError marks a fault that leaves a peripheral in an
// undefined state. Drivers return it through normal error paths instead
// of halting; the embedding firmware decides how to halt.
type UnrecoverableError struct {
	Reason string
}

func (e *UnrecoverableError) Error() string { return e.Reason }

// Unrecoverable wraps a reason into an UnrecoverableError.
func Unrecoverable(reason string) error {
	return &UnrecoverableError{Reason: reason}
}

// IsUnrecoverable reports whether err carries an UnrecoverableError.
func IsUnrecoverable(err error) bool {
	var ue *UnrecoverableError
	return errors.As(err, &ue)
}

// BusStatus maps a transfer error to the status code used on the wire:
// 0 success, -1 data NACK, -2 timeout, -3 address NACK during a write
// start, -4 address NACK during a read start.
func BusStatus(err error) int32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNACK):
		return -1
	case errors.Is(err, ErrStartNACK):
		return -3
	case errors.Is(err, ErrStartReadNACK):
		return -4
	default:
		return -2
	}
}
