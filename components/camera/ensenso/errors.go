package ensenso

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var (
	// ErrDeviceNotFound is returned by Open when no device matches the serial number.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrAlreadyOpen is returned by Open when the session is not closed.
	ErrAlreadyOpen = errors.New("session already open")
	// ErrChannelUnavailable is returned when the control channel cannot be established.
	ErrChannelUnavailable = errors.New("control channel unavailable")
	// ErrConfigureFailed is returned when the device rejects the capture parameters.
	ErrConfigureFailed = errors.New("configure failed")
	// ErrInvalidState is returned for an operation the session's current state does not allow.
	ErrInvalidState = errors.New("invalid session state")
)

func newInvalidStateError(op string, from State) error {
	return errors.Wrapf(ErrInvalidState, "cannot %s from %s", op, from)
}

// asLifecycleError makes sure err matches sentinel with errors.Is while keeping the device's own
// error in the message.
func asLifecycleError(sentinel, err error, format string, args ...interface{}) error {
	if errors.Is(err, sentinel) {
		return errors.Wrapf(err, format, args...)
	}
	return errors.Wrapf(multierr.Combine(sentinel, err), format, args...)
}
