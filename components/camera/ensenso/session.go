package ensenso

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/ensenso/logging"
)

// State is the lifecycle state of a Session.
type State int32

// The session states, in lifecycle order.
const (
	StateClosed State = iota
	StateOpened
	StateConfigured
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpened:
		return "opened"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// CaptureOptions are the acquisition parameters applied by Configure.
type CaptureOptions struct {
	FrontLight bool
	Projector  bool
}

// Session owns one device from open to close.
//
// Lifecycle calls are serialized by opMu. The state itself is atomic so that Calibration, which
// the capture callback calls from the device's goroutine, never waits on a lifecycle call that
// may itself be waiting for that callback to return.
type Session struct {
	opMu        sync.Mutex
	state       atomic.Int32
	device      Device
	id          string
	serial      string
	channelOpen bool
	logger      logging.Logger
}

// NewSession returns a closed session for device.
func NewSession(device Device, logger logging.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		device: device,
		id:     id,
		logger: logger.Sublogger("session"),
	}
}

// ID uniquely identifies this session in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to {
		s.logger.Debugw("session state changed", "session", s.id, "from", from, "to", to)
	}
}

// Serial returns the serial number of the open device, empty when closed.
func (s *Session) Serial() string {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.serial
}

// Open binds the session to the device with the given serial number.
func (s *Session) Open(ctx context.Context, serial string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if state := s.State(); state != StateClosed {
		return errors.Wrapf(ErrAlreadyOpen, "session is %s", state)
	}
	if err := s.device.OpenDevice(ctx, serial); err != nil {
		return asLifecycleError(ErrDeviceNotFound, err, "opening device %q", serial)
	}
	s.serial = serial
	s.setState(StateOpened)
	s.logger.Infow("opened device", "session", s.id, "serial", serial)
	return nil
}

// EstablishControlChannel opens the device's control port. Calling it again once the channel is
// open does nothing.
func (s *Session) EstablishControlChannel(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if state := s.State(); state != StateOpened && state != StateConfigured {
		return newInvalidStateError("establish control channel", state)
	}
	if s.channelOpen {
		return nil
	}
	if err := s.device.OpenTCPPort(ctx); err != nil {
		return asLifecycleError(ErrChannelUnavailable, err, "opening control channel of %q", s.serial)
	}
	s.channelOpen = true
	return nil
}

// Configure applies the capture parameters. It may be called again before Start.
func (s *Session) Configure(ctx context.Context, opts CaptureOptions) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if state := s.State(); state != StateOpened && state != StateConfigured {
		return newInvalidStateError("configure", state)
	}
	if err := s.device.ConfigureCapture(ctx); err != nil {
		return asLifecycleError(ErrConfigureFailed, err, "configuring capture")
	}
	if err := s.device.EnableProjector(ctx, opts.Projector); err != nil {
		return asLifecycleError(ErrConfigureFailed, err, "setting projector to %t", opts.Projector)
	}
	if err := s.device.EnableFrontLight(ctx, opts.FrontLight); err != nil {
		return asLifecycleError(ErrConfigureFailed, err, "setting front light to %t", opts.FrontLight)
	}
	s.setState(StateConfigured)
	s.logger.Infow("configured capture", "session", s.id, "projector", opts.Projector, "front_light", opts.FrontLight)
	return nil
}

// Start registers fn and begins delivery. It returns as soon as the device is streaming; fn is
// then called on the device's goroutine for every capture.
func (s *Session) Start(ctx context.Context, fn CaptureFunc) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if state := s.State(); state != StateConfigured {
		return newInvalidStateError("start", state)
	}
	if fn == nil {
		return errors.New("capture callback must not be nil")
	}
	if err := s.device.RegisterCallback(fn); err != nil {
		return errors.Wrap(err, "registering capture callback")
	}
	if err := s.device.Start(ctx); err != nil {
		return errors.Wrap(err, "starting capture")
	}
	s.setState(StateStreaming)
	s.logger.Infow("capture started", "session", s.id)
	return nil
}

// Stop ends delivery. No callback runs after it returns. It does nothing unless streaming.
func (s *Session) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Session) stopLocked(ctx context.Context) error {
	if s.State() != StateStreaming {
		return nil
	}
	err := s.device.Stop(ctx)
	// Even a failed stop leaves the session configured so that Close still releases the device.
	s.setState(StateConfigured)
	if err != nil {
		return errors.Wrap(err, "stopping capture")
	}
	s.logger.Infow("capture stopped", "session", s.id)
	return nil
}

// Close stops capture if needed, closes the control channel and releases the device. Every step
// runs even if an earlier one fails. Closing a closed session does nothing.
func (s *Session) Close(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.State() == StateClosed {
		return nil
	}

	err := s.stopLocked(ctx)
	if s.channelOpen {
		if closeErr := s.device.CloseTCPPort(ctx); closeErr != nil {
			err = multierr.Combine(err, errors.Wrap(closeErr, "closing control channel"))
		}
		s.channelOpen = false
	}
	if closeErr := s.device.CloseDevice(ctx); closeErr != nil {
		err = multierr.Combine(err, errors.Wrap(closeErr, "closing device"))
	}
	s.setState(StateClosed)
	s.logger.Infow("closed device", "session", s.id, "serial", s.serial)
	s.serial = ""
	return err
}
