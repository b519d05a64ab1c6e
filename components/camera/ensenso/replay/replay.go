// Package replay implements an Ensenso device that plays back a ROS bag recorded from the
// driver's own topics.
package replay

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/ensenso/components/camera/ensenso"
	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/rimage/transform"
	"go.viam.com/ensenso/ros"
	"go.viam.com/ensenso/utils"
)

// Model is the device model name replay registers under.
const Model = "replay"

func init() {
	ensenso.RegisterDevice(Model, func(
		ctx context.Context, attrs utils.AttributeMap, logger logging.Logger,
	) (ensenso.Device, error) {
		cfg, _, err := utils.TransformAttributeMap[*Config](attrs)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate("camera.device"); err != nil {
			return nil, err
		}
		rb, err := ros.ReadBag(cfg.Bag)
		if err != nil {
			return nil, err
		}
		rec, err := LoadRecording(rb, cfg.Namespace)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", cfg.Bag)
		}
		logger.Infow("loaded recording", "bag", cfg.Bag, "frames", len(rec.Frames))
		return NewDevice(rec, *cfg, clock.New(), logger), nil
	})
}

// Config describes the bag to replay.
type Config struct {
	Bag string `json:"bag"`
	// Namespace is prepended to the topic names, e.g. "ensenso" for "/ensenso/left/image_raw".
	Namespace string `json:"namespace,omitempty"`
	// SerialNumber restricts which serial opens the device. Any serial does when empty.
	SerialNumber string  `json:"serial_no,omitempty"`
	FrameRate    float64 `json:"frame_rate,omitempty"`
	Loop         bool    `json:"loop,omitempty"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (cfg *Config) Validate(path string) error {
	if cfg.Bag == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "bag")
	}
	if cfg.FrameRate < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("frame_rate must not be negative, got %v", cfg.FrameRate))
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = 10
	}
	return nil
}

// Device replays a recording.
type Device struct {
	rec    *Recording
	cfg    Config
	clock  clock.Clock
	logger logging.Logger

	mu         sync.Mutex
	open       bool
	configured bool
	next       int
	callback   ensenso.CaptureFunc
	workers    utils.StoppableWorkers
}

// NewDevice returns a device that replays rec.
func NewDevice(rec *Recording, cfg Config, clk clock.Clock, logger logging.Logger) *Device {
	return &Device{rec: rec, cfg: cfg, clock: clk, logger: logger.Sublogger("replay")}
}

// OpenDevice opens the recording if serial matches the configured one.
func (d *Device) OpenDevice(ctx context.Context, serial string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return ensenso.ErrAlreadyOpen
	}
	if d.cfg.SerialNumber != "" && d.cfg.SerialNumber != serial {
		return errors.Wrapf(ensenso.ErrDeviceNotFound, "recording is of %q, not %q", d.cfg.SerialNumber, serial)
	}
	d.open = true
	d.next = 0
	return nil
}

// OpenTCPPort does nothing for a recording.
func (d *Device) OpenTCPPort(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return errors.Wrap(ensenso.ErrChannelUnavailable, "recording is not open")
	}
	return nil
}

// ConfigureCapture readies the recording for playback.
func (d *Device) ConfigureCapture(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return errors.Wrap(ensenso.ErrConfigureFailed, "recording is not open")
	}
	for _, path := range []ensenso.OpticalPath{ensenso.Left, ensenso.Right} {
		info, ok := d.rec.Calibration[path]
		if !ok {
			return errors.Wrapf(ensenso.ErrConfigureFailed, "recording has no %s calibration", path)
		}
		if _, err := transform.IntrinsicsFromCameraInfo(info); err != nil {
			return errors.Wrapf(ensenso.ErrConfigureFailed, "recorded %s calibration: %s", path, err)
		}
	}
	d.configured = true
	return nil
}

// EnableProjector has no effect on recorded images.
func (d *Device) EnableProjector(ctx context.Context, enabled bool) error {
	if enabled {
		d.logger.Debug("projector setting is ignored during replay")
	}
	return nil
}

// EnableFrontLight has no effect on recorded images.
func (d *Device) EnableFrontLight(ctx context.Context, enabled bool) error {
	if enabled {
		d.logger.Debug("front light setting is ignored during replay")
	}
	return nil
}

// RegisterCallback sets the function frames are delivered to.
func (d *Device) RegisterCallback(fn ensenso.CaptureFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = fn
	return nil
}

// Start begins playback at the configured frame rate.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return errors.New("recording is not configured")
	}
	if d.callback == nil {
		return errors.New("no capture callback registered")
	}
	if d.workers != nil {
		return errors.New("recording is already playing")
	}
	ticker := d.clock.Ticker(time.Duration(float64(time.Second) / d.cfg.FrameRate))
	fn := d.callback
	d.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		d.deliver(ctx, ticker, fn)
	})
	return nil
}

func (d *Device) deliver(ctx context.Context, ticker *clock.Ticker, fn ensenso.CaptureFunc) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		frame, ok := d.nextFrame()
		if !ok {
			d.logger.Info("recording finished")
			return
		}
		bundle, err := frame.bundle()
		if err != nil {
			d.logger.Warnw("skipping unreadable frame", "error", err)
			continue
		}
		fn(bundle)
	}
}

func (d *Device) nextFrame() (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.rec.Frames) {
		if !d.cfg.Loop {
			return Frame{}, false
		}
		d.next = 0
	}
	frame := d.rec.Frames[d.next]
	d.next++
	return frame, true
}

// Stop ends playback and waits for a callback in progress to return.
func (d *Device) Stop(ctx context.Context) error {
	d.mu.Lock()
	workers := d.workers
	d.workers = nil
	d.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
	return nil
}

// CloseTCPPort does nothing for a recording.
func (d *Device) CloseTCPPort(ctx context.Context) error {
	return nil
}

// CloseDevice stops playback and closes the recording.
func (d *Device) CloseDevice(ctx context.Context) error {
	if err := d.Stop(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.configured = false
	d.callback = nil
	return nil
}

// CameraInfo returns the recorded calibration of one optical path.
func (d *Device) CameraInfo(ctx context.Context, path ensenso.OpticalPath) (*messages.CameraInfo, error) {
	d.mu.Lock()
	open := d.open
	d.mu.Unlock()
	if !open {
		return nil, errors.New("recording is not open")
	}
	info, ok := d.rec.Calibration[path]
	if !ok {
		return nil, errors.Errorf("recording has no %s calibration", path)
	}
	return info.WithHeader(messages.Header{}), nil
}
