// Package fake implements a simulated Ensenso stereo camera. It looks at a plane facing the camera
// and renders a textured stereo pair and point cloud of it at a fixed frame rate.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/ensenso/components/camera/ensenso"
	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/pointcloud"
	"go.viam.com/ensenso/rimage/transform"
	"go.viam.com/ensenso/utils"
)

// Model is the device model name the fake registers under.
const Model = "fake"

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
		return NewDevice(*cfg, clock.New(), logger), nil
	})
}

// Config describes the simulated camera.
type Config struct {
	// Serials are the serial numbers the fake pretends are attached.
	Serials   []string `json:"serials,omitempty"`
	FrameRate float64  `json:"frame_rate,omitempty"`
	Width     int      `json:"width_px,omitempty"`
	Height    int      `json:"height_px,omitempty"`
	// ColorRight makes the right raw image bgr8 instead of mono8.
	ColorRight bool    `json:"color_right,omitempty"`
	Baseline   float64 `json:"baseline_m,omitempty"`
	Depth      float64 `json:"depth_m,omitempty"`
	// CloudStep is the pixel stride the point cloud is sampled at.
	CloudStep int `json:"cloud_step,omitempty"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (cfg *Config) Validate(path string) error {
	if cfg.FrameRate < 0 || cfg.Width < 0 || cfg.Height < 0 || cfg.Baseline < 0 || cfg.Depth < 0 || cfg.CloudStep < 0 {
		return utils.NewConfigValidationError(path, errors.New("frame_rate, sizes, baseline_m, depth_m and cloud_step must not be negative"))
	}
	if len(cfg.Serials) == 0 {
		cfg.Serials = []string{ensenso.DefaultSerialNumber}
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = 10
	}
	if cfg.Width == 0 {
		cfg.Width = 640
	}
	if cfg.Height == 0 {
		cfg.Height = 480
	}
	if cfg.Baseline == 0 {
		cfg.Baseline = 0.1
	}
	if cfg.Depth == 0 {
		cfg.Depth = 1
	}
	if cfg.CloudStep == 0 {
		cfg.CloudStep = 4
	}
	return nil
}

// Device is a simulated Ensenso camera.
type Device struct {
	cfg    Config
	clock  clock.Clock
	logger logging.Logger
	models map[ensenso.OpticalPath]*transform.StereoPathModel

	mu         sync.Mutex
	serial     string
	portOpen   bool
	configured bool
	projector  bool
	frontLight bool
	callback   ensenso.CaptureFunc
	workers    utils.StoppableWorkers
}

// NewDevice returns a fake device. cfg must have been validated.
func NewDevice(cfg Config, clk clock.Clock, logger logging.Logger) *Device {
	intrinsics := &transform.PinholeCameraIntrinsics{
		Width:  cfg.Width,
		Height: cfg.Height,
		Fx:     0.9 * float64(cfg.Width),
		Fy:     0.9 * float64(cfg.Width),
		Ppx:    float64(cfg.Width) / 2,
		Ppy:    float64(cfg.Height) / 2,
	}
	// The two lenses are slightly different and slightly rotated towards each other.
	leftDistortion := &transform.BrownConrady{RadialK1: -0.12, RadialK2: 0.05, TangentialP1: 0.001}
	rightDistortion := &transform.BrownConrady{RadialK1: -0.11, RadialK2: 0.04, TangentialP2: -0.001}
	const toe = 0.01
	return &Device{
		cfg:    cfg,
		clock:  clk,
		logger: logger.Sublogger("fake"),
		models: map[ensenso.OpticalPath]*transform.StereoPathModel{
			ensenso.Left: {
				Raw:           transform.PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: leftDistortion},
				Rectification: rotationY(toe),
				Rectified:     intrinsics,
			},
			ensenso.Right: {
				Raw:           transform.PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: rightDistortion},
				Rectification: rotationY(-toe),
				Rectified:     intrinsics,
				Baseline:      cfg.Baseline,
			},
		},
	}
}

func rotationY(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{c, 0, s, 0, 1, 0, -s, 0, c})
}

// OpenDevice opens the simulated camera if serial is one of the configured serials.
func (d *Device) OpenDevice(ctx context.Context, serial string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.serial != "" {
		return errors.Wrapf(ensenso.ErrAlreadyOpen, "fake device %q", d.serial)
	}
	for _, candidate := range d.cfg.Serials {
		if candidate == serial {
			d.serial = serial
			d.logger.Debugw("opened fake device", "serial", serial)
			return nil
		}
	}
	return errors.Wrapf(ensenso.ErrDeviceNotFound, "no fake device with serial %q, have %v", serial, d.cfg.Serials)
}

// OpenTCPPort opens the simulated control port.
func (d *Device) OpenTCPPort(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.serial == "" {
		return errors.Wrap(ensenso.ErrChannelUnavailable, "fake device is not open")
	}
	d.portOpen = true
	return nil
}

// ConfigureCapture prepares the simulated camera for capture.
func (d *Device) ConfigureCapture(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.serial == "" {
		return errors.Wrap(ensenso.ErrConfigureFailed, "fake device is not open")
	}
	d.configured = true
	return nil
}

// EnableProjector switches the texture projector pattern on or off.
func (d *Device) EnableProjector(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.projector = enabled
	return nil
}

// EnableFrontLight brightens the rendered images.
func (d *Device) EnableFrontLight(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frontLight = enabled
	return nil
}

// RegisterCallback sets the function captures are delivered to.
func (d *Device) RegisterCallback(fn ensenso.CaptureFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = fn
	return nil
}

// Start begins delivering captures at the configured frame rate.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured {
		return errors.New("fake device is not configured")
	}
	if d.callback == nil {
		return errors.New("no capture callback registered")
	}
	if d.workers != nil {
		return errors.New("fake device is already capturing")
	}
	period := time.Duration(float64(time.Second) / d.cfg.FrameRate)
	// The ticker exists before Start returns so that a mock clock advanced right after Start
	// already produces a frame.
	ticker := d.clock.Ticker(period)
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
		fn(d.Capture())
	}
}

// Stop ends delivery and waits for a callback in progress to return.
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

// ControlChannelOpen reports whether the simulated control port is open.
func (d *Device) ControlChannelOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.portOpen
}

// CloseTCPPort closes the simulated control port.
func (d *Device) CloseTCPPort(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.portOpen = false
	return nil
}

// CloseDevice stops delivery and releases the simulated camera.
func (d *Device) CloseDevice(ctx context.Context) error {
	if err := d.Stop(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.serial = ""
	d.configured = false
	d.callback = nil
	return nil
}

// CameraInfo returns the factory calibration of one optical path.
func (d *Device) CameraInfo(ctx context.Context, path ensenso.OpticalPath) (*messages.CameraInfo, error) {
	d.mu.Lock()
	open := d.serial != ""
	d.mu.Unlock()
	if !open {
		return nil, errors.New("fake device is not open")
	}
	model, ok := d.models[path]
	if !ok {
		return nil, errors.Errorf("fake device has no %s optical path", path)
	}
	return model.CameraInfo(path.String())
}

// Capture renders one bundle.
func (d *Device) Capture() ensenso.CaptureBundle {
	d.mu.Lock()
	projector, frontLight := d.projector, d.frontLight
	d.mu.Unlock()

	scene := scene{
		width:      d.cfg.Width,
		height:     d.cfg.Height,
		projector:  projector,
		frontLight: frontLight,
		disparity:  d.models[ensenso.Left].Rectified.Fx * d.cfg.Baseline / d.cfg.Depth,
	}
	leftRect := scene.render(0, nil)
	rightRect := scene.render(scene.disparity, nil)
	leftRaw := scene.render(0, d.models[ensenso.Left].Raw.DistortionMap())
	rightRaw := scene.render(scene.disparity, d.models[ensenso.Right].Raw.DistortionMap())

	rightRawBuf := mono8Buffer(scene.width, scene.height, rightRaw)
	if d.cfg.ColorRight {
		rightRawBuf = bgr8Buffer(scene.width, scene.height, rightRaw)
	}

	return ensenso.CaptureBundle{
		Cloud: d.cloud(scene.disparity),
		Raw: ensenso.StereoPair{
			Left:  mono8Buffer(scene.width, scene.height, leftRaw),
			Right: rightRawBuf,
		},
		Rectified: ensenso.StereoPair{
			Left:  mono8Buffer(scene.width, scene.height, leftRect),
			Right: mono8Buffer(scene.width, scene.height, rightRect),
		},
		Timestamp: d.clock.Now(),
	}
}

// cloud samples the plane every CloudStep pixels of the left rectified image. Pixels the right
// camera cannot see have no depth.
func (d *Device) cloud(disparity float64) pointcloud.PointCloud {
	intrinsics := d.models[ensenso.Left].Rectified
	step := d.cfg.CloudStep
	width := (d.cfg.Width + step - 1) / step
	height := (d.cfg.Height + step - 1) / step
	pc := pointcloud.New(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			u, v := float64(x*step), float64(y*step)
			if u < disparity {
				continue
			}
			p := intrinsics.PixelToPoint(u, v, d.cfg.Depth)
			if err := pc.Set(x, y, p); err != nil {
				d.logger.Errorw("cannot set point", "x", x, "y", y, "error", err)
			}
		}
	}
	return pc
}
