// Package ensenso drives an Ensenso structured light stereo camera: it owns the device session,
// turns each capture into image, calibration and point cloud messages, and publishes them.
package ensenso

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/pointcloud"
	"go.viam.com/ensenso/rimage"
	"go.viam.com/ensenso/utils"
)

// OpticalPath identifies one camera of the stereo head.
type OpticalPath int

const (
	// Left is the left camera, the reference of the stereo pair.
	Left OpticalPath = iota
	// Right is the right camera.
	Right
)

func (p OpticalPath) String() string {
	switch p {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// StereoPair is one image per optical path.
type StereoPair struct {
	Left  rimage.PixelBuffer
	Right rimage.PixelBuffer
}

// CaptureBundle is everything the device produced from one exposure. The buffers and cloud are
// only valid until the CaptureFunc that received them returns.
type CaptureBundle struct {
	Cloud     pointcloud.PointCloud
	Raw       StereoPair
	Rectified StereoPair
	// Timestamp is the device's capture time, zero if it reports none.
	Timestamp time.Time
}

// CaptureFunc receives capture bundles from the device's delivery goroutine.
type CaptureFunc func(CaptureBundle)

// Device is the boundary to the vendor SDK. Implementations deliver bundles on their own
// goroutine after Start and must not invoke the callback once Stop has returned.
type Device interface {
	OpenDevice(ctx context.Context, serial string) error
	OpenTCPPort(ctx context.Context) error
	ConfigureCapture(ctx context.Context) error
	EnableProjector(ctx context.Context, enabled bool) error
	EnableFrontLight(ctx context.Context, enabled bool) error
	RegisterCallback(fn CaptureFunc) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	CloseTCPPort(ctx context.Context) error
	CloseDevice(ctx context.Context) error
	CameraInfo(ctx context.Context, path OpticalPath) (*messages.CameraInfo, error)
}

// DeviceConstructor builds a device of one model from its model specific attributes.
type DeviceConstructor func(ctx context.Context, attrs utils.AttributeMap, logger logging.Logger) (Device, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]DeviceConstructor{}
)

// RegisterDevice registers a device model. It panics if the model is registered twice.
func RegisterDevice(model string, constructor DeviceConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[model]; ok {
		panic(errors.Errorf("device model %q already registered", model))
	}
	registry[model] = constructor
}

// NewDevice constructs a device of a registered model.
func NewDevice(ctx context.Context, model string, attrs utils.AttributeMap, logger logging.Logger) (Device, error) {
	registryMu.RLock()
	constructor, ok := registry[model]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown device model %q, registered models are %v", model, RegisteredModels())
	}
	return constructor(ctx, attrs, logger)
}

// RegisteredModels returns the sorted names of all registered device models.
func RegisteredModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := make([]string, 0, len(registry))
	for model := range registry {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}
