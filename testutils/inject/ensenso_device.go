package inject

import (
	"context"

	"go.viam.com/ensenso/components/camera/ensenso"
	"go.viam.com/ensenso/messages"
)

// Device is an injected ensenso device. A call with no injected func goes to the embedded
// device, or succeeds without doing anything when there is none.
type Device struct {
	ensenso.Device
	OpenDeviceFunc       func(ctx context.Context, serial string) error
	OpenTCPPortFunc      func(ctx context.Context) error
	ConfigureCaptureFunc func(ctx context.Context) error
	EnableProjectorFunc  func(ctx context.Context, enabled bool) error
	EnableFrontLightFunc func(ctx context.Context, enabled bool) error
	RegisterCallbackFunc func(fn ensenso.CaptureFunc) error
	StartFunc            func(ctx context.Context) error
	StopFunc             func(ctx context.Context) error
	CloseTCPPortFunc     func(ctx context.Context) error
	CloseDeviceFunc      func(ctx context.Context) error
	CameraInfoFunc       func(ctx context.Context, path ensenso.OpticalPath) (*messages.CameraInfo, error)
}

// OpenDevice calls the injected OpenDevice or the real version.
func (d *Device) OpenDevice(ctx context.Context, serial string) error {
	if d.OpenDeviceFunc != nil {
		return d.OpenDeviceFunc(ctx, serial)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.OpenDevice(ctx, serial)
}

// OpenTCPPort calls the injected OpenTCPPort or the real version.
func (d *Device) OpenTCPPort(ctx context.Context) error {
	if d.OpenTCPPortFunc != nil {
		return d.OpenTCPPortFunc(ctx)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.OpenTCPPort(ctx)
}

// ConfigureCapture calls the injected ConfigureCapture or the real version.
func (d *Device) ConfigureCapture(ctx context.Context) error {
	if d.ConfigureCaptureFunc != nil {
		return d.ConfigureCaptureFunc(ctx)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.ConfigureCapture(ctx)
}

// EnableProjector calls the injected EnableProjector or the real version.
func (d *Device) EnableProjector(ctx context.Context, enabled bool) error {
	if d.EnableProjectorFunc != nil {
		return d.EnableProjectorFunc(ctx, enabled)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.EnableProjector(ctx, enabled)
}

// EnableFrontLight calls the injected EnableFrontLight or the real version.
func (d *Device) EnableFrontLight(ctx context.Context, enabled bool) error {
	if d.EnableFrontLightFunc != nil {
		return d.EnableFrontLightFunc(ctx, enabled)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.EnableFrontLight(ctx, enabled)
}

// RegisterCallback calls the injected RegisterCallback or the real version.
func (d *Device) RegisterCallback(fn ensenso.CaptureFunc) error {
	if d.RegisterCallbackFunc != nil {
		return d.RegisterCallbackFunc(fn)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.RegisterCallback(fn)
}

// Start calls the injected Start or the real version.
func (d *Device) Start(ctx context.Context) error {
	if d.StartFunc != nil {
		return d.StartFunc(ctx)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.Start(ctx)
}

// Stop calls the injected Stop or the real version.
func (d *Device) Stop(ctx context.Context) error {
	if d.StopFunc != nil {
		return d.StopFunc(ctx)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.Stop(ctx)
}

// CloseTCPPort calls the injected CloseTCPPort or the real version.
func (d *Device) CloseTCPPort(ctx context.Context) error {
	if d.CloseTCPPortFunc != nil {
		return d.CloseTCPPortFunc(ctx)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.CloseTCPPort(ctx)
}

// CloseDevice calls the injected CloseDevice or the real version.
func (d *Device) CloseDevice(ctx context.Context) error {
	if d.CloseDeviceFunc != nil {
		return d.CloseDeviceFunc(ctx)
	}
	if d.Device == nil {
		return nil
	}
	return d.Device.CloseDevice(ctx)
}

// CameraInfo calls the injected CameraInfo or the real version.
func (d *Device) CameraInfo(ctx context.Context, path ensenso.OpticalPath) (*messages.CameraInfo, error) {
	if d.CameraInfoFunc != nil {
		return d.CameraInfoFunc(ctx, path)
	}
	if d.Device == nil {
		return &messages.CameraInfo{OpticalPath: path.String()}, nil
	}
	return d.Device.CameraInfo(ctx, path)
}
