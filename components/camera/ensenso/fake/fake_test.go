package fake

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/ensenso/components/camera/ensenso"
	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/rimage"
	"go.viam.com/ensenso/rimage/transform"
	"go.viam.com/ensenso/utils"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{Width: 64, Height: 48, CloudStep: 8, ColorRight: true}
	test.That(t, cfg.Validate("camera.device"), test.ShouldBeNil)
	return cfg
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	test.That(t, cfg.Validate("camera.device"), test.ShouldBeNil)
	test.That(t, cfg.Serials, test.ShouldResemble, []string{ensenso.DefaultSerialNumber})
	test.That(t, cfg.FrameRate, test.ShouldEqual, 10.)
	test.That(t, cfg.Width, test.ShouldEqual, 640)
	test.That(t, cfg.Height, test.ShouldEqual, 480)

	cfg = Config{FrameRate: -1}
	err := cfg.Validate("camera.device")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera.device")
}

func TestRegistered(t *testing.T) {
	test.That(t, ensenso.RegisteredModels(), test.ShouldContain, Model)
	device, err := ensenso.NewDevice(context.Background(), Model, utils.AttributeMap{"serials": []string{"1", "2"}},
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, device.(*Device).cfg.Serials, test.ShouldResemble, []string{"1", "2"})

	_, err = ensenso.NewDevice(context.Background(), Model, utils.AttributeMap{"width_px": -3}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOpenUnknownSerial(t *testing.T) {
	device := NewDevice(testConfig(t), clock.NewMock(), logging.NewTestLogger(t))
	err := device.OpenDevice(context.Background(), "999999")
	test.That(t, errors.Is(err, ensenso.ErrDeviceNotFound), test.ShouldBeTrue)

	err = device.OpenTCPPort(context.Background())
	test.That(t, errors.Is(err, ensenso.ErrChannelUnavailable), test.ShouldBeTrue)

	_, err = device.CameraInfo(context.Background(), ensenso.Left)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, device.OpenDevice(context.Background(), ensenso.DefaultSerialNumber), test.ShouldBeNil)
	err = device.OpenDevice(context.Background(), ensenso.DefaultSerialNumber)
	test.That(t, errors.Is(err, ensenso.ErrAlreadyOpen), test.ShouldBeTrue)
	test.That(t, device.CloseDevice(context.Background()), test.ShouldBeNil)
}

func TestCapture(t *testing.T) {
	cfg := testConfig(t)
	clk := clock.NewMock()
	device := NewDevice(cfg, clk, logging.NewTestLogger(t))

	bundle := device.Capture()
	test.That(t, bundle.Timestamp, test.ShouldEqual, clk.Now())
	test.That(t, bundle.Raw.Left.Encoding, test.ShouldEqual, rimage.SourceEncodingMono8)
	test.That(t, bundle.Raw.Left.Data, test.ShouldHaveLength, 64*48)
	test.That(t, bundle.Raw.Right.Encoding, test.ShouldEqual, rimage.SourceEncodingBGR8)
	test.That(t, bundle.Raw.Right.Data, test.ShouldHaveLength, 64*48*3)
	test.That(t, bundle.Rectified.Left.Data, test.ShouldHaveLength, 64*48)
	test.That(t, bundle.Rectified.Right.Data, test.ShouldHaveLength, 64*48)

	// the lens distorts the raw image away from the rectified one
	test.That(t, bundle.Raw.Left.Data, test.ShouldNotResemble, bundle.Rectified.Left.Data)

	test.That(t, bundle.Cloud.Width(), test.ShouldEqual, 8)
	test.That(t, bundle.Cloud.Height(), test.ShouldEqual, 6)
	meta := bundle.Cloud.MetaData()
	test.That(t, meta.ValidPoints, test.ShouldBeGreaterThan, 0)
	test.That(t, meta.ValidPoints, test.ShouldBeLessThan, 8*6)
	test.That(t, meta.MinZ, test.ShouldEqual, cfg.Depth)
	test.That(t, meta.MaxZ, test.ShouldEqual, cfg.Depth)

	// the projector and front light change the image content
	dark := bundle.Rectified.Left.Data
	test.That(t, device.EnableFrontLight(context.Background(), true), test.ShouldBeNil)
	lit := device.Capture().Rectified.Left.Data
	test.That(t, lit[0], test.ShouldBeGreaterThan, dark[0])
	test.That(t, device.EnableProjector(context.Background(), true), test.ShouldBeNil)
	test.That(t, device.Capture().Rectified.Left.Data, test.ShouldNotResemble, lit)
}

func TestCameraInfo(t *testing.T) {
	device := NewDevice(testConfig(t), clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, device.OpenDevice(context.Background(), ensenso.DefaultSerialNumber), test.ShouldBeNil)

	left, err := device.CameraInfo(context.Background(), ensenso.Left)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, left.OpticalPath, test.ShouldEqual, "left")
	test.That(t, left.Width, test.ShouldEqual, uint32(64))
	test.That(t, left.D, test.ShouldHaveLength, 5)
	test.That(t, left.P[3], test.ShouldEqual, 0.)

	right, err := device.CameraInfo(context.Background(), ensenso.Right)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, right.P[3], test.ShouldBeLessThan, 0.)

	model, err := transform.IntrinsicsFromCameraInfo(right)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Fx, test.ShouldEqual, device.models[ensenso.Right].Raw.Fx)
	test.That(t, device.CloseDevice(context.Background()), test.ShouldBeNil)
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	device := NewDevice(testConfig(t), clk, logging.NewTestLogger(t))

	bundles := make(chan ensenso.CaptureBundle, 10)
	test.That(t, device.OpenDevice(ctx, ensenso.DefaultSerialNumber), test.ShouldBeNil)
	test.That(t, device.OpenTCPPort(ctx), test.ShouldBeNil)
	test.That(t, device.ControlChannelOpen(), test.ShouldBeTrue)

	test.That(t, device.Start(ctx), test.ShouldNotBeNil)
	test.That(t, device.ConfigureCapture(ctx), test.ShouldBeNil)
	test.That(t, device.Start(ctx), test.ShouldNotBeNil)

	test.That(t, device.RegisterCallback(func(b ensenso.CaptureBundle) { bundles <- b }), test.ShouldBeNil)
	test.That(t, device.Start(ctx), test.ShouldBeNil)
	test.That(t, device.Start(ctx), test.ShouldNotBeNil)

	clk.Add(100 * time.Millisecond)
	select {
	case b := <-bundles:
		test.That(t, b.Timestamp, test.ShouldEqual, clk.Now())
	case <-time.After(5 * time.Second):
		t.Fatal("no capture delivered")
	}

	test.That(t, device.Stop(ctx), test.ShouldBeNil)
	// drain a frame that may have been in flight when Stop was called
	for len(bundles) > 0 {
		<-bundles
	}
	clk.Add(time.Second)
	test.That(t, bundles, test.ShouldBeEmpty)

	test.That(t, device.CloseTCPPort(ctx), test.ShouldBeNil)
	test.That(t, device.ControlChannelOpen(), test.ShouldBeFalse)
	test.That(t, device.CloseDevice(ctx), test.ShouldBeNil)
}

func TestSessionOverFake(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	device := NewDevice(testConfig(t), clk, logging.NewTestLogger(t))
	session := ensenso.NewSession(device, logging.NewTestLogger(t))

	test.That(t, session.Open(ctx, ensenso.DefaultSerialNumber), test.ShouldBeNil)
	test.That(t, session.EstablishControlChannel(ctx), test.ShouldBeNil)
	test.That(t, session.Configure(ctx, ensenso.CaptureOptions{Projector: true}), test.ShouldBeNil)

	infos := make(chan string, 10)
	test.That(t, session.Start(ctx, func(b ensenso.CaptureBundle) {
		// calibration is queried from inside the callback, as the handler does
		info, err := session.Calibration(ctx, ensenso.Left)
		if err == nil {
			infos <- info.OpticalPath
		}
	}), test.ShouldBeNil)
	clk.Add(100 * time.Millisecond)
	select {
	case path := <-infos:
		test.That(t, path, test.ShouldEqual, "left")
	case <-time.After(5 * time.Second):
		t.Fatal("no capture delivered")
	}
	test.That(t, session.Close(ctx), test.ShouldBeNil)
	test.That(t, device.ControlChannelOpen(), test.ShouldBeFalse)
}
