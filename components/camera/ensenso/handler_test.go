package ensenso_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/ensenso/bus"
	"go.viam.com/ensenso/components/camera/ensenso"
	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/pointcloud"
	"go.viam.com/ensenso/rimage"
	"go.viam.com/ensenso/testutils/inject"
)

const (
	testWidth   = 640
	testHeight  = 480
	testFrameID = "ensenso_optical_frame"
)

type cameraCall struct {
	img  *messages.Image
	info *messages.CameraInfo
}

type recordingCamera struct {
	mu    sync.Mutex
	calls []cameraCall
	err   error
}

func (rc *recordingCamera) Publish(img *messages.Image, info *messages.CameraInfo) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.err != nil {
		return rc.err
	}
	rc.calls = append(rc.calls, cameraCall{img, info})
	return nil
}

type recordingImages struct {
	mu   sync.Mutex
	imgs []*messages.Image
	err  error
}

func (ri *recordingImages) Publish(img *messages.Image) error {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if ri.err != nil {
		return ri.err
	}
	ri.imgs = append(ri.imgs, img)
	return nil
}

type recordingClouds struct {
	mu     sync.Mutex
	clouds []*messages.PointCloud2
	err    error
}

func (rc *recordingClouds) Publish(cloud *messages.PointCloud2) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.err != nil {
		return rc.err
	}
	rc.clouds = append(rc.clouds, cloud)
	return nil
}

type recordingOutputs struct {
	leftRaw, rightRaw   recordingCamera
	leftRect, rightRect recordingImages
	points              recordingClouds
}

func (ro *recordingOutputs) outputs() ensenso.Outputs {
	return ensenso.Outputs{
		LeftRaw:   &ro.leftRaw,
		RightRaw:  &ro.rightRaw,
		LeftRect:  &ro.leftRect,
		RightRect: &ro.rightRect,
		Points:    &ro.points,
	}
}

func (ro *recordingOutputs) count() int {
	return len(ro.leftRaw.calls) + len(ro.rightRaw.calls) + len(ro.leftRect.imgs) +
		len(ro.rightRect.imgs) + len(ro.points.clouds)
}

func pixelBuffer(encoding string, channels int) rimage.PixelBuffer {
	data := make([]byte, testWidth*testHeight*channels)
	for i := range data {
		data[i] = byte(i)
	}
	return rimage.PixelBuffer{Width: testWidth, Height: testHeight, Encoding: encoding, Data: data}
}

func testBundle() ensenso.CaptureBundle {
	cloud := pointcloud.New(4, 2)
	for x := 0; x < 4; x++ {
		//nolint:errcheck
		cloud.Set(x, 0, pointcloud.NewVector(float64(x), 0, 1))
	}
	return ensenso.CaptureBundle{
		Cloud: cloud,
		Raw: ensenso.StereoPair{
			Left:  pixelBuffer(rimage.SourceEncodingMono8, 1),
			Right: pixelBuffer(rimage.SourceEncodingBGR8, 3),
		},
		Rectified: ensenso.StereoPair{
			Left:  pixelBuffer(rimage.SourceEncodingMono8, 1),
			Right: pixelBuffer(rimage.SourceEncodingMono8, 1),
		},
	}
}

// openSession returns a configured session over an injected device with a calibration per path.
func openSession(t *testing.T, device *inject.Device) *ensenso.Session {
	t.Helper()
	if device.CameraInfoFunc == nil {
		device.CameraInfoFunc = func(ctx context.Context, path ensenso.OpticalPath) (*messages.CameraInfo, error) {
			return &messages.CameraInfo{
				OpticalPath:     path.String(),
				Width:           testWidth,
				Height:          testHeight,
				DistortionModel: messages.DistortionPlumbBob,
				D:               []float64{0.1, 0.01, 0, 0, 0},
				K:               [9]float64{600, 0, 320, 0, 600, 240, 0, 0, 1},
			}, nil
		}
	}
	session := ensenso.NewSession(device, logging.NewTestLogger(t))
	ctx := context.Background()
	test.That(t, session.Open(ctx, ensenso.DefaultSerialNumber), test.ShouldBeNil)
	test.That(t, session.Configure(ctx, ensenso.CaptureOptions{}), test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, session.Close(ctx), test.ShouldBeNil)
	})
	return session
}

func TestHandlerPublishesEveryOutput(t *testing.T) {
	session := openSession(t, &inject.Device{})
	var ro recordingOutputs
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	handler := ensenso.NewHandler(session, ro.outputs(), testFrameID, clk, logging.NewTestLogger(t))
	test.That(t, handler.ProcessingStats(), test.ShouldResemble, ensenso.ProcessingStats{})

	handler.OnCapture(testBundle())
	test.That(t, ro.count(), test.ShouldEqual, 5)

	leftRaw := ro.leftRaw.calls[0]
	test.That(t, leftRaw.img.Encoding, test.ShouldEqual, messages.EncodingMono8)
	test.That(t, leftRaw.img.Data, test.ShouldHaveLength, 307200)
	test.That(t, leftRaw.img.Step, test.ShouldEqual, uint32(640))
	test.That(t, leftRaw.img.Header.FrameID, test.ShouldEqual, testFrameID)
	test.That(t, leftRaw.info.OpticalPath, test.ShouldEqual, "left")
	test.That(t, leftRaw.info.Header, test.ShouldResemble, leftRaw.img.Header)

	rightRaw := ro.rightRaw.calls[0]
	test.That(t, rightRaw.img.Encoding, test.ShouldEqual, messages.EncodingBGR8)
	test.That(t, rightRaw.img.Data, test.ShouldHaveLength, 921600)
	test.That(t, rightRaw.img.Step, test.ShouldEqual, uint32(1920))
	test.That(t, rightRaw.info.OpticalPath, test.ShouldEqual, "right")
	test.That(t, rightRaw.info.Header.FrameID, test.ShouldEqual, testFrameID)

	for _, img := range []*messages.Image{ro.leftRect.imgs[0], ro.rightRect.imgs[0]} {
		test.That(t, img.Encoding, test.ShouldEqual, messages.EncodingMono8)
		test.That(t, img.Data, test.ShouldHaveLength, 307200)
		test.That(t, img.Header.FrameID, test.ShouldEqual, testFrameID)
	}

	cloud := ro.points.clouds[0]
	test.That(t, cloud.Header.FrameID, test.ShouldEqual, testFrameID)
	test.That(t, cloud.Width, test.ShouldEqual, uint32(4))
	test.That(t, cloud.Height, test.ShouldEqual, uint32(2))
	test.That(t, cloud.IsDense, test.ShouldBeFalse)

	// one bundle shares one header
	header := leftRaw.img.Header
	test.That(t, header.Seq, test.ShouldEqual, uint32(1))
	test.That(t, header.Stamp, test.ShouldEqual, clk.Now())
	test.That(t, rightRaw.img.Header, test.ShouldResemble, header)
	test.That(t, ro.leftRect.imgs[0].Header, test.ShouldResemble, header)
	test.That(t, cloud.Header, test.ShouldResemble, header)

	// the device's timestamp wins over the clock and sequence numbers increase
	bundle := testBundle()
	bundle.Timestamp = time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	handler.OnCapture(bundle)
	test.That(t, ro.count(), test.ShouldEqual, 10)
	test.That(t, ro.points.clouds[1].Header.Seq, test.ShouldEqual, uint32(2))
	test.That(t, ro.points.clouds[1].Header.Stamp, test.ShouldEqual, bundle.Timestamp)

	// the mock clock does not move while a bundle is handled
	test.That(t, handler.ProcessingStats(), test.ShouldResemble, ensenso.ProcessingStats{Bundles: 2})
}

func TestHandlerIsolatesPublishFailures(t *testing.T) {
	session := openSession(t, &inject.Device{})
	var ro recordingOutputs
	ro.rightRect.err = errors.New("subscriber gone")
	logger, logs := logging.NewObservedTestLogger(t)
	handler := ensenso.NewHandler(session, ro.outputs(), testFrameID, nil, logger)

	handler.OnCapture(testBundle())
	test.That(t, ro.count(), test.ShouldEqual, 4)
	test.That(t, ro.rightRect.imgs, test.ShouldBeEmpty)
	test.That(t, ro.points.clouds, test.ShouldHaveLength, 1)

	failures := logs.FilterMessage("failed to publish").All()
	test.That(t, failures, test.ShouldHaveLength, 1)
	test.That(t, failures[0].ContextMap()["topic"], test.ShouldEqual, ensenso.TopicRightRect)
}

func TestHandlerTraceCaptures(t *testing.T) {
	session := openSession(t, &inject.Device{})
	var ro recordingOutputs
	logger, logs := logging.NewObservedTestLogger(t)
	logger.SetLevel(logging.INFO)
	handler := ensenso.NewHandler(session, ro.outputs(), testFrameID, nil, logger)

	handler.OnCapture(testBundle())
	test.That(t, logs.FilterMessage("published capture").Len(), test.ShouldEqual, 0)

	handler.TraceCaptures(2)
	for i := 0; i < 3; i++ {
		handler.OnCapture(testBundle())
	}
	traced := logs.FilterMessage("published capture").All()
	test.That(t, traced, test.ShouldHaveLength, 2)
	test.That(t, traced[0].ContextMap()["seq"], test.ShouldEqual, uint32(2))
	test.That(t, traced[1].ContextMap()["seq"], test.ShouldEqual, uint32(3))
	test.That(t, traced[1].ContextMap()["outputs"], test.ShouldEqual, int64(5))
}

func TestHandlerIsolatesConversionFailures(t *testing.T) {
	session := openSession(t, &inject.Device{})
	var ro recordingOutputs
	handler := ensenso.NewHandler(session, ro.outputs(), testFrameID, nil, logging.NewTestLogger(t))

	bundle := testBundle()
	bundle.Rectified.Left.Data = bundle.Rectified.Left.Data[:100]
	bundle.Cloud = nil
	handler.OnCapture(bundle)
	test.That(t, ro.leftRect.imgs, test.ShouldBeEmpty)
	test.That(t, ro.points.clouds, test.ShouldBeEmpty)
	test.That(t, ro.count(), test.ShouldEqual, 3)
}

func TestHandlerCalibrationFailureDropsThatPath(t *testing.T) {
	device := &inject.Device{}
	device.CameraInfoFunc = func(ctx context.Context, path ensenso.OpticalPath) (*messages.CameraInfo, error) {
		if path == ensenso.Right {
			return nil, errors.New("right camera not calibrated")
		}
		return &messages.CameraInfo{OpticalPath: path.String()}, nil
	}
	session := openSession(t, device)
	var ro recordingOutputs
	logger, logs := logging.NewObservedTestLogger(t)
	handler := ensenso.NewHandler(session, ro.outputs(), testFrameID, nil, logger)

	handler.OnCapture(testBundle())
	test.That(t, ro.leftRaw.calls, test.ShouldHaveLength, 1)
	test.That(t, ro.rightRaw.calls, test.ShouldBeEmpty)
	test.That(t, ro.rightRect.imgs, test.ShouldHaveLength, 1)
	test.That(t, ro.count(), test.ShouldEqual, 4)
	test.That(t, logs.FilterMessage("dropping raw image without calibration").Len(), test.ShouldEqual, 1)
}

func TestHandlerReportsUnknownEncodingOnce(t *testing.T) {
	session := openSession(t, &inject.Device{})
	var ro recordingOutputs
	logger, logs := logging.NewObservedTestLogger(t)
	handler := ensenso.NewHandler(session, ro.outputs(), testFrameID, nil, logger)

	bundle := testBundle()
	bundle.Rectified.Left.Encoding = "CV_16UC1"
	bundle.Rectified.Right.Encoding = "CV_16UC1"
	handler.OnCapture(bundle)
	handler.OnCapture(bundle)

	test.That(t, ro.count(), test.ShouldEqual, 10)
	test.That(t, ro.leftRect.imgs[0].Encoding, test.ShouldEqual, messages.EncodingMono8)
	test.That(t, ro.leftRect.imgs[0].Data, test.ShouldHaveLength, 307200)
	test.That(t, logs.FilterMessage("unknown pixel encoding, publishing as mono8").Len(), test.ShouldEqual, 1)
}

func TestHandlerOnBus(t *testing.T) {
	session := openSession(t, &inject.Device{})
	b := bus.New(logging.NewTestLogger(t))
	defer b.Close()

	outputs, err := ensenso.AdvertiseOutputs(b, "")
	test.That(t, err, test.ShouldBeNil)

	var mu sync.Mutex
	received := map[string]int{}
	for _, topic := range []string{
		ensenso.TopicLeftRaw, "left/camera_info", ensenso.TopicRightRaw, "right/camera_info",
		ensenso.TopicLeftRect, ensenso.TopicRightRect, ensenso.TopicPoints,
	} {
		topic := topic
		_, err := b.SubscribeAny(topic, bus.DefaultQueueSize, func(messages.Message) {
			mu.Lock()
			defer mu.Unlock()
			received[topic]++
		})
		test.That(t, err, test.ShouldBeNil)
	}

	handler := ensenso.NewHandler(session, outputs, testFrameID, nil, logging.NewTestLogger(t))
	handler.OnCapture(testBundle())

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, received, test.ShouldResemble, map[string]int{
			ensenso.TopicLeftRaw:   1,
			"left/camera_info":     1,
			ensenso.TopicRightRaw:  1,
			"right/camera_info":    1,
			ensenso.TopicLeftRect:  1,
			ensenso.TopicRightRect: 1,
			ensenso.TopicPoints:    1,
		})
	})

	// rectified images never carry calibration
	_, ok := b.Topic("left/image_rect/camera_info")
	test.That(t, ok, test.ShouldBeFalse)
	points, ok := b.Topic(ensenso.TopicPoints)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, points.Latched, test.ShouldBeTrue)
	leftRect, ok := b.Topic(ensenso.TopicLeftRect)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, leftRect.Latched, test.ShouldBeFalse)
}

func TestHandlerConcurrentCaptures(t *testing.T) {
	session := openSession(t, &inject.Device{})
	b := bus.New(logging.NewTestLogger(t))
	defer b.Close()

	outputs, err := ensenso.AdvertiseOutputs(b, "")
	test.That(t, err, test.ShouldBeNil)

	var mu sync.Mutex
	seqs := map[uint32]int{}
	_, err = bus.Subscribe(b, ensenso.TopicPoints, 100, func(cloud *messages.PointCloud2) {
		mu.Lock()
		defer mu.Unlock()
		seqs[cloud.Header.Seq]++
	})
	test.That(t, err, test.ShouldBeNil)

	handler := ensenso.NewHandler(session, outputs, testFrameID, nil, logging.NewTestLogger(t))

	const captures = 8
	done := make(chan struct{})
	var polling sync.WaitGroup
	polling.Add(1)
	go func() {
		defer polling.Done()
		for {
			select {
			case <-done:
				return
			default:
				b.Topics()
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < captures; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.OnCapture(testBundle())
		}()
	}
	wg.Wait()
	close(done)
	polling.Wait()

	published := uint64(0)
	for _, topic := range []string{
		ensenso.TopicLeftRaw, ensenso.TopicRightRaw, ensenso.TopicLeftRect, ensenso.TopicRightRect, ensenso.TopicPoints,
	} {
		info, ok := b.Topic(topic)
		test.That(t, ok, test.ShouldBeTrue)
		published += info.Stats.Published
	}
	test.That(t, published, test.ShouldEqual, uint64(captures*5))
	test.That(t, handler.ProcessingStats().Bundles, test.ShouldEqual, captures)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, seqs, test.ShouldHaveLength, captures)
		for seq, n := range seqs {
			test.That(tb, seq, test.ShouldBeGreaterThanOrEqualTo, uint32(1))
			test.That(tb, seq, test.ShouldBeLessThanOrEqualTo, uint32(captures))
			test.That(tb, n, test.ShouldEqual, 1)
		}
	})
}
