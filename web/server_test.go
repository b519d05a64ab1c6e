package web

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"nhooyr.io/websocket"

	"go.viam.com/ensenso/bus"
	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/pointcloud"
	"go.viam.com/ensenso/utils"
)

type fixture struct {
	bus    *bus.Bus
	rect   *bus.Publisher[*messages.Image]
	info   *bus.Publisher[*messages.CameraInfo]
	points *bus.Publisher[*messages.PointCloud2]
	server *httptest.Server
}

func newFixture(t *testing.T, health func() Health) *fixture {
	t.Helper()
	logger := logging.NewTestLogger(t)
	b := bus.New(logger)
	t.Cleanup(func() { b.Close() })

	rect, err := bus.Advertise[*messages.Image](b, "left/image_rect", false)
	test.That(t, err, test.ShouldBeNil)
	info, err := bus.Advertise[*messages.CameraInfo](b, "left/camera_info", false)
	test.That(t, err, test.ShouldBeNil)
	points, err := bus.Advertise[*messages.PointCloud2](b, "depth/points", true)
	test.That(t, err, test.ShouldBeNil)

	srv := NewServer(b, health, Options{}, logger)
	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(httpServer.Close)
	return &fixture{bus: b, rect: rect, info: info, points: points, server: httpServer}
}

func get(t *testing.T, url, accept string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	test.That(t, err, test.ShouldBeNil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func mono8(width, height int, seq uint32) *messages.Image {
	data := make([]byte, width*height)
	for i := range data {
		data[i] = byte(i)
	}
	return &messages.Image{
		Header:   messages.Header{Seq: seq, FrameID: "ensenso_optical_frame"},
		Width:    uint32(width),
		Height:   uint32(height),
		Encoding: messages.EncodingMono8,
		Step:     uint32(width),
		Data:     data,
	}
}

func cloudMsg(seq uint32) *messages.PointCloud2 {
	cloud := pointcloud.NewFromPoints([]r3.Vector{{X: 0, Y: 0, Z: 1}, {X: 0.1, Y: 0, Z: 1}, {X: 0, Y: 0.1, Z: 1}})
	return pointcloud.ToPointCloud2(cloud, messages.Header{Seq: seq, FrameID: "ensenso_optical_frame"})
}

func TestTopics(t *testing.T) {
	f := newFixture(t, nil)
	test.That(t, f.rect.Publish(mono8(2, 2, 1)), test.ShouldBeNil)

	resp := get(t, f.server.URL+"/topics", "")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	var topics []bus.TopicInfo
	test.That(t, json.NewDecoder(resp.Body).Decode(&topics), test.ShouldBeNil)
	test.That(t, topics, test.ShouldHaveLength, 3)
	test.That(t, topics[0].Name, test.ShouldEqual, "depth/points")
	test.That(t, topics[0].Latched, test.ShouldBeTrue)
	test.That(t, topics[2].Name, test.ShouldEqual, "left/image_rect")
	test.That(t, topics[2].Stats.Published, test.ShouldEqual, uint64(1))
}

func TestLatest(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("unknown topic", func(t *testing.T) {
		resp := get(t, f.server.URL+"/topics/nope/latest", "")
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
	})

	t.Run("nothing published", func(t *testing.T) {
		resp := get(t, f.server.URL+"/topics/left/image_rect/latest", "")
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
	})

	t.Run("unknown action", func(t *testing.T) {
		resp := get(t, f.server.URL+"/topics/left/image_rect", "")
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
	})

	test.That(t, f.rect.Publish(mono8(4, 3, 7)), test.ShouldBeNil)

	t.Run("image defaults to png", func(t *testing.T) {
		resp := get(t, f.server.URL+"/topics/left/image_rect/latest", "")
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, utils.MimeTypePNG)
		img, err := png.Decode(resp.Body)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Dx(), test.ShouldEqual, 4)
		test.That(t, img.Bounds().Dy(), test.ShouldEqual, 3)
	})

	t.Run("image by accept header", func(t *testing.T) {
		resp := get(t, f.server.URL+"/topics/left/image_rect/latest", "text/html, image/jpeg;q=0.9")
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, utils.MimeTypeJPEG)
	})

	t.Run("image by format", func(t *testing.T) {
		resp := get(t, f.server.URL+"/topics/left/image_rect/latest?format=qoi", utils.MimeTypeJPEG)
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, utils.MimeTypeQOI)
	})

	t.Run("camera info as json", func(t *testing.T) {
		info := &messages.CameraInfo{
			Header:          messages.Header{Seq: 7},
			OpticalPath:     "left",
			Width:           4,
			Height:          3,
			DistortionModel: messages.DistortionPlumbBob,
			D:               []float64{0.1, 0, 0, 0, 0},
		}
		test.That(t, f.info.Publish(info), test.ShouldBeNil)
		resp := get(t, f.server.URL+"/topics/left/camera_info/latest", "")
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		var got messages.CameraInfo
		test.That(t, json.NewDecoder(resp.Body).Decode(&got), test.ShouldBeNil)
		test.That(t, got.OpticalPath, test.ShouldEqual, "left")
		test.That(t, got.D, test.ShouldResemble, info.D)
	})

	t.Run("cloud as pcd", func(t *testing.T) {
		test.That(t, f.points.Publish(cloudMsg(7)), test.ShouldBeNil)
		for _, query := range []string{"", "?format=ascii"} {
			resp := get(t, f.server.URL+"/topics/depth/points/latest"+query, "")
			test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
			test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, utils.MimeTypePCD)
			cloud, err := pointcloud.ReadPCD(resp.Body)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, cloud.Size(), test.ShouldEqual, 3)
		}
	})
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	f := newFixture(t, func() Health {
		state := "closed"
		if healthy.Load() {
			state = "streaming"
		}
		return Health{Healthy: healthy.Load(), State: state, Serial: "150533"}
	})

	resp := get(t, f.server.URL+"/healthz", "")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusServiceUnavailable)

	healthy.Store(true)
	resp = get(t, f.server.URL+"/healthz", "")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	var health Health
	test.That(t, json.NewDecoder(resp.Body).Decode(&health), test.ShouldBeNil)
	test.That(t, health.State, test.ShouldEqual, "streaming")
	test.That(t, health.Serial, test.ShouldEqual, "150533")
}

func TestStream(t *testing.T) {
	f := newFixture(t, nil)
	// The points topic is latched so the first frame does not race the subscription.
	test.That(t, f.points.Publish(cloudMsg(1)), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/topics/depth/points/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	test.That(t, err, test.ShouldBeNil)
	defer conn.Close(websocket.StatusNormalClosure, "")

	typ, data, err := conn.Read(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, typ, test.ShouldEqual, websocket.MessageBinary)
	var first messages.PointCloud2
	test.That(t, json.Unmarshal(data, &first), test.ShouldBeNil)
	test.That(t, first.Header.Seq, test.ShouldEqual, uint32(1))
	test.That(t, first.Width, test.ShouldEqual, uint32(3))

	test.That(t, f.points.Publish(cloudMsg(2)), test.ShouldBeNil)
	_, data, err = conn.Read(ctx)
	test.That(t, err, test.ShouldBeNil)
	var second messages.PointCloud2
	test.That(t, json.Unmarshal(data, &second), test.ShouldBeNil)
	test.That(t, second.Header.Seq, test.ShouldEqual, uint32(2))

	_, _, err = websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.server.URL, "http")+"/topics/nope/stream", nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStartClose(t *testing.T) {
	logger := logging.NewTestLogger(t)
	b := bus.New(logger)
	defer b.Close()

	srv := NewServer(b, nil, Options{BindAddress: "localhost:0"}, logger)
	test.That(t, srv.Close(context.Background()), test.ShouldBeNil)
	test.That(t, srv.Start(context.Background()), test.ShouldBeNil)
	test.That(t, srv.Start(context.Background()), test.ShouldNotBeNil)
	test.That(t, srv.Addr(), test.ShouldNotBeEmpty)

	resp := get(t, fmt.Sprintf("http://%s/healthz", srv.Addr()), "")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)

	test.That(t, srv.Close(context.Background()), test.ShouldBeNil)
	test.That(t, srv.Close(context.Background()), test.ShouldBeNil)
}
