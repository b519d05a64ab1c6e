package ensenso

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"

	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/pointcloud"
	"go.viam.com/ensenso/rimage"
)

// CalibrationSource answers calibration queries, normally a *Session.
type CalibrationSource interface {
	Calibration(ctx context.Context, path OpticalPath) (*messages.CameraInfo, error)
}

// CameraChannel publishes an image together with its calibration.
type CameraChannel interface {
	Publish(img *messages.Image, info *messages.CameraInfo) error
}

// ImageChannel publishes images.
type ImageChannel interface {
	Publish(img *messages.Image) error
}

// CloudChannel publishes point clouds.
type CloudChannel interface {
	Publish(cloud *messages.PointCloud2) error
}

// Outputs are the five channels one capture is published on.
type Outputs struct {
	LeftRaw   CameraChannel
	RightRaw  CameraChannel
	LeftRect  ImageChannel
	RightRect ImageChannel
	Points    CloudChannel
}

// Handler turns capture bundles into messages and publishes them. OnCapture may run concurrently
// with itself; the only state it changes is the sequence counter and the set of encodings
// already reported.
type Handler struct {
	calibration CalibrationSource
	outputs     Outputs
	frameID     string
	clock       clock.Clock
	logger      logging.Logger

	seq              atomic.Uint32
	reportedEncoding sync.Map
	traceRemaining   atomic.Int64

	durationsMu sync.Mutex
	durations   []float64
	nextSample  int
}

// processingSamples is how many recent bundles ProcessingStats summarizes.
const processingSamples = 100

// ProcessingStats summarizes how long recent bundles took to convert and publish.
type ProcessingStats struct {
	Bundles int     `json:"bundles"`
	MeanMs  float64 `json:"mean_ms"`
	P95Ms   float64 `json:"p95_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// NewHandler returns a handler that stamps every output with frameID. A nil clk uses the wall
// clock for bundles the device did not timestamp.
func NewHandler(
	calibration CalibrationSource,
	outputs Outputs,
	frameID string,
	clk clock.Clock,
	logger logging.Logger,
) *Handler {
	if clk == nil {
		clk = clock.New()
	}
	return &Handler{
		calibration: calibration,
		outputs:     outputs,
		frameID:     frameID,
		clock:       clk,
		logger:      logger.Sublogger("capture"),
	}
}

// OnCapture is the CaptureFunc handed to Session.Start. Failures are logged and confined to the
// output they affect.
func (h *Handler) OnCapture(bundle CaptureBundle) {
	ctx := context.Background()
	if h.takeTrace() {
		ctx = logging.EnableDebugMode(ctx)
	}
	start := h.clock.Now()
	h.handle(ctx, bundle)
	h.recordDuration(h.clock.Since(start))
}

// TraceCaptures makes the next n captures log their debug lines whatever the logger's level.
func (h *Handler) TraceCaptures(n int) {
	h.traceRemaining.Store(int64(n))
}

func (h *Handler) takeTrace() bool {
	for {
		n := h.traceRemaining.Load()
		if n <= 0 {
			return false
		}
		if h.traceRemaining.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (h *Handler) recordDuration(d time.Duration) {
	h.durationsMu.Lock()
	defer h.durationsMu.Unlock()
	ms := float64(d) / float64(time.Millisecond)
	if len(h.durations) < processingSamples {
		h.durations = append(h.durations, ms)
		return
	}
	h.durations[h.nextSample] = ms
	h.nextSample = (h.nextSample + 1) % processingSamples
}

// ProcessingStats returns the processing time of the last bundles. It is zero before the first
// bundle.
func (h *Handler) ProcessingStats() ProcessingStats {
	h.durationsMu.Lock()
	samples := append([]float64(nil), h.durations...)
	h.durationsMu.Unlock()
	if len(samples) == 0 {
		return ProcessingStats{}
	}
	// Errors only come from empty input.
	mean, _ := stats.Mean(samples)
	p95, _ := stats.PercentileNearestRank(samples, 95)
	maxMs, _ := stats.Max(samples)
	return ProcessingStats{Bundles: len(samples), MeanMs: mean, P95Ms: p95, MaxMs: maxMs}
}

// handle returns how many outputs were published.
func (h *Handler) handle(ctx context.Context, bundle CaptureBundle) int {
	stamp := bundle.Timestamp
	if stamp.IsZero() {
		stamp = h.clock.Now()
	}
	header := messages.Header{
		Seq:     h.seq.Add(1),
		Stamp:   stamp,
		FrameID: h.frameID,
	}

	leftInfo := h.cameraInfo(ctx, Left, header)
	rightInfo := h.cameraInfo(ctx, Right, header)

	leftRaw := h.toImage(bundle.Raw.Left, "left/image_raw", header)
	rightRaw := h.toImage(bundle.Raw.Right, "right/image_raw", header)
	leftRect := h.toImage(bundle.Rectified.Left, "left/image_rect", header)
	rightRect := h.toImage(bundle.Rectified.Right, "right/image_rect", header)

	var cloud *messages.PointCloud2
	if bundle.Cloud != nil {
		cloud = pointcloud.ToPointCloud2(bundle.Cloud, header)
	} else {
		h.logger.CDebugw(ctx, "capture has no point cloud", "seq", header.Seq)
	}

	published := 0
	if leftRaw != nil && leftInfo != nil {
		published += h.report(TopicLeftRaw, h.outputs.LeftRaw.Publish(leftRaw, leftInfo))
	}
	if rightRaw != nil && rightInfo != nil {
		published += h.report(TopicRightRaw, h.outputs.RightRaw.Publish(rightRaw, rightInfo))
	}
	if leftRect != nil {
		published += h.report(TopicLeftRect, h.outputs.LeftRect.Publish(leftRect))
	}
	if rightRect != nil {
		published += h.report(TopicRightRect, h.outputs.RightRect.Publish(rightRect))
	}
	if cloud != nil {
		published += h.report(TopicPoints, h.outputs.Points.Publish(cloud))
	}
	h.logger.CDebugw(ctx, "published capture", "seq", header.Seq, "outputs", published)
	return published
}

func (h *Handler) cameraInfo(ctx context.Context, path OpticalPath, header messages.Header) *messages.CameraInfo {
	info, err := h.calibration.Calibration(ctx, path)
	if err != nil {
		h.logger.Warnw("dropping raw image without calibration", "path", path, "seq", header.Seq, "error", err)
		return nil
	}
	return info.WithHeader(header)
}

func (h *Handler) toImage(buf rimage.PixelBuffer, product string, header messages.Header) *messages.Image {
	if _, known := rimage.ClassifyEncoding(buf.Encoding); !known {
		if _, reported := h.reportedEncoding.LoadOrStore(buf.Encoding, struct{}{}); !reported {
			h.logger.Warnw("unknown pixel encoding, publishing as mono8", "encoding", buf.Encoding, "product", product)
		}
	}
	img, err := rimage.ToImageMsg(buf, header)
	if err != nil {
		h.logger.Warnw("dropping image that could not be converted", "product", product, "seq", header.Seq, "error", err)
		return nil
	}
	return img
}

func (h *Handler) report(topic string, err error) int {
	if err != nil {
		h.logger.Warnw("failed to publish", "topic", topic, "error", err)
		return 0
	}
	return 1
}
