package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"goji.io/pattern"
	"nhooyr.io/websocket"

	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/pointcloud"
	"go.viam.com/ensenso/rimage"
	"go.viam.com/ensenso/utils"
)

const (
	latestSuffix = "/latest"
	streamSuffix = "/stream"
)

// topicHandler serves /topics/{topic}/latest and /topics/{topic}/stream. Topic names contain
// slashes so the route is a wildcard.
type topicHandler struct {
	s *Server
}

func (h *topicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(pattern.Path(r.Context()), "/")
	switch {
	case strings.HasSuffix(rest, latestSuffix):
		h.serveLatest(w, r, strings.TrimSuffix(rest, latestSuffix))
	case strings.HasSuffix(rest, streamSuffix):
		h.serveStream(w, r, strings.TrimSuffix(rest, streamSuffix))
	default:
		http.NotFound(w, r)
	}
}

func (h *topicHandler) serveLatest(w http.ResponseWriter, r *http.Request, topic string) {
	if _, ok := h.s.bus.Topic(topic); !ok {
		httpError(w, http.StatusNotFound, "unknown topic %q", topic)
		return
	}
	msg, ok := h.s.bus.Latest(topic)
	if !ok {
		httpError(w, http.StatusNotFound, "nothing published on %q yet", topic)
		return
	}

	switch m := msg.(type) {
	case *messages.Image:
		mimeType := requestedImageMimeType(r)
		img, err := rimage.ImageFromMsg(m)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "error converting image: %s", err)
			return
		}
		data, err := rimage.EncodeImage(r.Context(), img, mimeType)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "error encoding image: %s", err)
			return
		}
		writeBytes(w, mimeType, data)
	case *messages.CompressedImage:
		mimeType, ok := utils.MimeTypeFromFormat(m.Format)
		if !ok {
			mimeType = "application/octet-stream"
		}
		writeBytes(w, mimeType, m.Data)
	case *messages.PointCloud2:
		cloud, err := pointcloud.FromPointCloud2(m)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "error reading point cloud: %s", err)
			return
		}
		pcdType := pointcloud.PCDBinary
		if r.URL.Query().Get("format") == "ascii" {
			pcdType = pointcloud.PCDAscii
		}
		var buf bytes.Buffer
		if err := pointcloud.ToPCD(cloud, &buf, pcdType); err != nil {
			httpError(w, http.StatusInternalServerError, "error writing pcd: %s", err)
			return
		}
		writeBytes(w, utils.MimeTypePCD, buf.Bytes())
	default:
		if err := writeJSON(w, http.StatusOK, msg); err != nil {
			h.s.logger.Debugw("error writing message", "topic", topic, "error", err)
		}
	}
}

func writeBytes(w http.ResponseWriter, mimeType string, data []byte) {
	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write(data)
}

// requestedImageMimeType picks the encoding from the format query parameter, then the Accept
// header, and falls back to png.
func requestedImageMimeType(r *http.Request) string {
	if mimeType, ok := utils.MimeTypeFromFormat(r.URL.Query().Get("format")); ok {
		return mimeType
	}
	for _, accepted := range strings.Split(r.Header.Get("Accept"), ",") {
		accepted, _, _ = strings.Cut(strings.TrimSpace(accepted), ";")
		if mimeType, ok := utils.MimeTypeFromFormat(utils.FormatFromMimeType(accepted)); ok {
			return mimeType
		}
	}
	return utils.MimeTypePNG
}

// serveStream sends every message published on the topic as one binary websocket frame holding
// its JSON encoding.
func (h *topicHandler) serveStream(w http.ResponseWriter, r *http.Request, topic string) {
	if _, ok := h.s.bus.Topic(topic); !ok {
		httpError(w, http.StatusNotFound, "unknown topic %q", topic)
		return
	}
	acceptOpts := &websocket.AcceptOptions{OriginPatterns: h.s.options.CORSAllowedOrigins}
	if len(h.s.options.CORSAllowedOrigins) == 0 {
		acceptOpts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		h.s.logger.Debugw("error accepting stream", "topic", topic, "error", err)
		return
	}
	//nolint:errcheck
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	sub, err := h.s.bus.SubscribeAny(topic, h.s.options.QueueSize, func(msg messages.Message) {
		data, err := json.Marshal(msg)
		if err != nil {
			h.s.logger.Warnw("error encoding message", "topic", topic, "error", err)
			return
		}
		if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
			cancel()
		}
	})
	if err != nil {
		//nolint:errcheck
		conn.Close(websocket.StatusTryAgainLater, err.Error())
		return
	}
	defer sub.Unsubscribe()

	h.s.logger.Debugw("streaming topic", "topic", topic, "remote", r.RemoteAddr)
	<-ctx.Done()
	//nolint:errcheck
	conn.Close(websocket.StatusNormalClosure, "")
}
