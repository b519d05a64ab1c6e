// Package web exposes the driver's topics over HTTP for consumers outside the process.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"goji.io"
	"goji.io/pat"

	"go.viam.com/ensenso/bus"
	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/utils"
)

const shutdownTimeout = 5 * time.Second

// Options configure the server.
type Options struct {
	BindAddress string
	// CORSAllowedOrigins restricts browser consumers. Empty allows every origin.
	CORSAllowedOrigins []string
	// QueueSize is the per-stream subscriber queue depth.
	QueueSize int
}

// Health is reported by GET /healthz.
type Health struct {
	Healthy   bool   `json:"healthy"`
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Serial    string `json:"serial,omitempty"`

	// Milliseconds spent converting and publishing recent captures.
	ProcessingMeanMs float64 `json:"processing_mean_ms,omitempty"`
	ProcessingP95Ms  float64 `json:"processing_p95_ms,omitempty"`
}

// Server serves the topics of a bus.
type Server struct {
	bus     *bus.Bus
	health  func() Health
	options Options
	logger  logging.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
	workers    utils.StoppableWorkers
}

// NewServer returns a server for b. It does not listen until Start is called.
func NewServer(b *bus.Bus, health func() Health, options Options, logger logging.Logger) *Server {
	if options.QueueSize <= 0 {
		options.QueueSize = bus.DefaultQueueSize
	}
	if health == nil {
		health = func() Health { return Health{Healthy: true, State: "unknown"} }
	}
	return &Server{
		bus:     b,
		health:  health,
		options: options,
		logger:  logger,
	}
}

// Handler returns the routes of the server wrapped for CORS.
func (s *Server) Handler() http.Handler {
	mux := goji.NewMux()
	mux.Handle(pat.Get("/topics"), &topicsHandler{s})
	mux.Handle(pat.Get("/topics/*"), &topicHandler{s})
	mux.Handle(pat.Get("/healthz"), &healthHandler{s})

	corsHandler := cors.AllowAll()
	if len(s.options.CORSAllowedOrigins) > 0 {
		corsHandler = cors.New(cors.Options{
			AllowedOrigins: s.options.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		})
	}
	return corsHandler.Handler(mux)
}

// Start listens on the bind address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("web server already started")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.options.BindAddress)
	if err != nil {
		return errors.Wrapf(err, "error listening on %q", s.options.BindAddress)
	}
	s.addr = listener.Addr().String()

	s.workers = utils.NewStoppableWorkers()
	workersCtx := s.workers.Context()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end when the server is closed.
		BaseContext: func(net.Listener) context.Context { return workersCtx },
	}
	httpServer := s.httpServer
	s.workers.AddWorkers(func(context.Context) {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("error serving", "error", err)
		}
	})
	s.logger.Infow("serving topics", "address", s.addr)
	return nil
}

// Addr returns the address the server listens on, which is only known after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close stops serving and ends every open stream.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.workers.Stop()
	s.httpServer = nil
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

type topicsHandler struct {
	s *Server
}

func (h *topicsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, h.s.bus.Topics()); err != nil {
		h.s.logger.Debugw("error writing topics", "error", err)
	}
}

type healthHandler struct {
	s *Server
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health := h.s.health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	if err := writeJSON(w, status, health); err != nil {
		h.s.logger.Debugw("error writing health", "error", err)
	}
}

func httpError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	http.Error(w, fmt.Sprintf(format, args...), status)
}
