// Package server exposes the recognizer over HTTP.
//
// Routes:
//
//   - POST /v1/recognize: recognise one utterance and run its actions.
//   - GET  /v1/intents: list the loaded intents with their grammar outline.
//   - GET  /v1/stream: websocket; every text message is one utterance and
//     gets exactly one reply.
//   - GET  /healthz, /readyz: liveness and readiness.
//   - GET  /metrics: Prometheus scrape endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/phonomatch/internal/config"
	"github.com/MrWong99/phonomatch/internal/health"
	"github.com/MrWong99/phonomatch/internal/intent"
	"github.com/MrWong99/phonomatch/internal/observe"
	"github.com/MrWong99/phonomatch/internal/voicecmd"
)

// maxBodyBytes bounds the size of a recognize request body.
const maxBodyBytes = 64 << 10

// shutdownTimeout bounds graceful shutdown once the serve context ends.
const shutdownTimeout = 10 * time.Second

// RecognizeRequest is the body of POST /v1/recognize and of each stream
// message.
type RecognizeRequest struct {
	Text string `json:"text"`
}

// RecognizeResponse is the reply to a [RecognizeRequest].
type RecognizeResponse struct {
	Matched     bool                `json:"matched"`
	Recognition *intent.Recognition `json:"recognition,omitempty"`
	Actions     []voicecmd.Result   `json:"actions,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// IntentInfo describes a loaded intent in GET /v1/intents.
type IntentInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Budget      float64  `json:"budget,omitempty"`
	Outline     []string `json:"outline"`
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithHealth sets the readiness checkers served on /readyz.
func WithHealth(checkers ...health.Checker) Option {
	return func(s *Server) { s.health = health.New(checkers...) }
}

// WithMetricsHandler overrides the /metrics handler. Default:
// [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithHandler mounts an additional handler, such as the MCP endpoint, on
// pattern.
func WithHandler(pattern string, h http.Handler) Option {
	return func(s *Server) { s.extra = append(s.extra, route{pattern, h}) }
}

type route struct {
	pattern string
	handler http.Handler
}

// Server serves the recognition API. It reads the recognizer from a
// [intent.Live] on every request, so reloads take effect immediately.
type Server struct {
	live           *intent.Live
	filter         *voicecmd.Filter
	metrics        *observe.Metrics
	health         *health.Handler
	metricsHandler http.Handler
	extra          []route
	handler        http.Handler
}

// New creates a Server. filter runs the configured actions of each
// recognition and must use the same live recognizer.
func New(live *intent.Live, filter *voicecmd.Filter, opts ...Option) *Server {
	s := &Server{live: live, filter: filter}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New(health.Checker{Name: "intents", Check: live.Check})
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/recognize", s.handleRecognize)
	mux.HandleFunc("GET /v1/intents", s.handleIntents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.Handle("GET /metrics", s.metricsHandler)
	s.health.Register(mux)
	for _, r := range s.extra {
		mux.Handle(r.pattern, r.handler)
	}

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the root handler, wrapped with the observe middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. TLS is used when tlsCfg is non-nil.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsCfg *config.TLSConfig) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, tlsCfg)
}

// Serve is [Server.ListenAndServe] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, tlsCfg *config.TLSConfig) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", ln.Addr().String(), "tls", tlsCfg != nil)
		if tlsCfg != nil {
			errCh <- srv.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// recognize handles one utterance for both the REST and the stream API.
// The returned status is only used by the REST API.
func (s *Server) recognize(ctx context.Context, text string) (int, RecognizeResponse) {
	rec, results, err := s.filter.Check(ctx, text)
	switch {
	case errors.Is(err, voicecmd.ErrNoRecognizer):
		return http.StatusServiceUnavailable, RecognizeResponse{Error: err.Error()}
	case rec == nil && err != nil:
		observe.Logger(ctx).Warn("server: recognition failed", "err", err)
		return http.StatusBadGateway, RecognizeResponse{Error: err.Error()}
	case rec == nil:
		return http.StatusNotFound, RecognizeResponse{Matched: false}
	}
	// Action failures are reported per action and do not fail the request.
	return http.StatusOK, RecognizeResponse{Matched: true, Recognition: rec, Actions: results}
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, RecognizeResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	status, resp := s.recognize(r.Context(), req.Text)
	writeJSON(w, status, resp)
}

func (s *Server) handleIntents(w http.ResponseWriter, _ *http.Request) {
	r := s.live.Load()
	if r == nil {
		writeJSON(w, http.StatusServiceUnavailable, RecognizeResponse{Error: intent.ErrNotReady.Error()})
		return
	}
	intents := r.Intents()
	out := make([]IntentInfo, len(intents))
	for i, in := range intents {
		out[i] = IntentInfo{
			Name:        in.Name,
			Description: in.Description,
			Budget:      in.Budget,
			Outline:     in.Outline(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
