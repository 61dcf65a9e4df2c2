// Package diagnostics exposes the HTTP surface described in SPEC_FULL
// §4.8: health/readiness/liveness plus a per-context state dump. It is
// never on the data path of a SecurityContext's Feed/Flush/Consume calls
// — a process embedding this module wires it up purely for operational
// visibility, grounded on the teacher's internal/api.Handler.RegisterRoutes
// plus its internal/middleware logging/recovery stack.
package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/c2c-secure-channel/internal/debug"
	"github.com/kenneth/c2c-secure-channel/internal/metrics"
	"github.com/kenneth/c2c-secure-channel/internal/middleware"
)

// ChannelStats is one context's state, as surfaced at /debug/channels.
type ChannelStats struct {
	ID              string `json:"id"`
	Scheme          string `json:"scheme"`
	Armed           bool   `json:"armed"`
	AccumulatorFill int    `json:"accumulator_fill"`
	ChunkPlainMax   int    `json:"chunk_plain_max"`
	MaxWireLen      int    `json:"max_wire_len"`
}

// ChannelInspector is the narrow view of a SecurityContext this package
// needs for diagnostics. It is satisfied by a small adapter the caller
// provides, rather than by SecurityContext directly, so this package never
// needs to import the channel package.
type ChannelInspector interface {
	ID() string
	SchemeString() string
	Armed() bool
	AccumulatorFill() int
	ChunkPlainMax() int
	MaxWireLen() int
}

// Registry supplies the set of live contexts to report on.
type Registry interface {
	Channels() []ChannelInspector
}

// SliceRegistry adapts a fixed, already-known set of inspectors into a
// Registry. A *channel.SecurityContext satisfies ChannelInspector directly
// (it exposes ID/SchemeString/Armed/AccumulatorFill/ChunkPlainMax/
// MaxWireLen with matching signatures), so a caller can build one of these
// from its own contexts without this package importing channel.
type SliceRegistry []ChannelInspector

// Channels implements Registry.
func (r SliceRegistry) Channels() []ChannelInspector { return r }

// Server wires the diagnostics routes to a Registry and an optional
// KeyProvisioner health check, behind the teacher's logging/recovery
// middleware stack.
type Server struct {
	registry        Registry
	provisionerPing func() error
	logger          *logrus.Logger
	metrics         *metrics.Metrics
}

// NewServer builds a Server. provisionerPing may be nil if no key
// provisioner is configured, in which case /ready never fails on its
// account. m is the process's single Metrics instance — it must not be
// constructed again here, since Prometheus collectors can only be
// registered once per registry.
func NewServer(registry Registry, provisionerPing func() error, logger *logrus.Logger, m *metrics.Metrics) *Server {
	return &Server{registry: registry, provisionerPing: provisionerPing, logger: logger, metrics: m}
}

// RegisterRoutes mounts the diagnostics surface on r, wrapping every route
// with request logging and panic recovery.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.Use(middleware.LoggingMiddleware(s.logger))
	r.Use(middleware.RecoveryMiddleware(s.logger))

	r.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadinessHandler(func(ctx context.Context) error {
		if s.provisionerPing == nil {
			return nil
		}
		return s.provisionerPing()
	})).Methods(http.MethodGet)
	r.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/debug/channels", s.handleDebugChannels).Methods(http.MethodGet)
	r.HandleFunc("/debug/trace", s.handleDebugTrace).Methods(http.MethodGet, http.MethodPost)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

func (s *Server) handleDebugChannels(w http.ResponseWriter, r *http.Request) {
	channels := s.registry.Channels()
	stats := make([]ChannelStats, 0, len(channels))
	for _, c := range channels {
		stats = append(stats, ChannelStats{
			ID:              c.ID(),
			Scheme:          c.SchemeString(),
			Armed:           c.Armed(),
			AccumulatorFill: c.AccumulatorFill(),
			ChunkPlainMax:   c.ChunkPlainMax(),
			MaxWireLen:      c.MaxWireLen(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.WithError(err).Error("encode /debug/channels response")
	}
}

// handleDebugTrace is the run-time toggle for per-frame hex-dump tracing
// (channel.SecurityContext.traceFrame): GET reports the current state, POST
// with ?enabled=true|false flips it. Every security context configured with
// a Logger checks this same internal/debug flag before it ever writes an
// IV/ciphertext/tag to a log line, so tracing stays off unless this route,
// or DEBUG=true / LOG_LEVEL=debug in the environment at start-up (read by
// internal/debug), turns it on.
func (s *Server) handleDebugTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		switch r.URL.Query().Get("enabled") {
		case "true":
			debug.SetEnabled(true)
		case "false":
			debug.SetEnabled(false)
		default:
			http.Error(w, "enabled must be \"true\" or \"false\"", http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]bool{"enabled": debug.Enabled()}); err != nil {
		s.logger.WithError(err).Error("encode /debug/trace response")
	}
}
