package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/observability/logging"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

const (
	defaultMaxUploadBytes   = 32 << 20
	defaultBackpressureWait = 250 * time.Millisecond
)

// IntakeAPI is what the router needs from the application layer.
type IntakeAPI interface {
	ports.BatchProcessor
	ports.SessionReader
}

type Options struct {
	Service          string
	MaxUploadBytes   int64
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration

	HTTPMetrics   *metrics.HTTPServerMetrics
	IntakeMetrics *metrics.IntakeMetrics
	// Health reports readiness of the backing stores; nil means always ready.
	Health func(context.Context) error
}

type Router struct {
	intake IntakeAPI
	opts   Options
}

func NewRouter(intake IntakeAPI, opts Options) *Router {
	if opts.Service == "" {
		opts.Service = "intake-api"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.BackpressureWait <= 0 {
		opts.BackpressureWait = defaultBackpressureWait
	}
	return &Router{intake: intake, opts: opts}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware)
	if m := rt.opts.HTTPMetrics; m != nil {
		r.Use(func(next http.Handler) http.Handler {
			return m.Middleware(rt.opts.Service, next)
		})
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/healthz", rt.healthz)
	r.Route("/v1/intake", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
		})
		r.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
		})
		r.Post("/batches", rt.createBatch)
		r.Get("/sessions/{sessionID}", rt.getSession)
		r.Delete("/sessions/{sessionID}", rt.deleteSession)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.opts.Health(ctx); err != nil {
			slog.WarnContext(r.Context(), "health_check_failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	state, err := rt.intake.GetSession(logging.WithSessionID(r.Context(), sessionID), sessionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := rt.intake.DeleteSession(logging.WithSessionID(r.Context(), sessionID), sessionID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{
		Success:   false,
		Message:   message,
		RequestID: logging.RequestID(r.Context()),
	})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "request_failed",
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, r, status, publicErrorMessage(status, err))
}
