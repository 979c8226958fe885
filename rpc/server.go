// Package rpc serves the read-only HTTP query API over the lending engines
// and the event archive.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"crosslend/host"
	"crosslend/indexer"
	"crosslend/native/common"
	"crosslend/observability"
)

const (
	serviceName         = "crosslend-api"
	defaultRecentEvents = 50
	requestTimeout      = 10 * time.Second
)

// EventSource is the archive queried by the /events routes.
type EventSource interface {
	Query(ctx context.Context, module, recordID string) ([]indexer.EventRecord, error)
	Recent(ctx context.Context, limit int) ([]indexer.EventRecord, error)
}

// Config tunes the query API.
type Config struct {
	// RequestsPerSecond is the per-client refill rate; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// Server exposes engine state over HTTP. Every handler reads through
// host.Runtime.View so responses reflect committed state only.
type Server struct {
	rt      *host.Runtime
	events  EventSource
	logger  *slog.Logger
	limiter *clientLimiter
	router  chi.Router
}

// NewServer builds the router. events may be nil when no archive is
// configured; the /events routes then answer 503.
func NewServer(rt *host.Runtime, events EventSource, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{rt: rt, events: events, logger: logger}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = newClientLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		if s.limiter != nil {
			api.Use(s.limiter.middleware)
		}
		api.Get("/loans/{id}", s.getLoan)
		api.Get("/accounts/{addr}/loans", s.getAccountLoans)
		api.Get("/accounts/{addr}/loans/count", s.getAccountLoansCount)
		api.Get("/accounts/{addr}/collateral", s.getAccountPositions)
		api.Get("/assets/{token}", s.getAssetType)
		api.Get("/assets/{token}/rate", s.getAssetRate)
		api.Get("/moneymarkets/{token}", s.getMoneyMarket)
		api.Get("/collateral/{id}", s.getPosition)
		api.Get("/params", s.getParams)
		api.Get("/events", s.getRecentEvents)
		api.Get("/events/{module}/{id}", s.getRecordEvents)
	})
	return r
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, serviceName)
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.API().Observe(route, status, time.Since(start))
		if status >= http.StatusInternalServerError {
			s.logger.Error("query failed",
				slog.String("route", route),
				slog.Int("status", status))
		}
	})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeEngineError maps an engine failure onto an HTTP status.
func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	code := common.ReasonOf(err)
	if code == "" {
		code = string(common.KindOf(err))
	}
	if code == "" {
		code = "internal"
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeError(w, status, code, message)
}

func statusFor(err error) int {
	switch common.KindOf(err) {
	case common.ErrValidation, common.ErrSecretMismatch:
		return http.StatusBadRequest
	case common.ErrNotFound:
		return http.StatusNotFound
	case common.ErrState, common.ErrExpiry, common.ErrContractDisabled, common.ErrInsufficientFunds:
		return http.StatusConflict
	case common.ErrAuthorization:
		return http.StatusForbidden
	}
	if errors.Is(err, host.ErrUnknownToken) || errors.Is(err, host.ErrUnknownMarket) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
