package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"termin/internal/config"
	"termin/internal/database"
	"termin/internal/domain"
	"termin/internal/exports"
	"termin/internal/metrics"
	"termin/internal/scheduling"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Server exposes the booking, self-service management, and admin HTTP API.
type Server struct {
	cfg       *config.Config
	lifecycle *scheduling.Service
	admin     *scheduling.AdminService
	store     domain.Store
	exporter  *exports.Exporter
	auth      *AdminAuth
	server    *http.Server
	limiters  sync.Map // map[string]*rate.Limiter
	logger    *zerolog.Logger
}

func NewServer(cfg *config.Config, lifecycle *scheduling.Service, admin *scheduling.AdminService, store domain.Store, exporter *exports.Exporter, auth *AdminAuth, logger *zerolog.Logger) *Server {
	srv := &Server{
		cfg:       cfg,
		lifecycle: lifecycle,
		admin:     admin,
		store:     store,
		exporter:  exporter,
		auth:      auth,
		logger:    logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/appointments", srv.handleBook)
	mux.HandleFunc("GET /api/v1/appointments/availability", srv.handleAvailability)
	mux.HandleFunc("GET /api/v1/appointments/manage/{token}", srv.handleManageGet)
	mux.HandleFunc("PATCH /api/v1/appointments/manage/{token}", srv.handleManagePatch)

	mux.Handle("GET /api/v1/appointments/admin", auth.Middleware(http.HandlerFunc(srv.handleAdminOverview)))
	mux.Handle("POST /api/v1/appointments/admin", auth.Middleware(http.HandlerFunc(srv.handleAdminMutate)))
	mux.Handle("DELETE /api/v1/appointments/admin", auth.Middleware(http.HandlerFunc(srv.handleAdminDelete)))
	mux.Handle("GET /api/v1/appointments/admin/export", auth.Middleware(http.HandlerFunc(srv.handleAdminExport)))

	mux.HandleFunc("POST /api/v1/auth/admin", auth.HandleLogin)
	mux.Handle("GET /api/v1/auth/admin", auth.Middleware(http.HandlerFunc(auth.HandleSession)))

	mux.HandleFunc("POST /api/v1/webhooks/zoom", srv.handleZoomWebhook)

	mux.HandleFunc("GET /healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.rateLimitMiddleware(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler exposes the composed middleware stack, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.Method + " " + r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.RateLimit.RPS > 0 {
			if !s.getLimiter(clientIP(r)).Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getLimiter(key string) *rate.Limiter {
	if v, ok := s.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := s.cfg.Server.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(s.cfg.Server.RateLimit.RPS), burst)
	actual, loaded := s.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeDomainError maps lifecycle errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, scheduling.ErrValidation),
		errors.Is(err, scheduling.ErrPastDate),
		errors.Is(err, scheduling.ErrDateTooFar),
		errors.Is(err, scheduling.ErrInvalidState):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scheduling.ErrSlotTaken),
		errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
