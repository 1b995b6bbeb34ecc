package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	verificationengine "wayfinder/contexts/community-mapping/verification-engine"
	"wayfinder/internal/platform/correlation"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "wayfinder/internal/platform/httpserver/docs"
)

// @title Wayfinder Verification API
// @version 1.0
// @description Community voting on submitted landmarks and routes.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type Server struct {
	mux          *http.ServeMux
	httpServer   *http.Server
	logger       *slog.Logger
	addr         string
	verification verificationengine.Module
	voteLimiter  *VoterLimiter
	metrics      http.Handler
}

// New wires the verification routes. metrics may be nil, in which case
// /metrics is not served; a nil limiter disables per-voter rate limiting.
func New(
	verification verificationengine.Module,
	voteLimiter *VoterLimiter,
	metrics http.Handler,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:          http.NewServeMux(),
		logger:       logger,
		addr:         addr,
		verification: verification,
		voteLimiter:  voteLimiter,
		metrics:      metrics,
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("POST /api/v1/landmarks/{entity_id}/vote", s.withRequestID(s.handleCastLandmarkVote))
	s.mux.HandleFunc("PUT /api/v1/landmarks/{entity_id}/vote", s.withRequestID(s.handleCastLandmarkVote))
	s.mux.HandleFunc("POST /api/v1/routes/{entity_id}/vote", s.withRequestID(s.handleCastRouteVote))
	s.mux.HandleFunc("PUT /api/v1/routes/{entity_id}/vote", s.withRequestID(s.handleCastRouteVote))

	s.mux.HandleFunc("POST /api/v1/landmarks", s.withRequestID(s.handleRegisterLandmark))
	s.mux.HandleFunc("POST /api/v1/routes", s.withRequestID(s.handleRegisterRoute))

	s.mux.HandleFunc("GET /api/v1/landmarks", s.withRequestID(s.handleListLandmarks))
	s.mux.HandleFunc("GET /api/v1/landmarks/{entity_id}", s.withRequestID(s.handleGetLandmark))
	s.mux.HandleFunc("GET /api/v1/routes", s.withRequestID(s.handleListRoutes))
	s.mux.HandleFunc("GET /api/v1/routes/{entity_id}", s.withRequestID(s.handleGetRoute))
}

// withRequestID propagates X-Request-Id (or a fresh id) through the request
// context so every log line of the request carries it.
func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(correlation.Header)
		if requestID == "" {
			requestID = correlation.NewID()
		}
		w.Header().Set(correlation.Header, requestID)
		next(w, r.WithContext(correlation.WithID(r.Context(), requestID)))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
