// Package server is the HTTP control surface of the deploy worker.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ashutoshpw/coolify/internal/dispatch"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

const (
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// MaxPayloadBytes caps a deployment request body
	MaxPayloadBytes = 1 << 20
)

// Controller is the worker behind the HTTP routes
type Controller interface {
	Submit(ctx context.Context, req deployment.Request) (string, error)
	Cancel() string
	Status(caller string) dispatch.StatusReport
	Flush() int
}

// Server serves the control routes
type Server struct {
	controller Controller
	metrics    http.Handler
	logger     hclog.Logger
}

// New creates a server for controller. metrics may be nil.
func New(controller Controller, metrics http.Handler, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		controller: controller,
		metrics:    metrics,
		logger:     logger.Named("http"),
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Post("/deployments", s.handleSubmit)
	r.Post("/cancel", s.handleCancel)
	r.Post("/flush", s.handleFlush)
	r.Get("/status", s.handleStatus)

	return r
}

// HTTPServer wraps the router in an http.Server listening on addr
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	if len(body) > MaxPayloadBytes {
		respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}

	req, err := dispatch.ParseRequest(body)
	if err != nil {
		respondError(w, err)
		return
	}

	id, err := s.controller.Submit(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"task": id, "buildId": req.BuildID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, s.controller.Cancel())
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"flushed": s.controller.Flush()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	caller := r.URL.Query().Get("caller")
	if caller == "" {
		caller = uuid.NewString()
	}
	respondJSON(w, http.StatusOK, s.controller.Status(caller))
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dispatch.ErrParse):
		status = http.StatusBadRequest
	case errors.Is(err, deployment.ErrInvalidRequest):
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
