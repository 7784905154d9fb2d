// Package server provides the config and status HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertmeta/trss-cli/client"
	"github.com/robertmeta/trss-cli/metrics"
	"github.com/robertmeta/trss-cli/model"
	"github.com/robertmeta/trss-cli/store"
)

// Job is the background job the API reports on and triggers.
type Job interface {
	Running() bool
	Trigger(ctx context.Context) error
}

// Server is the config API server.
type Server struct {
	store  *store.Store
	job    Job
	router chi.Router
}

// New creates a new server.
func New(st *store.Store, job Job) *Server {
	s := &Server{
		store: st,
		job:   job,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get(client.StartJobPath, s.wrap("start_job", s.handleStartJob))
	r.Get(client.StatusPath, s.wrap("status", s.handleStatus))

	r.Route(client.ConfigPath, func(r chi.Router) {
		r.Get("/", s.wrap("list", s.handleList))
		r.Put("/", s.wrap("create", s.handleCreate))
		r.Patch("/", s.wrap("update", s.handleUpdate))
		r.Delete("/", s.wrap("delete", s.handleDelete))
	})

	r.Handle("/metrics", promhttp.Handler())

	s.router = r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// cors allows the admin page to be served from another origin. Preflight
// requests are answered here, before routing, so every path accepts them.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, GET, PUT, DELETE, PATCH, OPTIONS, HEAD")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Token")
		h.Set("Access-Control-Expose-Headers", "Access-Control-Allow-Headers, Token")
		h.Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// httpError carries the status code a handler error maps to.
type httpError struct {
	status int
	err    error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

func statusOf(err error) int {
	var herr *httpError
	switch {
	case errors.As(err, &herr):
		return herr.status
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrIndexOutOfRange):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// wrap turns an error-returning handler into an http.HandlerFunc. A failed
// handler answers with the mapped status and the error text as body.
func (s *Server) wrap(op string, f func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if isMutation(r.Method) {
			result := "ok"
			switch {
			case errors.Is(err, store.ErrConflict):
				result = "conflict"
			case err != nil:
				result = "error"
			}
			metrics.ConfigMutationsTotal.WithLabelValues(op, result).Inc()
		}
		if err == nil {
			return
		}

		status := statusOf(err)
		slog.Error("handler failed", "op", op, "status", status, "err", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(err.Error()))
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) error {
	return s.job.Trigger(r.Context())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, model.JobStatus{Running: s.job.Running()})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) error {
	configs, err := s.store.ListConfigs(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, configs)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var c model.ConfigEntry
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if err := c.Validate(); err != nil {
		return badRequest("invalid config: %v", err)
	}

	index, err := s.store.AppendConfig(r.Context(), c)
	if err != nil {
		return err
	}
	slog.Info("config created", "index", index, "name", c.Name)
	return nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	var req model.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if req.Config == nil || req.Original == nil {
		return badRequest("invalid config: config and original are required")
	}
	if err := req.Config.Validate(); err != nil {
		return badRequest("invalid config: %v", err)
	}

	if err := s.store.UpdateConfig(r.Context(), req.Index, *req.Config, *req.Original); err != nil {
		return err
	}
	slog.Info("config updated", "index", req.Index, "name", req.Config.Name)
	return nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) error {
	var req model.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if req.Config == nil {
		return badRequest("invalid config: config is required")
	}

	if err := s.store.DeleteConfig(r.Context(), req.Index, *req.Config); err != nil {
		return err
	}
	slog.Info("config deleted", "index", req.Index, "name", req.Config.Name)
	return nil
}
