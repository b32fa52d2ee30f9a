package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/waqasshaukat/job-applicator/internal/applier"
	"github.com/waqasshaukat/job-applicator/internal/config"
	"github.com/waqasshaukat/job-applicator/internal/jobmanager"
)

// taskFactory builds the job task for a start request. Swappable so tests
// can run controlled tasks through the real handlers.
type taskFactory func(creds applier.Credentials, opts applier.Options) jobmanager.TaskFunc

type server struct {
	manager *jobmanager.Manager
	logger  *zap.Logger
	cfg     *config.Config
	newTask taskFactory

	httpServer *http.Server
}

func newServer(
	manager *jobmanager.Manager,
	logger *zap.Logger,
	cfg *config.Config,
) *server {
	return &server{
		manager: manager,
		logger:  logger,
		cfg:     cfg,
		newTask: defaultTaskFactory,
	}
}

// defaultTaskFactory wires the application session against the scripted
// development board.
//
// TODO: Swap in the real browser-driven board client once it lands; the
// session and control plane are already shaped for it.
func defaultTaskFactory(creds applier.Credentials, opts applier.Options) jobmanager.TaskFunc {
	board := applier.NewScriptedBoard([]applier.Posting{
		{ID: "dev-1", Title: "Backend Engineer", Company: "Acme"},
		{ID: "dev-2", Title: "Platform Engineer", Company: "Initech"},
		{ID: "dev-3", Title: "SRE", Company: "Hooli"},
	})

	return applier.NewSession(creds, opts, board).Run
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.APIToken != "" {
			r.Use(bearerAuth(s.cfg.APIToken))
		}

		r.Get("/status", s.handleStatus)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleStartJob)
			r.Get("/{id}/logs", s.handlePollLogs)
			r.Get("/{id}/stream", s.handleStreamJob)
			r.Delete("/{id}", s.handleStopJob)
		})
	})

	return r
}

// run serves until ctx is cancelled, then drains HTTP connections and asks
// running jobs to unwind, bounded by the configured grace period.
func (s *server) run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("grace", s.cfg.ShutdownGrace))

	graceCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()

	if err := s.httpServer.Shutdown(graceCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}

	if err := s.manager.Shutdown(graceCtx); err != nil {
		s.logger.Warn("jobs still running after grace period", zap.Error(err))
		return nil
	}

	return nil
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// mapError translates jobmanager errors to HTTP error responses.
func (s *server) mapError(w http.ResponseWriter, logMsg string, err error) {
	switch {
	case errors.Is(err, jobmanager.ErrJobNotFound):
		s.logger.Warn(logMsg, zap.Error(err))
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())

	case errors.Is(err, jobmanager.ErrAtCapacity):
		s.logger.Warn(logMsg, zap.Error(err))
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "AT_CAPACITY", err.Error())

	case errors.As(err, new(jobmanager.InvalidTransitionError)):
		s.logger.Warn(logMsg, zap.Error(err))
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())

	default:
		s.logger.Error(logMsg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
