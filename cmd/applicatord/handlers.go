package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/waqasshaukat/job-applicator/internal/applier"
	"github.com/waqasshaukat/job-applicator/internal/jobmanager/logbuffer"
)

type startRequest struct {
	Credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	} `json:"credentials"`

	Options struct {
		Keywords              []string `json:"keywords"`
		Location              string   `json:"location"`
		MaxApplications       int      `json:"max_applications"`
		ApplicationsPerMinute float64  `json:"applications_per_minute"`
	} `json:"options"`
}

func (s *server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}

	if strings.TrimSpace(req.Credentials.Email) == "" ||
		req.Credentials.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "credentials are required")
		return
	}

	task := s.newTask(
		applier.Credentials{
			Email:    req.Credentials.Email,
			Password: req.Credentials.Password,
		},
		applier.Options{
			Keywords:              req.Options.Keywords,
			Location:              req.Options.Location,
			MaxApplications:       req.Options.MaxApplications,
			ApplicationsPerMinute: req.Options.ApplicationsPerMinute,
		},
	)

	id, err := s.manager.StartJob(task)
	if err != nil {
		s.mapError(w, "start job", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"job_id": id})
}

type pollResponse struct {
	Lines      []logbuffer.Line `json:"lines"`
	NextOffset int              `json:"next_offset"`
	Status     string           `json:"status"`
}

func (s *server) handlePollLogs(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, "poll logs", err)
		return
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "offset must be a non-negative integer")
			return
		}
	}

	lines, nextOffset, terminal := job.Logs().LinesAfter(offset)

	status := terminal
	if status == "" {
		status = job.Status().String()
	}

	writeJSON(w, http.StatusOK, pollResponse{
		Lines:      lines,
		NextOffset: nextOffset,
		Status:     status,
	})
}

func (s *server) handleStreamJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, "stream job", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported")
		return
	}

	sub := job.Logs().Subscribe()
	defer sub.Close()

	// Next blocks without watching the request context, so detach the
	// subscription when the client goes away to unblock it.
	stop := context.AfterFunc(r.Context(), func() { sub.Close() })
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		event, err := sub.Next()
		if err != nil {
			// io.EOF after the terminal status event, or the client
			// disconnected. Either way the subscriber is detached.
			return
		}

		switch event.Kind {
		case logbuffer.EventLog:
			payload, err := json.Marshal(event.Line)
			if err != nil {
				s.logger.Warn("marshal log line", zap.Error(err))
				continue
			}

			fmt.Fprintf(w, "event: log\ndata: %s\n\n", payload)

		case logbuffer.EventStatus:
			fmt.Fprintf(w, "event: status\ndata: {\"status\":%q}\n\n", event.Status)
		}

		flusher.Flush()
	}
}

func (s *server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.manager.StopJob(id); err != nil {
		s.mapError(w, "stop job", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

type statusResponse struct {
	AtCapacity  bool `json:"at_capacity"`
	RunningJobs int  `json:"running_jobs"`
	MaxJobs     int  `json:"max_jobs"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		AtCapacity:  s.manager.AtCapacity(),
		RunningJobs: s.manager.RunningCount(),
		MaxJobs:     s.manager.MaxConcurrent(),
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version,
	})
}
