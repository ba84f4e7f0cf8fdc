// Package ops exposes the operator-facing maintenance endpoints: queue
// backlog stats, failed-job listing, manual job removal, and pausing or
// resuming delivery across all lanes.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/queue"
)

// defaultFailedLimit caps the failed-job listing when no limit is given.
const defaultFailedLimit = 50

// QueueService is the slice of the notification service the ops endpoints
// need.
type QueueService interface {
	QueueStats(ctx context.Context) (queue.Stats, error)
	FailedJobs(ctx context.Context, limit int) ([]queue.Job, error)
	RemoveJob(ctx context.Context, jobID uuid.UUID) (bool, error)
	PauseQueue()
	ResumeQueue()
}

// Option configures the ops router.
type Option func(*handlers)

// WithLogger sets the logger for the ops endpoints.
func WithLogger(logger *slog.Logger) Option {
	return func(h *handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

type handlers struct {
	svc    QueueService
	logger *slog.Logger
}

// Router builds the maintenance router. Mount it behind operator
// authentication; the endpoints themselves do no access control.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/ops", ops.Router(svc))
func Router(svc QueueService, opts ...Option) chi.Router {
	h := &handlers{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Route("/queue", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/failed", h.failed)
		r.Delete("/jobs/{id}", h.removeJob)
		r.Post("/pause", h.pause)
		r.Post("/resume", h.resume)
	})
	return r
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.QueueStats(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, stats)
}

func (h *handlers) failed(w http.ResponseWriter, r *http.Request) {
	limit := defaultFailedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, r, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = parsed
	}

	jobs, err := h.svc.FailedJobs(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if jobs == nil {
		jobs = []queue.Job{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *handlers) removeJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, errInvalidJobID)
		return
	}

	removed, err := h.svc.RemoveJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		h.writeError(w, r, http.StatusNotFound, errJobNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) pause(w http.ResponseWriter, r *http.Request) {
	h.svc.PauseQueue()
	h.logger.InfoContext(r.Context(), "delivery queue paused by operator")
	h.writeJSON(w, r, http.StatusOK, map[string]bool{"paused": true})
}

func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	h.svc.ResumeQueue()
	h.logger.InfoContext(r.Context(), "delivery queue resumed by operator")
	h.writeJSON(w, r, http.StatusOK, map[string]bool{"paused": false})
}

func (h *handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "ops endpoint failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	h.writeJSON(w, r, status, map[string]string{"error": err.Error()})
}
