package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ytget/mediaqueue/internal/config"
	"github.com/ytget/mediaqueue/internal/history"
	"github.com/ytget/mediaqueue/internal/model"
	"github.com/ytget/mediaqueue/internal/platform"
	"github.com/ytget/mediaqueue/internal/scheduler"
)

// TaskService is the part of the scheduler the handlers use
type TaskService interface {
	EnqueueDownload(params model.DownloadParams) (string, error)
	EnqueueConversion(params model.ConversionParams) (string, error)
	EnqueuePlaylist(ctx context.Context, lister scheduler.PlaylistLister, url string, params model.DownloadParams) ([]string, error)
	Cancel(id string) error
	Remove(id string) error
	Retry(id string) (string, error)
	Reschedule()
	Get(id string) (model.Task, bool)
	Tasks() []model.Task
	Observe(ctx context.Context) <-chan []model.Task
}

// PlaylistRequest asks for every entry of a playlist to be downloaded with Options
type PlaylistRequest struct {
	URL     string               `json:"url" validate:"required,url"`
	Options model.DownloadParams `json:"options" validate:"-"`
}

// MaxParallelRequest changes the parallel task limit
type MaxParallelRequest struct {
	MaxParallel int `json:"max_parallel" validate:"required"`
}

// TaskHandler serves the task endpoints
type TaskHandler struct {
	tasks     TaskService
	playlists scheduler.PlaylistLister
	history   history.Lister
	live      *config.Live
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTaskHandler creates a handler. playlists and hist may be nil, which
// disables the playlist and history endpoints.
func NewTaskHandler(tasks TaskService, playlists scheduler.PlaylistLister, hist history.Lister, live *config.Live, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{
		tasks:     tasks,
		playlists: playlists,
		history:   hist,
		live:      live,
		validator: validator.New(),
		logger:    logger.Named("api"),
	}
}

// CreateDownload handles POST /tasks/download
func (h *TaskHandler) CreateDownload(w http.ResponseWriter, r *http.Request) {
	var params model.DownloadParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.tasks.EnqueueDownload(params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("download submitted", zap.String("task_id", id), zap.String("url", params.URL))
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": id})
}

// CreateConversion handles POST /tasks/convert
func (h *TaskHandler) CreateConversion(w http.ResponseWriter, r *http.Request) {
	var params model.ConversionParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.tasks.EnqueueConversion(params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("conversion submitted", zap.String("task_id", id), zap.String("input", params.InputPath))
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": id})
}

// CreatePlaylist handles POST /tasks/playlist
func (h *TaskHandler) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	if h.playlists == nil {
		writeError(w, http.StatusNotImplemented, "playlist listing is not configured")
		return
	}

	var req PlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, err := h.tasks.EnqueuePlaylist(r.Context(), h.playlists, req.URL, req.Options)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	h.logger.Info("playlist submitted", zap.String("url", req.URL), zap.Int("entries", len(ids)))
	writeJSON(w, http.StatusCreated, map[string][]string{"task_ids": ids})
}

// ListTasks handles GET /tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tasks.Tasks())
}

// GetTask handles GET /tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.tasks.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// CancelTask handles POST /tasks/{id}/cancel
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Cancel(chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryTask handles POST /tasks/{id}/retry
func (h *TaskHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	id, err := h.tasks.Retry(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": id})
}

// RemoveTask handles DELETE /tasks/{id}
func (h *TaskHandler) RemoveTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Remove(chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHistory handles GET /history
func (h *TaskHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []history.Record{})
		return
	}
	records, err := h.history.List()
	if err != nil {
		h.logger.Error("failed to list history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetMaxParallel handles GET /settings/max-parallel
func (h *TaskHandler) GetMaxParallel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MaxParallelRequest{MaxParallel: h.live.MaxParallel()})
}

// SetMaxParallel handles PUT /settings/max-parallel. The value is clamped to
// the allowed range and applies to the next admission decision.
func (h *TaskHandler) SetMaxParallel(w http.ResponseWriter, r *http.Request) {
	var req MaxParallelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	applied := h.live.SetMaxParallel(req.MaxParallel)
	h.tasks.Reschedule()

	h.logger.Info("max parallel changed", zap.Int("max_parallel", applied))
	writeJSON(w, http.StatusOK, MaxParallelRequest{MaxParallel: applied})
}

// writeServiceError maps scheduler errors to status codes
func (h *TaskHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, scheduler.ErrInvalidTask), errors.Is(err, platform.ErrNotPlaylist):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scheduler.ErrNotRetryable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
