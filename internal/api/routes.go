package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter creates the HTTP router with middleware, task routes, health check
// and the Prometheus metrics endpoint.
func NewRouter(h *TaskHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/download", h.CreateDownload)
		r.Post("/convert", h.CreateConversion)
		r.Post("/playlist", h.CreatePlaylist)
		r.Get("/stream", h.StreamTasks(NewUpgrader()))
		r.Get("/{id}", h.GetTask)
		r.Delete("/{id}", h.RemoveTask)
		r.Post("/{id}/cancel", h.CancelTask)
		r.Post("/{id}/retry", h.RetryTask)
	})

	r.Get("/history", h.ListHistory)
	r.Get("/settings/max-parallel", h.GetMaxParallel)
	r.Put("/settings/max-parallel", h.SetMaxParallel)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogger logs each request once it has been served
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
