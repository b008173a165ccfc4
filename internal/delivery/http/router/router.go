package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/delivery/http/handler"
	"github.com/user/catalog-service/internal/delivery/http/middleware"
	"github.com/user/catalog-service/pkg/metrics"
)

// Options configures authentication and the request timeout.
type Options struct {
	AdminToken          string
	CronSecret          string
	CronSchedulerHeader string
	// Timeout must exceed the longest drain wall-clock budget.
	Timeout time.Duration
}

func New(h *handler.Handler, opts Options, logger *zap.Logger) http.Handler {
	metrics.Init()
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(opts.Timeout))

	r.Get("/api/health", h.HandleHealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/catalog-extractor", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(opts.AdminToken))
			r.Post("/drain", h.HandleDrain)
			r.Post("/start", h.HandleStart)
			r.Post("/pause", h.HandlePause)
			r.Post("/resume", h.HandleResume)
			r.Post("/stop", h.HandleStop)
			r.Post("/reset", h.HandleReset)
			r.Get("/state", h.HandleGetState)
			r.Post("/process-item", h.HandleProcessItem)
			r.Post("/finish", h.HandleFinish)
		})

		r.Route("/cron", func(r chi.Router) {
			r.Use(middleware.CronAuth(opts.CronSecret, opts.CronSchedulerHeader))
			r.Post("/drain", h.HandleDrain)
			r.Post("/refresh", h.HandleCronRefresh)
		})
	})

	return r
}
