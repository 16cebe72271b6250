package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/applyflow/applyflow/internal/app/list"
	"github.com/applyflow/applyflow/internal/app/mark"
	"github.com/applyflow/applyflow/internal/app/restart"
	"github.com/applyflow/applyflow/internal/app/resume"
	"github.com/applyflow/applyflow/internal/app/status"
	"github.com/applyflow/applyflow/internal/app/submit"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
)

// CompanyLister lists the registered company configs.
type CompanyLister interface {
	List() []model.CompanyConfig
}

// HandlerConfig is the configuration for the HTTP API handler.
type HandlerConfig struct {
	Submit    *submit.Service
	Resume    *resume.Service
	Restart   *restart.Service
	Mark      *mark.Service
	Status    *status.Service
	List      *list.Service
	Companies CompanyLister
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	Logger  log.Logger
}

func (c *HandlerConfig) defaults() error {
	if c.Submit == nil {
		return fmt.Errorf("submit service is required")
	}
	if c.Resume == nil {
		return fmt.Errorf("resume service is required")
	}
	if c.Restart == nil {
		return fmt.Errorf("restart service is required")
	}
	if c.Mark == nil {
		return fmt.Errorf("mark service is required")
	}
	if c.Status == nil {
		return fmt.Errorf("status service is required")
	}
	if c.List == nil {
		return fmt.Errorf("list service is required")
	}
	if c.Companies == nil {
		return fmt.Errorf("company lister is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Handler"})
	return nil
}

type handler struct {
	cfg    HandlerConfig
	logger log.Logger
}

// NewHandler returns the HTTP API handler.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{cfg: cfg, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, h.logRequests, middleware.Recoverer)

	r.Get("/healthz", h.health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Get("/companies", h.listCompanies)

	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.submitApplication)
		r.Get("/", h.listApplications)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getApplication)
			r.Get("/steps", h.listSteps)
			r.Post("/resume", h.resumeApplication)
			r.Post("/restart", h.restartApplication)
			r.Post("/status", h.markApplication)
		})
	})

	return r, nil
}

func (h handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		h.logger.WithValues(log.Kv{
			"request-id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
		}).Debugf("HTTP request handled")
	})
}
