package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	exporthttp "github.com/leadforge/backoffice/internal/export/http"
	"github.com/leadforge/backoffice/internal/observability"
	"github.com/leadforge/backoffice/internal/platform/httpx"
	searchhttp "github.com/leadforge/backoffice/internal/search/http"
	timelinehttp "github.com/leadforge/backoffice/internal/timeline/http"
	"github.com/leadforge/backoffice/jobs"
)

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SearchHandler   *searchhttp.Handler
	ExportHandler   *exporthttp.Handler
	TimelineHandler *timelinehttp.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
	Readiness       map[string]ReadinessCheck
}

// NewRouter constructs the chi.Router with the admin API mounted under /admin.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Readiness))

	token := ""
	if params.Config != nil {
		token = params.Config.AdminAPIToken
	}
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(RequireToken(token, params.Logger))
		params.SearchHandler.MountRoutes(ar)
		params.ExportHandler.MountRoutes(ar)
		params.TimelineHandler.MountRoutes(ar)
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

func readinessHandler(checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				out[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		httpx.JSON(w, status, out)
	}
}
