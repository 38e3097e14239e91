package exporthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the export endpoints behind a per-client rate limit.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Get("/tables/{table}/export/status", h.handleStatus)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/tables/{table}/export", h.handleDownload)
		gr.Post("/exports", h.handleEnqueue)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if token := r.Header.Get("Authorization"); token != "" {
		return "token:" + token, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
