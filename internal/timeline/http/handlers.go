// Package timelinehttp serves the merged lead timeline.
package timelinehttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leadforge/backoffice/internal/platform/httpx"
	"github.com/leadforge/backoffice/internal/timeline"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// TimelineService is the contract the handler depends on.
type TimelineService interface {
	LeadTimeline(ctx context.Context, leadID string, limit int) ([]timeline.Entry, error)
}

// Handler serves lead timelines.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler builds the timeline handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type timelineResponse struct {
	LeadID  string           `json:"leadId"`
	Entries []timeline.Entry `json:"entries"`
}

// MountRoutes registers the timeline endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/leads/{leadID}/timeline", h.handleTimeline)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	limit := defaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}
	leadID := chi.URLParam(r, "leadID")
	entries, err := h.service.LeadTimeline(r.Context(), leadID, limit)
	if err != nil {
		if errors.Is(err, timeline.ErrLeadRequired) || errors.Is(err, timeline.ErrInvalidLeadID) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("load lead timeline", slog.String("lead", leadID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []timeline.Entry{}
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{LeadID: leadID, Entries: entries})
}
