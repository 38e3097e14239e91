// Package searchhttp exposes admin list views over HTTP.
package searchhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/leadforge/backoffice/internal/platform/httpx"
	"github.com/leadforge/backoffice/internal/search"
	"github.com/leadforge/backoffice/internal/shared"
)

const maxSettleWait = 10 * time.Second

// Handler serves table listings and stateful views.
type Handler struct {
	logger   *slog.Logger
	service  *search.Service
	views    *search.ViewRegistry
	validate *validator.Validate
}

// NewHandler builds the search handler. views may be nil to disable the stateful API.
func NewHandler(logger *slog.Logger, service *search.Service, views *search.ViewRegistry) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		views:    views,
		validate: validator.New(),
	}
}

type tableResponse struct {
	Name          search.Table `json:"name"`
	SearchColumns []string     `json:"searchColumns"`
	DateColumn    string       `json:"dateColumn"`
	FilterColumns []string     `json:"filterColumns"`
	SortColumns   []string     `json:"sortColumns"`
	StorageKey    string       `json:"storageKey"`
}

type listResponse struct {
	search.ResultPage
	TotalPages       int                `json:"totalPages"`
	HasActiveFilters bool               `json:"hasActiveFilters"`
	Filters          search.FilterState `json:"filters"`
	Pager            shared.Pager       `json:"pager"`
}

type viewResponse struct {
	ID string `json:"id"`
	search.State
	Pager shared.Pager `json:"pager"`
}

type openViewRequest struct {
	Table   string `json:"table" validate:"required"`
	Persist *bool  `json:"persist,omitempty"`
}

type pageRequest struct {
	Page int `json:"page" validate:"gte=1,lte=1000000"`
}

type filterValueRequest struct {
	Value any `json:"value"`
}

func (h *Handler) handleTables(w http.ResponseWriter, _ *http.Request) {
	specs := search.Tables()
	out := make([]tableResponse, 0, len(specs))
	for _, spec := range specs {
		out = append(out, tableResponse{
			Name:          spec.Name,
			SearchColumns: spec.SearchColumns,
			DateColumn:    spec.DateColumn,
			FilterColumns: spec.FilterColumns,
			SortColumns:   append([]string{spec.DateColumn}, spec.SortColumns...),
			StorageKey:    spec.StorageKey(),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleRows(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	req, err := ParseListRequest(r, h.validate)
	if err != nil {
		h.respondError(w, "parse list request", err)
		return
	}
	filters := req.Filters()
	page, err := h.service.List(r.Context(), chi.URLParam(r, "table"), filters, req.Page, req.PageSize)
	if err != nil {
		h.respondError(w, "list rows", err)
		return
	}
	pg := shared.NewPagination(page.Page, page.PageSize, page.TotalCount)
	httpx.JSON(w, http.StatusOK, listResponse{
		ResultPage:       page,
		TotalPages:       pg.TotalPages,
		HasActiveFilters: filters.HasActiveFilters(),
		Filters:          filters,
		Pager:            shared.NewPager(pg.Page, pg.TotalPages),
	})
}

func (h *Handler) handleOpenView(w http.ResponseWriter, r *http.Request) {
	var req openViewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	id, ctrl, err := h.views.Open(req.Table, req.Persist)
	if err != nil {
		h.respondError(w, "open view", err)
		return
	}
	w.Header().Set("Location", "/admin/views/"+id)
	h.respondView(w, r, http.StatusCreated, id, ctrl)
}

func (h *Handler) handleViewState(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	h.respondView(w, r, http.StatusOK, id, ctrl)
}

func (h *Handler) handlePatchFilters(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	var patch search.FilterPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := ctrl.SetFilters(patch); err != nil {
		h.respondError(w, "set filters", err)
		return
	}
	h.respondView(w, r, http.StatusOK, id, ctrl)
}

func (h *Handler) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	var body filterValueRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := ctrl.SetFilter(chi.URLParam(r, "key"), body.Value); err != nil {
		h.respondError(w, "set filter", err)
		return
	}
	h.respondView(w, r, http.StatusOK, id, ctrl)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	if err := ctrl.ResetFilters(); err != nil {
		h.respondError(w, "reset filters", err)
		return
	}
	h.respondView(w, r, http.StatusOK, id, ctrl)
}

func (h *Handler) handleSetPage(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	var req pageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if err := ctrl.SetPage(req.Page); err != nil {
		h.respondError(w, "set page", err)
		return
	}
	h.respondView(w, r, http.StatusOK, id, ctrl)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookupView(w, r)
	if !ok {
		return
	}
	if err := ctrl.Refresh(); err != nil {
		h.respondError(w, "refresh view", err)
		return
	}
	h.respondView(w, r, http.StatusOK, id, ctrl)
}

func (h *Handler) handleCloseView(w http.ResponseWriter, r *http.Request) {
	if h.views == nil || !h.views.Close(chi.URLParam(r, "viewID")) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "view not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookupView(w http.ResponseWriter, r *http.Request) (string, *search.Controller, bool) {
	id := chi.URLParam(r, "viewID")
	if h.views == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "view not found")
		return "", nil, false
	}
	ctrl, ok := h.views.Get(id)
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "view not found")
		return "", nil, false
	}
	return id, ctrl, true
}

// respondView writes the view state. With ?wait=true the response is held until the
// debounce and any in-flight fetch have completed.
func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, status int, id string, ctrl *search.Controller) {
	state := ctrl.State()
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), maxSettleWait)
		settled, err := ctrl.Settle(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("view did not settle", slog.String("view", id), slog.Any("error", err))
		}
		state = settled
	}
	httpx.JSON(w, status, viewResponse{
		ID:    id,
		State: state,
		Pager: shared.NewPager(state.Result.Page, state.TotalPages),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, message string, err error) {
	var verr validationError
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.As(err, &fieldErrs):
		httpx.ValidationProblem(w, err)
	case errors.As(err, &verr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", verr.Error())
	case errors.Is(err, search.ErrUnknownTable):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, search.ErrInvalidFilter):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, search.ErrClosed):
		httpx.Problem(w, http.StatusGone, "Gone", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "query timed out")
	default:
		h.logger.Error(message, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
