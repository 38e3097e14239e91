// Package exporthttp serves table exports as downloads and queues background exports.
package exporthttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/leadforge/backoffice/internal/export"
	"github.com/leadforge/backoffice/internal/platform/httpx"
	"github.com/leadforge/backoffice/internal/search"
	searchhttp "github.com/leadforge/backoffice/internal/search/http"
	"github.com/leadforge/backoffice/jobs"
)

// Enqueuer schedules an export to run in the background. A non-empty key makes the
// submission idempotent.
type Enqueuer interface {
	EnqueueExport(ctx context.Context, req export.Request, key string) (string, error)
}

const idempotencyHeader = "Idempotency-Key"

// Handler serves export endpoints.
type Handler struct {
	logger   *slog.Logger
	source   search.Source
	cleaner  export.Cleaner
	metrics  *export.Metrics
	enqueuer Enqueuer
	validate *validator.Validate

	newExporter func() *export.Exporter

	mu      sync.Mutex
	running map[string]*export.Exporter
	busy    map[string]bool
}

// NewHandler wires the export handler. enqueuer may be nil to disable background exports.
func NewHandler(logger *slog.Logger, source search.Source, cleaner export.Cleaner, metrics *export.Metrics, enqueuer Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:   logger,
		source:   source,
		cleaner:  cleaner,
		metrics:  metrics,
		enqueuer: enqueuer,
		validate: validator.New(),
		running:  make(map[string]*export.Exporter),
		busy:     make(map[string]bool),
	}
	h.newExporter = func() *export.Exporter {
		return export.New(export.Config{
			Source:  h.source,
			Cleaner: h.cleaner,
			Logger:  h.logger,
			Metrics: h.metrics,
		})
	}
	return h
}

type enqueueRequest struct {
	Table    string             `json:"table" validate:"required"`
	Format   string             `json:"format" validate:"omitempty,oneof=csv json"`
	Filename string             `json:"filename" validate:"max=120"`
	Filters  search.FilterState `json:"filters"`
}

type enqueueResponse struct {
	TaskID string `json:"taskId"`
	Table  string `json:"table"`
	Format string `json:"format"`
}

type statusResponse struct {
	Table     string `json:"table"`
	Exporting bool   `json:"exporting"`
	Progress  int    `json:"progress"`
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	table := chi.URLParam(r, "table")
	if _, err := search.LookupTable(table); err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	list, err := searchhttp.ParseListRequest(r, h.validate)
	if err != nil {
		httpx.ValidationProblem(w, err)
		return
	}

	exp, release, ok := h.acquire(table)
	if !ok {
		httpx.Problem(w, http.StatusConflict, "Conflict", fmt.Sprintf("an export of %s is already running", table))
		return
	}
	defer release()

	req := export.Request{
		Table:    table,
		Filters:  list.Filters(),
		Format:   format,
		Filename: strings.TrimSpace(r.URL.Query().Get("filename")),
	}
	res := exp.Export(r.Context(), req, attachment{w: w})
	if !res.Success {
		httpx.Problem(w, http.StatusInternalServerError, "Export Failed", res.Error)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if _, err := search.LookupTable(table); err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.mu.Lock()
	exp := h.running[table]
	h.mu.Unlock()
	resp := statusResponse{Table: table}
	if exp != nil {
		resp.Exporting = exp.Exporting()
		resp.Progress = exp.Progress()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	var body enqueueRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if _, err := search.LookupTable(body.Table); err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	if err := body.Filters.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	format, err := export.ParseFormat(body.Format)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > 128 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "idempotency key too long")
		return
	}
	id, err := h.enqueuer.EnqueueExport(r.Context(), export.Request{
		Table:    body.Table,
		Filters:  body.Filters,
		Format:   format,
		Filename: strings.TrimSpace(body.Filename),
	}, key)
	if errors.Is(err, jobs.ErrDuplicateTask) {
		httpx.Problem(w, http.StatusConflict, "Conflict", "an export with this idempotency key is already queued")
		return
	}
	if err != nil {
		h.handleServerError(w, "enqueue export", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueueResponse{TaskID: id, Table: body.Table, Format: string(format)})
}

// acquire hands out the exporter for table, refusing while one is already running.
func (h *Handler) acquire(table string) (*export.Exporter, func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busy[table] {
		return nil, nil, false
	}
	exp, ok := h.running[table]
	if !ok {
		exp = h.newExporter()
		h.running[table] = exp
	}
	h.busy[table] = true
	return exp, func() {
		h.mu.Lock()
		delete(h.busy, table)
		h.mu.Unlock()
	}, true
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	if h.logger != nil {
		h.logger.Error(message, slog.Any("error", err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue unavailable")
		return
	}
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

// attachment delivers a finished export as the response body.
type attachment struct {
	w http.ResponseWriter
}

func (a attachment) Deliver(_ context.Context, f export.File) error {
	ctype := f.ContentType
	if strings.HasPrefix(ctype, "text/") {
		ctype += "; charset=utf-8"
	}
	header := a.w.Header()
	header.Set("Content-Type", ctype)
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	header.Set("Content-Length", fmt.Sprint(len(f.Body)))
	header.Set("Cache-Control", "no-store")
	a.w.WriteHeader(http.StatusOK)
	_, err := a.w.Write(f.Body)
	return err
}
