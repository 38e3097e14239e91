package exporthttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/backoffice/internal/export"
	"github.com/leadforge/backoffice/internal/platform/httpx"
	"github.com/leadforge/backoffice/internal/search"
	"github.com/leadforge/backoffice/jobs"
)

func rowsSource(err error) search.Source {
	return search.SourceFunc(func(_ context.Context, q search.Query) (search.Page, error) {
		if err != nil {
			return search.Page{}, err
		}
		return search.Page{
			Columns: []string{"email", "_internal_id"},
			Rows: []search.Row{
				{"email": "a@x.io", "_internal_id": 7},
				{"email": "b@x.io", "_internal_id": 8},
			},
		}, nil
	})
}

type stubEnqueuer struct {
	req  export.Request
	key  string
	id   string
	err  error
	hits int
}

func (s *stubEnqueuer) EnqueueExport(_ context.Context, req export.Request, key string) (string, error) {
	s.hits++
	s.req, s.key = req, key
	return s.id, s.err
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func newHandler(src search.Source, enq Enqueuer) *Handler {
	return NewHandler(nil, src, export.NewCleaner("en-US", time.UTC), nil, enq)
}

func TestDownloadCSV(t *testing.T) {
	router := newRouter(newHandler(rowsSource(nil), nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/leads/export?status=new&filename=q1", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	disposition := rec.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, `attachment; filename="q1_`), disposition)
	assert.True(t, strings.HasSuffix(disposition, `.csv"`), disposition)

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"email"}, {"a@x.io"}, {"b@x.io"}}, records)
}

func TestDownloadJSON(t *testing.T) {
	router := newRouter(newHandler(rowsSource(nil), nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/bookings/export?format=json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="bookings_`)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []map[string]any{{"email": "a@x.io"}, {"email": "b@x.io"}}, body)
}

func TestDownloadErrors(t *testing.T) {
	router := newRouter(newHandler(rowsSource(errors.New("statement timeout")), nil))

	cases := map[string]int{
		"/tables/admins/export":                http.StatusNotFound,
		"/tables/leads/export?format=xlsx":     http.StatusBadRequest,
		"/tables/leads/export?pageSize=1000":   http.StatusBadRequest,
		"/tables/leads/export?dateFrom=friday": http.StatusBadRequest,
		"/tables/leads/export":                 http.StatusInternalServerError,
	}
	for target, code := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, code, rec.Code, target)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/leads/export", nil))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, "Export Failed", problem.Title)
	assert.Equal(t, http.StatusInternalServerError, problem.Status)
	assert.Contains(t, problem.Detail, "statement timeout")
}

func TestConcurrentExportOfSameTableIsRejected(t *testing.T) {
	h := newHandler(rowsSource(nil), nil)
	_, release, ok := h.acquire("leads")
	require.True(t, ok)

	router := newRouter(h)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/leads/export", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/bookings/export", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	release()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/leads/export", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	router := newRouter(newHandler(rowsSource(nil), nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/leads/export/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"table":"leads","exporting":false,"progress":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/leads/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/leads/export/status", nil))
	assert.JSONEq(t, `{"table":"leads","exporting":false,"progress":100}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/nope/export/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func postExport(router http.Handler, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/exports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEnqueue(t *testing.T) {
	enq := &stubEnqueuer{id: "export:table:abc"}
	router := newRouter(newHandler(rowsSource(nil), enq))

	rec := postExport(router, `{"table":"leads","format":"json","filename":" weekly ","filters":{"query":"acme","status":["new"]}}`, "abc")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"taskId":"export:table:abc","table":"leads","format":"json"}`, rec.Body.String())
	assert.Equal(t, "abc", enq.key)
	assert.Equal(t, export.FormatJSON, enq.req.Format)
	assert.Equal(t, "weekly", enq.req.Filename)
	assert.Equal(t, "acme", enq.req.Filters.Query)
	assert.Equal(t, []string{"new"}, enq.req.Filters.Status)
}

func TestEnqueueErrors(t *testing.T) {
	enq := &stubEnqueuer{}
	router := newRouter(newHandler(rowsSource(nil), enq))

	assert.Equal(t, http.StatusBadRequest, postExport(router, `{"format":"csv"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, postExport(router, `{"table":"leads","format":"pdf"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, postExport(router, `not json`, "").Code)
	assert.Equal(t, http.StatusNotFound, postExport(router, `{"table":"admins"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, postExport(router, `{"table":"leads","filters":{"dateTo":"31-12-2024"}}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, postExport(router, `{"table":"leads"}`, strings.Repeat("k", 129)).Code)
	assert.Zero(t, enq.hits)

	enq.err = fmt.Errorf("enqueue: %w", jobs.ErrDuplicateTask)
	assert.Equal(t, http.StatusConflict, postExport(router, `{"table":"leads"}`, "abc").Code)

	enq.err = errors.New("redis: connection refused")
	assert.Equal(t, http.StatusInternalServerError, postExport(router, `{"table":"leads"}`, "").Code)

	disabled := newRouter(newHandler(rowsSource(nil), nil))
	assert.Equal(t, http.StatusNotImplemented, postExport(disabled, `{"table":"leads"}`, "").Code)
}

func TestExportsAreRateLimited(t *testing.T) {
	enq := &stubEnqueuer{id: "t"}
	router := newRouter(newHandler(rowsSource(nil), enq))

	for i := 0; i < rateLimit; i++ {
		require.Equal(t, http.StatusAccepted, postExport(router, `{"table":"leads"}`, "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, postExport(router, `{"table":"leads"}`, "").Code)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/leads/export/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
