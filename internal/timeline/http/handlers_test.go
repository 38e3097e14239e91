package timelinehttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/backoffice/internal/timeline"
)

type stubService struct {
	entries []timeline.Entry
	err     error
	lead    string
	limit   int
}

func (s *stubService) LeadTimeline(_ context.Context, leadID string, limit int) ([]timeline.Entry, error) {
	s.lead, s.limit = leadID, limit
	return s.entries, s.err
}

func serve(t *testing.T, svc TimelineService, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestTimelineReturnsEntries(t *testing.T) {
	svc := &stubService{entries: []timeline.Entry{{Kind: timeline.KindNote, ID: "n1", At: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Text: "hi"}}}
	rec := serve(t, svc, "/leads/lead-9/timeline?limit=900")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lead-9", svc.lead)
	assert.Equal(t, maxLimit, svc.limit)

	var body struct {
		LeadID  string           `json:"leadId"`
		Entries []timeline.Entry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "lead-9", body.LeadID)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "n1", body.Entries[0].ID)
}

func TestTimelineDefaultsAndEmpty(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, svc, "/leads/lead-1/timeline")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultLimit, svc.limit)
	assert.JSONEq(t, `{"leadId":"lead-1","entries":[]}`, rec.Body.String())
}

func TestTimelineErrors(t *testing.T) {
	rec := serve(t, &stubService{}, "/leads/lead-1/timeline?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, &stubService{err: timeline.ErrLeadRequired}, "/leads/%20/timeline")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, &stubService{err: timeline.ErrInvalidLeadID}, "/leads/lead-1/timeline")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, &stubService{err: errors.New("db down")}, "/leads/lead-1/timeline")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = serve(t, nil, "/leads/lead-1/timeline")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
