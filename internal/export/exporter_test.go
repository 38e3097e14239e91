package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/backoffice/internal/search"
)

// tableSource serves total rows in batches and can fail on a given call.
type tableSource struct {
	mu     sync.Mutex
	total  int
	failOn int
	calls  []search.Query
}

func (s *tableSource) Query(_ context.Context, q search.Query) (search.Page, error) {
	s.mu.Lock()
	s.calls = append(s.calls, q)
	n := len(s.calls)
	s.mu.Unlock()
	if s.failOn > 0 && n == s.failOn {
		return search.Page{}, errors.New("upstream timeout")
	}
	end := q.Offset + q.Limit
	if s.total >= 0 && end > s.total {
		end = s.total
	}
	var rows []search.Row
	for i := q.Offset; i < end; i++ {
		rows = append(rows, search.Row{"id": i})
	}
	return search.Page{Columns: []string{"id"}, Rows: rows}, nil
}

type recordingSink struct {
	files []File
	err   error
}

func (s *recordingSink) Deliver(_ context.Context, f File) error {
	if s.err != nil {
		return s.err
	}
	s.files = append(s.files, f)
	return nil
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) add(v int) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func (p *progressLog) snapshot() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

var fixedNow = func() time.Time { return time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC) }

func newTestExporter(src search.Source, progress *progressLog) *Exporter {
	cfg := Config{Source: src, Now: fixedNow, ResetDelay: 50 * time.Millisecond}
	if progress != nil {
		cfg.OnProgress = progress.add
	}
	return New(cfg)
}

func TestExportStopsAtBatchCap(t *testing.T) {
	src := &tableSource{total: -1}
	sink := &recordingSink{}
	exp := newTestExporter(src, nil)

	res := exp.Export(context.Background(), Request{Table: "leads"}, sink)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, MaxBatches*BatchSize, res.Count)
	assert.Len(t, src.calls, MaxBatches)
	require.Len(t, sink.files, 1)
}

func TestExportProgressAndQueries(t *testing.T) {
	src := &tableSource{total: 2500}
	sink := &recordingSink{}
	progress := &progressLog{}
	exp := newTestExporter(src, progress)

	res := exp.Export(context.Background(), Request{
		Table:   "leads",
		Filters: search.FilterState{Status: []string{"new"}, SortBy: "name", SortOrder: search.SortAsc},
	}, sink)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2500, res.Count)
	assert.Equal(t, []int{0, 10, 20, 30, 100}, progress.snapshot())
	assert.False(t, exp.Exporting())
	assert.Equal(t, 100, exp.Progress())

	require.Len(t, src.calls, 3)
	for i, q := range src.calls {
		assert.Equal(t, i*BatchSize, q.Offset)
		assert.Equal(t, BatchSize, q.Limit)
		assert.Equal(t, "created_at", q.SortColumn)
		assert.Equal(t, search.SortDesc, q.SortOrder)
		assert.True(t, q.SkipCount)
		assert.Equal(t, []string{"new"}, q.In["status"])
	}

	require.Eventually(t, func() bool { return exp.Progress() == 0 }, time.Second, 5*time.Millisecond)
}

func TestExportProgressIsClampedAtNinety(t *testing.T) {
	progress := &progressLog{}
	exp := newTestExporter(&tableSource{total: 12 * BatchSize}, progress)
	res := exp.Export(context.Background(), Request{Table: "bookings"}, &recordingSink{})
	require.True(t, res.Success)

	values := progress.snapshot()
	require.Len(t, values, 15)
	assert.Equal(t, []int{90, 90, 90, 100}, values[len(values)-4:])
}

func TestExportZeroRows(t *testing.T) {
	src := &tableSource{total: 0}
	sink := &recordingSink{}
	exp := newTestExporter(src, nil)

	res := exp.Export(context.Background(), Request{Table: "newsletter_subscribers"}, sink)
	require.True(t, res.Success)
	assert.Equal(t, 0, res.Count)
	assert.Len(t, src.calls, 1)
	require.Len(t, sink.files, 1)
	assert.Empty(t, sink.files[0].Body)
	assert.Equal(t, "newsletter_subscribers_2024-03-05.csv", sink.files[0].Name)
}

func TestExportFailureDeliversNothing(t *testing.T) {
	src := &tableSource{total: 5000, failOn: 2}
	sink := &recordingSink{}
	progress := &progressLog{}
	exp := newTestExporter(src, progress)

	res := exp.Export(context.Background(), Request{Table: "leads"}, sink)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "upstream timeout")
	assert.Zero(t, res.Count)
	assert.Empty(t, sink.files)
	assert.NotContains(t, progress.snapshot(), 100)
	assert.False(t, exp.Exporting())
}

func TestExportSinkFailure(t *testing.T) {
	exp := newTestExporter(&tableSource{total: 3}, nil)
	res := exp.Export(context.Background(), Request{Table: "leads"}, &recordingSink{err: errors.New("disk full")})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "disk full")
}

func TestExportUnknownTable(t *testing.T) {
	src := &tableSource{total: 3}
	res := newTestExporter(src, nil).Export(context.Background(), Request{Table: "admins"}, &recordingSink{})
	assert.False(t, res.Success)
	assert.Empty(t, src.calls)
}

func TestExportWritesCleanCSV(t *testing.T) {
	src := search.SourceFunc(func(_ context.Context, q search.Query) (search.Page, error) {
		return search.Page{
			Columns: []string{"id", "name", "_score", "created_at"},
			Rows: []search.Row{{
				"id":         1,
				"name":       "Jane, Inc.",
				"_score":     0.9,
				"created_at": time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC),
			}},
		}, nil
	})
	sink := &recordingSink{}
	res := New(Config{Source: src, Now: fixedNow}).Export(context.Background(), Request{Table: "leads", Filename: "q1 leads"}, sink)
	require.True(t, res.Success, res.Error)
	require.Len(t, sink.files, 1)
	f := sink.files[0]
	assert.Equal(t, "q1 leads_2024-03-05.csv", f.Name)
	assert.Equal(t, "q1 leads_2024-03-05.csv", res.File)
	assert.Equal(t, "text/csv", f.ContentType)

	records, err := csv.NewReader(bytes.NewReader(f.Body)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"id", "name", "created_at"},
		{"1", "Jane, Inc.", "3/5/2024, 2:07:09 PM"},
	}, records)
}

type snapshotSource struct {
	tableSource
	snapshots int
}

func (s *snapshotSource) Snapshot(ctx context.Context, fn func(search.Source) error) error {
	s.snapshots++
	return fn(&s.tableSource)
}

func TestExportUsesSnapshotWhenAvailable(t *testing.T) {
	src := &snapshotSource{tableSource: tableSource{total: 1500}}
	res := newTestExporter(src, nil).Export(context.Background(), Request{Table: "leads"}, &recordingSink{})
	require.True(t, res.Success)
	assert.Equal(t, 1, src.snapshots)
	assert.Len(t, src.calls, 2)
}

func TestExportMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	exp := New(Config{Source: &tableSource{total: 1200}, Metrics: metrics, Now: fixedNow})

	require.True(t, exp.Export(context.Background(), Request{Table: "leads", Format: FormatJSON}, &recordingSink{}).Success)
	require.False(t, exp.Export(context.Background(), Request{Table: "leads"}, &recordingSink{err: errors.New("x")}).Success)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.exports.WithLabelValues("leads", "json", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.exports.WithLabelValues("leads", "csv", "failure")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(metrics.rows.WithLabelValues("leads")))
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "leads_2024-12-31.csv", Filename("", "leads", FormatCSV, at))
	assert.Equal(t, "bookings_2024-12-31.json", Filename("  ", "bookings", FormatJSON, at))
	assert.Equal(t, "a_b_2024-12-31.csv", Filename(`a/b"`, "leads", FormatCSV, at))
}

func TestExportIsRepeatable(t *testing.T) {
	src := &tableSource{total: 1500}
	sink := &recordingSink{}
	exp := newTestExporter(src, nil)
	req := Request{Table: "leads", Format: FormatJSON, Filters: search.FilterState{Query: "acme"}}

	require.True(t, exp.Export(context.Background(), req, sink).Success)
	require.True(t, exp.Export(context.Background(), req, sink).Success)
	require.Len(t, sink.files, 2)
	assert.Equal(t, sink.files[0].Name, sink.files[1].Name)
	assert.Equal(t, sink.files[0].Body, sink.files[1].Body)
}
