package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/backoffice/internal/export"
	jobmetrics "github.com/leadforge/backoffice/internal/jobs"
	"github.com/leadforge/backoffice/internal/search"
)

func subscriberSource(err error) search.Source {
	return search.SourceFunc(func(_ context.Context, q search.Query) (search.Page, error) {
		if err != nil {
			return search.Page{}, err
		}
		return search.Page{
			Columns: []string{"email", "source"},
			Rows:    []search.Row{{"email": "a@x.io", "source": "footer"}},
		}, nil
	})
}

func exportTask(t *testing.T, req export.Request) *asynq.Task {
	t.Helper()
	task, err := NewExportTableTask(req)
	require.NoError(t, err)
	return task
}

func TestExportTableJobWritesFile(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewExportTableJob(export.Config{
		Source: subscriberSource(nil),
		Now:    func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	}, export.DirSink{Dir: dir}, nil, metrics)

	err := job.Handle(context.Background(), exportTask(t, export.Request{
		Table:   "newsletter_subscribers",
		Format:  export.FormatJSON,
		Filters: search.FilterState{Source: []string{"footer"}},
	}))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "newsletter_subscribers_2024-06-01.json"))
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Equal(t, []map[string]any{{"email": "a@x.io", "source": "footer"}}, rows)
	assert.Equal(t, 1.0, counterValue(t, reg, "backoffice_jobs_total", map[string]string{"job": TaskExportTable, "status": "success"}))
}

func TestExportTableJobSkipsRetryOnBadInput(t *testing.T) {
	job := NewExportTableJob(export.Config{Source: subscriberSource(nil)}, export.DirSink{Dir: t.TempDir()}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskExportTable, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), exportTask(t, export.Request{Table: "admins"}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), exportTask(t, export.Request{Table: "leads", Filters: search.FilterState{DateFrom: "soon"}}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestExportTableJobRetriesBackendFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewExportTableJob(export.Config{Source: subscriberSource(errors.New("too many connections"))}, export.DirSink{Dir: t.TempDir()}, nil, metrics)

	err := job.Handle(context.Background(), exportTask(t, export.Request{Table: "leads"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Contains(t, err.Error(), "too many connections")
	assert.Equal(t, 1.0, counterValue(t, reg, "backoffice_jobs_failures_total", map[string]string{"job": TaskExportTable}))

	var unconfigured *ExportTableJob
	require.Error(t, unconfigured.Handle(context.Background(), exportTask(t, export.Request{Table: "leads"})))
}

func TestExportTableTaskOptions(t *testing.T) {
	task := exportTask(t, export.Request{Table: "leads", Format: export.FormatCSV})
	assert.Equal(t, TaskExportTable, task.Type())

	var decoded export.Request
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, "leads", decoded.Table)
	assert.Equal(t, export.FormatCSV, decoded.Format)
}

// counterValue reads one counter sample out of reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
