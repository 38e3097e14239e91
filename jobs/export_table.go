package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/leadforge/backoffice/internal/export"
	jobmetrics "github.com/leadforge/backoffice/internal/jobs"
	"github.com/leadforge/backoffice/internal/search"
)

// ExportTableJob runs queued exports and writes the files into Sink. Each task gets
// its own Exporter built from Export.
type ExportTableJob struct {
	Export  export.Config
	Sink    export.Sink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewExportTableJob initialises the export handler.
func NewExportTableJob(cfg export.Config, sink export.Sink, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExportTableJob {
	return &ExportTableJob{Export: cfg, Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle executes one export task. Malformed payloads and unknown tables are not retried.
func (j *ExportTableJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Export.Source == nil {
		return errors.New("export job: handler not configured")
	}
	var req export.Request
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("export job: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := search.LookupTable(req.Table); err != nil {
		return fmt.Errorf("export job: %v: %w", err, asynq.SkipRetry)
	}
	if err := req.Filters.Validate(); err != nil {
		return fmt.Errorf("export job: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskExportTable)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("table", req.Table), slog.String("format", string(req.Format)))
	if id, ok := asynq.GetTaskID(ctx); ok {
		logger = logger.With(slog.String("task_id", id))
	}
	logger.Info("starting export")

	cfg := j.Export
	cfg.OnProgress = func(p int) {
		logger.Debug("export progress", slog.Int("percent", p))
	}
	res := export.New(cfg).Export(ctx, req, j.Sink)
	if !res.Success {
		return fmt.Errorf("export job: %s", res.Error)
	}
	logger.Info("export written", slog.String("file", res.File), slog.Int("rows", res.Count))
	if w := t.ResultWriter(); w != nil {
		body, _ := json.Marshal(res)
		if _, werr := w.Write(body); werr != nil {
			logger.Warn("write task result", slog.Any("error", werr))
		}
	}
	return nil
}

func (j *ExportTableJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
