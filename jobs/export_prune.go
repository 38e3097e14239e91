package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/leadforge/backoffice/internal/jobs"
)

const defaultExportRetention = 7 * 24 * time.Hour

// ExportPruneJob deletes finished exports older than the retention window.
type ExportPruneJob struct {
	Dir     string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewExportPruneJob initialises the prune handler for dir.
func NewExportPruneJob(dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExportPruneJob {
	return &ExportPruneJob{
		Dir:     dir,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle removes stale files from the export directory.
func (j *ExportPruneJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Dir == "" {
		return errors.New("export prune: handler not configured")
	}
	var payload ExportPrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("export prune: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := defaultExportRetention
	if payload.MaxAgeHours > 0 {
		retention = time.Duration(payload.MaxAgeHours) * time.Hour
	}

	tracker := j.Metrics.Track(TaskExportPrune)
	defer func() { err = tracker.End(err) }()

	removed, err := j.prune(ctx, j.clock().Add(-retention))
	if err != nil {
		return err
	}
	if removed > 0 {
		j.logger().Info("pruned exports", slog.Int("removed", removed), slog.String("dir", j.Dir))
	}
	return nil
}

func (j *ExportPruneJob) prune(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(j.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("export prune: read dir: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.Dir, entry.Name())); err != nil {
			j.logger().Warn("remove export", slog.String("file", entry.Name()), slog.Any("error", err))
			continue
		}
		removed++
	}
	return removed, nil
}

func (j *ExportPruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
