package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/leadforge/backoffice/internal/export"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueExports carries the long running table exports.
	QueueExports = "exports"

	// TaskExportTable runs a full table export into the export directory.
	TaskExportTable = "export:table"
	// TaskExportPrune removes export files past their retention.
	TaskExportPrune = "export:prune"
)

// ExportPrunePayload configures a prune run.
type ExportPrunePayload struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// NewExportTableTask builds an export task for req.
func NewExportTableTask(req export.Request) (*asynq.Task, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode export payload: %w", err)
	}
	return asynq.NewTask(TaskExportTable, body, asynq.Queue(QueueExports), asynq.MaxRetry(3)), nil
}

// NewExportPruneTask builds a prune task.
func NewExportPruneTask(maxAgeHours int) (*asynq.Task, error) {
	body, err := json.Marshal(ExportPrunePayload{MaxAgeHours: maxAgeHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExportPrune, body, asynq.Queue(QueueDefault)), nil
}
