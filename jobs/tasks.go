// Package jobs holds the Asynq task definitions, the worker bootstrap, and
// the report warm-up job.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportsWarmup is the task type for pre-building financial
	// statements into the report cache.
	TaskReportsWarmup = "reports:warmup"
)

// ReportsWarmupPayload narrows a warm-up run. An empty TenantID means every
// tenant with accounting periods.
type ReportsWarmupPayload struct {
	TenantID string `json:"tenantId,omitempty"`
}

// NewReportsWarmupTask constructs an Asynq task.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data), nil
}
