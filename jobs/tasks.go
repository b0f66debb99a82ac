// Package jobs runs the background work: the nightly reporting snapshot and
// the alert scans. Tasks ride on Asynq over Redis; the scheduler enqueues
// them on a UTC cron.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDailySnapshot materialises the per-branch reporting aggregates.
	TaskDailySnapshot = "report:daily_snapshot"
	// TaskAlertScan runs the low-stock and overdue-invoice scans.
	TaskAlertScan = "alerts:scan"
)

// DailySnapshotPayload names the day to materialise. An empty date means the
// previous UTC day, the normal nightly case.
type DailySnapshotPayload struct {
	Date string `json:"date,omitempty"`
}

// NewDailySnapshotTask constructs the snapshot task.
func NewDailySnapshotTask(payload DailySnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailySnapshot, data), nil
}

// NewAlertScanTask constructs the alert scan task.
func NewAlertScanTask() *asynq.Task {
	return asynq.NewTask(TaskAlertScan, nil)
}

// snapshotDate resolves the payload date, defaulting to yesterday.
func snapshotDate(payload DailySnapshotPayload, now time.Time) (time.Time, error) {
	if payload.Date == "" {
		return now.UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour), nil
	}
	return time.Parse("2006-01-02", payload.Date)
}
