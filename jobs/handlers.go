package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/alerts"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/reporting"
)

// AgingPort is the slice of the billing service the alert scan needs: the
// aging refresh that must land before overdue severities are computed.
type AgingPort interface {
	UpdateAging(ctx context.Context, asOf time.Time) (int, error)
}

// Handlers binds task types to the services they drive.
type Handlers struct {
	Reporting *reporting.Service
	Alerts    *alerts.Service
	Aging     AgingPort
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	now       func() time.Time
}

// NewHandlers constructs the task handlers.
func NewHandlers(reportingSvc *reporting.Service, alertsSvc *alerts.Service, aging AgingPort, metrics *observability.Metrics, logger *slog.Logger) *Handlers {
	return &Handlers{
		Reporting: reportingSvc,
		Alerts:    alertsSvc,
		Aging:     aging,
		Metrics:   metrics,
		Logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for testing.
func (h *Handlers) WithNow(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// HandleDailySnapshot materialises the reporting aggregates for one day.
// A malformed payload is dropped rather than retried.
func (h *Handlers) HandleDailySnapshot(ctx context.Context, t *asynq.Task) error {
	start := h.now()
	var payload DailySnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	date, err := snapshotDate(payload, start)
	if err != nil {
		return asynq.SkipRetry
	}
	_, err = h.Reporting.BuildDailySnapshot(ctx, date)
	h.Metrics.ObserveJob(TaskDailySnapshot, start, err)
	return err
}

// HandleAlertScan refreshes invoice aging, then runs both scans. A failed
// low-stock scan still lets the overdue scan run; the task fails if any step
// did.
func (h *Handlers) HandleAlertScan(ctx context.Context, _ *asynq.Task) error {
	start := h.now()
	var agingErr error
	if h.Aging != nil {
		if _, agingErr = h.Aging.UpdateAging(ctx, start); agingErr != nil && h.Logger != nil {
			h.Logger.Error("aging refresh", slog.Any("error", agingErr))
		}
	}
	_, stockErr := h.Alerts.ScanLowStock(ctx)
	if stockErr != nil && h.Logger != nil {
		h.Logger.Error("low stock scan", slog.Any("error", stockErr))
	}
	_, overdueErr := h.Alerts.ScanOverdueInvoices(ctx)
	if overdueErr != nil && h.Logger != nil {
		h.Logger.Error("overdue invoice scan", slog.Any("error", overdueErr))
	}
	err := agingErr
	if err == nil {
		err = stockErr
	}
	if err == nil {
		err = overdueErr
	}
	h.Metrics.ObserveJob(TaskAlertScan, start, err)
	return err
}
