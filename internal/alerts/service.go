package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/billing"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// RepositoryPort abstracts alert persistence. Raise returns false when an
// open alert for the same (kind, branch, subject) already exists.
type RepositoryPort interface {
	Raise(ctx context.Context, alert Alert) (bool, error)
	ListOpen(ctx context.Context, branchID int64) ([]Alert, error)
	Acknowledge(ctx context.Context, alertID, actorID int64, at time.Time) (bool, error)
	Get(ctx context.Context, alertID int64) (Alert, error)
	OverdueInvoices(ctx context.Context, asOf time.Time) ([]OverdueInvoice, error)
}

// StockPort is the slice of the stock service the low-stock scan needs.
type StockPort interface {
	LowStock(ctx context.Context) ([]stock.LowStockRow, error)
}

// Service runs the scans and manages alert lifecycle.
type Service struct {
	repo   RepositoryPort
	stock  StockPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the alerts service.
func NewService(repo RepositoryPort, stockPort StockPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stockPort, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ScanLowStock raises one alert per product/branch pair at or below its
// reorder level. A pair with zero units on hand is critical. Returns the
// number of newly raised alerts.
func (s *Service) ScanLowStock(ctx context.Context) (int, error) {
	rows, err := s.stock.LowStock(ctx)
	if err != nil {
		return 0, err
	}
	raised := 0
	for _, row := range rows {
		severity := SeverityWarning
		if row.Available == 0 {
			severity = SeverityCritical
		}
		inserted, err := s.repo.Raise(ctx, Alert{
			Kind:      KindLowStock,
			Severity:  severity,
			BranchID:  row.BranchID,
			SubjectID: row.ProductID,
			Message:   fmt.Sprintf("product %d at branch %d has %d available, reorder level %d", row.ProductID, row.BranchID, row.Available, row.ReorderLevel),
			RaisedAt:  s.now(),
		})
		if err != nil {
			return raised, err
		}
		if inserted {
			raised++
		}
	}
	if s.logger != nil {
		s.logger.Info("low stock scan complete",
			slog.Int("breaches", len(rows)),
			slog.Int("raised", raised))
	}
	return raised, nil
}

// ScanOverdueInvoices raises one alert per open invoice past its due date.
// Severity follows the aging bucket: past ninety days is critical.
func (s *Service) ScanOverdueInvoices(ctx context.Context) (int, error) {
	asOf := s.now()
	rows, err := s.repo.OverdueInvoices(ctx, asOf)
	if err != nil {
		return 0, err
	}
	raised := 0
	for _, row := range rows {
		days := int(asOf.Sub(row.DueAt).Hours() / 24)
		if days < 0 {
			days = 0
		}
		severity := SeverityWarning
		if billing.BucketFor(days) == billing.BucketOver90 {
			severity = SeverityCritical
		}
		inserted, err := s.repo.Raise(ctx, Alert{
			Kind:      KindOverdueInvoice,
			Severity:  severity,
			BranchID:  row.BranchID,
			SubjectID: row.InvoiceID,
			Message:   fmt.Sprintf("invoice %d is %d days overdue with %s outstanding", row.InvoiceID, days, row.Outstanding.StringFixed(2)),
			RaisedAt:  asOf,
		})
		if err != nil {
			return raised, err
		}
		if inserted {
			raised++
		}
	}
	if s.logger != nil {
		s.logger.Info("overdue invoice scan complete",
			slog.Int("overdue", len(rows)),
			slog.Int("raised", raised))
	}
	return raised, nil
}

// ListOpen lists unacknowledged alerts, optionally scoped to one branch.
func (s *Service) ListOpen(ctx context.Context, branchID int64) ([]Alert, error) {
	return s.repo.ListOpen(ctx, branchID)
}

// Acknowledge closes an alert. Acknowledging twice conflicts.
func (s *Service) Acknowledge(ctx context.Context, alertID, actorID int64) error {
	acked, err := s.repo.Acknowledge(ctx, alertID, actorID, s.now())
	if err != nil {
		return err
	}
	if !acked {
		if _, err := s.repo.Get(ctx, alertID); err != nil {
			return err
		}
		return ErrAlreadyAcked
	}
	return nil
}
