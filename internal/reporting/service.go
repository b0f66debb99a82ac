package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts the report queries.
type RepositoryPort interface {
	DailySales(ctx context.Context, date time.Time) ([]DailySalesRow, error)
	MonthlyRevenue(ctx context.Context, from, to time.Time) ([]MonthlyRevenueRow, error)
	ProfitBreakdown(ctx context.Context, from, to time.Time) (ProfitBreakdown, error)
	SupplierPayables(ctx context.Context) ([]SupplierPayable, error)
	BranchOutstanding(ctx context.Context) ([]BranchOutstanding, error)
	AgingSummary(ctx context.Context) ([]AgingSummaryRow, error)
	SnapshotRows(ctx context.Context, date time.Time) ([]DailySnapshot, error)
	UpsertDailySnapshot(ctx context.Context, snap DailySnapshot) error
}

// Service serves cached reports. Concurrent identical reads collapse onto a
// single query via singleflight; results are cached in Redis under versioned
// keys so a snapshot rebuild invalidates everything at once.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService constructs the reporting service.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// DailySales reports per-branch sales for one day.
func (s *Service) DailySales(ctx context.Context, date time.Time) ([]DailySalesRow, error) {
	var out []DailySalesRow
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.DailySales(ctx, date)
	}, "reporting", "daily_sales", date.Format("2006-01-02"))
	return out, err
}

// MonthlyRevenue reports per-branch revenue for one period.
func (s *Service) MonthlyRevenue(ctx context.Context, period shared.Period) ([]MonthlyRevenueRow, error) {
	from, to := period.Bounds()
	if from.IsZero() {
		return nil, shared.Validationf("reporting: invalid period %q", period.String())
	}
	var out []MonthlyRevenueRow
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.MonthlyRevenue(ctx, from, to)
	}, "reporting", "monthly_revenue", period.String())
	return out, err
}

// ProfitBreakdown sums the split components over [from, to).
func (s *Service) ProfitBreakdown(ctx context.Context, from, to time.Time) (ProfitBreakdown, error) {
	if !to.After(from) {
		return ProfitBreakdown{}, shared.Validationf("reporting: range end must follow start")
	}
	var out ProfitBreakdown
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.ProfitBreakdown(ctx, from, to)
	}, "reporting", "profit_breakdown", from.Format("2006-01-02"), to.Format("2006-01-02"))
	return out, err
}

// SupplierPayables lists each supplier's latest ledger balance.
func (s *Service) SupplierPayables(ctx context.Context) ([]SupplierPayable, error) {
	var out []SupplierPayable
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.SupplierPayables(ctx)
	}, "reporting", "supplier_payables")
	return out, err
}

// BranchOutstanding sums open invoice balances per branch.
func (s *Service) BranchOutstanding(ctx context.Context) ([]BranchOutstanding, error) {
	var out []BranchOutstanding
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.BranchOutstanding(ctx)
	}, "reporting", "branch_outstanding")
	return out, err
}

// AgingSummary groups open invoices into aging buckets.
func (s *Service) AgingSummary(ctx context.Context) ([]AgingSummaryRow, error) {
	var out []AgingSummaryRow
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.AgingSummary(ctx)
	}, "reporting", "aging_summary")
	return out, err
}

// BuildDailySnapshot materialises the per-branch aggregates for one day and
// bumps the cache version. The worker runs it nightly.
func (s *Service) BuildDailySnapshot(ctx context.Context, date time.Time) (int, error) {
	rows, err := s.repo.SnapshotRows(ctx, date)
	if err != nil {
		return 0, err
	}
	for _, snap := range rows {
		if err := s.repo.UpsertDailySnapshot(ctx, snap); err != nil {
			return 0, err
		}
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("cache bump failed", slog.Any("error", err))
	}
	if s.logger != nil {
		s.logger.Info("daily snapshot built",
			slog.String("date", date.Format("2006-01-02")),
			slog.Int("branches", len(rows)))
	}
	return len(rows), nil
}

// cached collapses concurrent identical reads onto one fetch and hands every
// caller the same raw payload to decode.
func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), keyParts ...string) error {
	key, err := s.cache.BuildKey(ctx, keyParts...)
	if err != nil {
		return err
	}
	raw, err, _ := s.group.Do(key, func() (any, error) {
		var payload json.RawMessage
		if err := s.cache.FetchJSON(ctx, key, &payload, loader); err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return fmt.Errorf("reporting: %w", err)
	}
	return json.Unmarshal(raw.(json.RawMessage), dest)
}
