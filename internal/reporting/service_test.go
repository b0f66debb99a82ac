package reporting

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type mockReportRepo struct {
	dailyRows     []DailySalesRow
	dailyCalls    int
	monthlyRows   []MonthlyRevenueRow
	monthlyCalls  int
	breakdown     ProfitBreakdown
	payables      []SupplierPayable
	agingRows     []AgingSummaryRow
	snapshotRows  []DailySnapshot
	snapshots     []DailySnapshot
	snapshotCalls int
}

func (m *mockReportRepo) DailySales(ctx context.Context, date time.Time) ([]DailySalesRow, error) {
	m.dailyCalls++
	return m.dailyRows, nil
}

func (m *mockReportRepo) MonthlyRevenue(ctx context.Context, from, to time.Time) ([]MonthlyRevenueRow, error) {
	m.monthlyCalls++
	return m.monthlyRows, nil
}

func (m *mockReportRepo) ProfitBreakdown(ctx context.Context, from, to time.Time) (ProfitBreakdown, error) {
	return m.breakdown, nil
}

func (m *mockReportRepo) SupplierPayables(ctx context.Context) ([]SupplierPayable, error) {
	return m.payables, nil
}

func (m *mockReportRepo) BranchOutstanding(ctx context.Context) ([]BranchOutstanding, error) {
	return nil, nil
}

func (m *mockReportRepo) AgingSummary(ctx context.Context) ([]AgingSummaryRow, error) {
	return m.agingRows, nil
}

func (m *mockReportRepo) SnapshotRows(ctx context.Context, date time.Time) ([]DailySnapshot, error) {
	m.snapshotCalls++
	return m.snapshotRows, nil
}

func (m *mockReportRepo) UpsertDailySnapshot(ctx context.Context, snap DailySnapshot) error {
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func newTestService(t *testing.T, repo RepositoryPort) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute), nil)
}

func TestDailySalesCaches(t *testing.T) {
	repo := &mockReportRepo{dailyRows: []DailySalesRow{{
		BranchID: 3,
		Date:     "2026-08-20",
		Units:    4,
		Revenue:  decimal.RequireFromString("359.96"),
		Profit:   decimal.RequireFromString("120.00"),
	}}}
	svc := newTestService(t, repo)
	ctx := context.Background()
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	rows, err := svc.DailySales(ctx, date)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Revenue.Equal(decimal.RequireFromString("359.96")))
	require.Equal(t, 1, repo.dailyCalls)

	rows, err = svc.DailySales(ctx, date)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, repo.dailyCalls, "second read should hit the cache")
}

func TestSnapshotBuildInvalidatesCache(t *testing.T) {
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	repo := &mockReportRepo{
		dailyRows: []DailySalesRow{{BranchID: 3, Units: 1, Revenue: decimal.RequireFromString("89.99")}},
		snapshotRows: []DailySnapshot{{
			Date:     date,
			BranchID: 3,
			Units:    1,
			Revenue:  decimal.RequireFromString("89.99"),
			Profit:   decimal.RequireFromString("44.99"),
		}},
	}
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.DailySales(ctx, date)
	require.NoError(t, err)
	require.Equal(t, 1, repo.dailyCalls)

	branches, err := svc.BuildDailySnapshot(ctx, date)
	require.NoError(t, err)
	require.Equal(t, 1, branches)
	require.Len(t, repo.snapshots, 1)

	repo.dailyRows[0].Units = 2
	rows, err := svc.DailySales(ctx, date)
	require.NoError(t, err)
	require.Equal(t, 2, repo.dailyCalls, "bumped version should force a reload")
	require.Equal(t, 2, rows[0].Units)
}

func TestMonthlyRevenueRejectsBadPeriod(t *testing.T) {
	svc := newTestService(t, &mockReportRepo{})
	_, err := svc.MonthlyRevenue(context.Background(), shared.Period("2026-13"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestProfitBreakdownRejectsInvertedRange(t *testing.T) {
	svc := newTestService(t, &mockReportRepo{})
	from := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	_, err := svc.ProfitBreakdown(context.Background(), from, from)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReportsDegradeWithoutCache(t *testing.T) {
	repo := &mockReportRepo{payables: []SupplierPayable{{SupplierID: 9, Balance: decimal.RequireFromString("275.49")}}}
	svc := NewService(repo, nil, nil)

	rows, err := svc.SupplierPayables(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Balance.Equal(decimal.RequireFromString("275.49")))
}
