package profit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeSplitIdentity(t *testing.T) {
	split := ComputeSplit(dec("89.99"), dec("45.00"), dec("55.00"))

	require.Equal(t, "44.99", split.Profit.StringFixed(2))
	require.Equal(t, "31.49", split.InvestorShare.StringFixed(2))
	require.Equal(t, "13.50", split.MasterShare.StringFixed(2))
	require.Equal(t, "34.99", split.CashDueHeadOffice.StringFixed(2))
	require.True(t, split.InvestorShare.Add(split.MasterShare).Equal(split.Profit))
}

func TestComputeSplitIdentityHoldsAcrossAmounts(t *testing.T) {
	cases := []struct{ retail, landing, branch string }{
		{"100.00", "60.00", "70.00"},
		{"19.99", "7.77", "12.34"},
		{"0.03", "0.01", "0.02"},
		{"1234.56", "999.99", "1100.00"},
	}
	for _, tc := range cases {
		split := ComputeSplit(dec(tc.retail), dec(tc.landing), dec(tc.branch))
		require.True(t, split.InvestorShare.Add(split.MasterShare).Equal(split.Profit),
			"retail=%s landing=%s", tc.retail, tc.landing)
	}
}

type memProfitRepo struct {
	capital       []InvestorCapital
	pool          decimal.Decimal
	distributions map[shared.Period]*Distribution
	details       map[int64][]DistributionDetail
	nextDist      int64
	nextDetail    int64
}

func newMemProfitRepo() *memProfitRepo {
	return &memProfitRepo{
		distributions: map[shared.Period]*Distribution{},
		details:       map[int64][]DistributionDetail{},
		nextDist:      1,
		nextDetail:    1,
	}
}

func (m *memProfitRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memProfitRepo) InvestorCapital(context.Context) ([]InvestorCapital, error) {
	return m.capital, nil
}

func (m *memProfitRepo) PoolForPeriod(context.Context, time.Time, time.Time) (decimal.Decimal, error) {
	return m.pool, nil
}

func (m *memProfitRepo) GetDistribution(_ context.Context, period shared.Period) (Distribution, error) {
	d, ok := m.distributions[period]
	if !ok {
		return Distribution{}, shared.NotFoundf("profit: no distribution for %s", period.String())
	}
	return *d, nil
}

func (m *memProfitRepo) ListDetails(_ context.Context, distributionID int64) ([]DistributionDetail, error) {
	return m.details[distributionID], nil
}

func (m *memProfitRepo) GetDistributionForUpdate(_ context.Context, period shared.Period) (Distribution, bool, error) {
	d, ok := m.distributions[period]
	if !ok {
		return Distribution{}, false, nil
	}
	return *d, true, nil
}

func (m *memProfitRepo) InsertDistribution(_ context.Context, d Distribution) (int64, error) {
	d.ID = m.nextDist
	m.nextDist++
	m.distributions[d.Period] = &d
	return d.ID, nil
}

func (m *memProfitRepo) UpdateDistributionPool(_ context.Context, id int64, pool decimal.Decimal) error {
	for _, d := range m.distributions {
		if d.ID == id {
			d.Pool = pool
		}
	}
	return nil
}

func (m *memProfitRepo) MarkFinalized(_ context.Context, id int64, at time.Time) (bool, error) {
	for _, d := range m.distributions {
		if d.ID == id {
			if d.IsFinalized {
				return false, nil
			}
			d.IsFinalized = true
			d.FinalizedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (m *memProfitRepo) DeleteDetails(_ context.Context, distributionID int64) error {
	delete(m.details, distributionID)
	return nil
}

func (m *memProfitRepo) InsertDetail(_ context.Context, detail DistributionDetail) (int64, error) {
	detail.ID = m.nextDetail
	m.nextDetail++
	m.details[detail.DistributionID] = append(m.details[detail.DistributionID], detail)
	return detail.ID, nil
}

func TestPreviewSplitsPoolByCapital(t *testing.T) {
	repo := newMemProfitRepo()
	repo.pool = dec("10000.00")
	repo.capital = []InvestorCapital{
		{InvestorID: 1, Name: "A", Capital: dec("60000")},
		{InvestorID: 2, Name: "B", Capital: dec("40000")},
	}
	svc := NewService(repo, nil)

	dist, details, err := svc.Preview(context.Background(), shared.Period("2026-03"))
	require.NoError(t, err)
	require.Equal(t, "10000.00", dist.Pool.StringFixed(2))
	require.Len(t, details, 2)
	require.Equal(t, "6000.00", details[0].Amount.StringFixed(2))
	require.Equal(t, "4000.00", details[1].Amount.StringFixed(2))
}

func TestPreviewSharesSumToPool(t *testing.T) {
	repo := newMemProfitRepo()
	repo.pool = dec("100.01")
	repo.capital = []InvestorCapital{
		{InvestorID: 1, Name: "A", Capital: dec("1")},
		{InvestorID: 2, Name: "B", Capital: dec("1")},
		{InvestorID: 3, Name: "C", Capital: dec("1")},
	}
	svc := NewService(repo, nil)

	_, details, err := svc.Preview(context.Background(), shared.Period("2026-03"))
	require.NoError(t, err)
	sum := decimal.Zero
	for _, d := range details {
		sum = sum.Add(d.Amount)
	}
	require.True(t, sum.Equal(dec("100.01")))
}

func TestPreviewWithoutInvestors(t *testing.T) {
	repo := newMemProfitRepo()
	repo.pool = dec("500.00")
	svc := NewService(repo, nil)

	_, _, err := svc.Preview(context.Background(), shared.Period("2026-03"))
	require.ErrorIs(t, err, ErrNoInvestors)
}

func TestFinalizeIsTerminal(t *testing.T) {
	repo := newMemProfitRepo()
	repo.pool = dec("10000.00")
	repo.capital = []InvestorCapital{
		{InvestorID: 1, Name: "A", Capital: dec("50000")},
		{InvestorID: 2, Name: "B", Capital: dec("50000")},
	}
	svc := NewService(repo, nil)
	period := shared.Period("2026-03")

	dist, details, err := svc.Finalize(context.Background(), period, 1)
	require.NoError(t, err)
	require.True(t, dist.IsFinalized)
	require.Len(t, details, 2)

	// Pool changes after finalization must not alter the stored rows.
	repo.pool = dec("99999.00")
	_, _, err = svc.Finalize(context.Background(), period, 1)
	require.ErrorIs(t, err, ErrAlreadyFinalized)

	stored, storedDetails, err := svc.GetDistribution(context.Background(), period)
	require.NoError(t, err)
	require.Equal(t, "10000.00", stored.Pool.StringFixed(2))
	require.Len(t, storedDetails, 2)
	require.Equal(t, "5000.00", storedDetails[0].Amount.StringFixed(2))
}
