package billing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memBillingRepo struct {
	invoices    map[int64]*Invoice
	payments    map[int64]Payment
	allocations []Allocation
	aging       map[int64]AgingRow
	nextInv     int64
	nextPay     int64
	nextAlloc   int64
}

func newMemBillingRepo() *memBillingRepo {
	return &memBillingRepo{
		invoices: map[int64]*Invoice{},
		payments: map[int64]Payment{},
		aging:    map[int64]AgingRow{},
		nextInv:  1, nextPay: 1, nextAlloc: 1,
	}
}

func (m *memBillingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memBillingRepo) GetInvoice(_ context.Context, invoiceID int64) (Invoice, error) {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return *inv, nil
}

func (m *memBillingRepo) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (Invoice, error) {
	return m.GetInvoice(ctx, invoiceID)
}

func (m *memBillingRepo) InsertInvoice(_ context.Context, inv Invoice) (int64, error) {
	inv.ID = m.nextInv
	m.nextInv++
	m.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (m *memBillingRepo) UpdateInvoicePosition(_ context.Context, inv Invoice) error {
	*m.invoices[inv.ID] = inv
	return nil
}

func (m *memBillingRepo) InsertPayment(_ context.Context, p Payment) (int64, error) {
	p.ID = m.nextPay
	m.nextPay++
	m.payments[p.ID] = p
	return p.ID, nil
}

func (m *memBillingRepo) InsertAllocation(_ context.Context, a Allocation) (int64, error) {
	a.ID = m.nextAlloc
	m.nextAlloc++
	m.allocations = append(m.allocations, a)
	return a.ID, nil
}

func (m *memBillingRepo) UpsertAgingRow(_ context.Context, row AgingRow) error {
	m.aging[row.InvoiceID] = row
	return nil
}

func (m *memBillingRepo) Outstanding(_ context.Context, partyID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, inv := range m.invoices {
		if inv.PartyID == partyID && (inv.Status == StatusIssued || inv.Status == StatusPartiallyPaid) {
			sum = sum.Add(inv.Outstanding)
		}
	}
	return sum, nil
}

func (m *memBillingRepo) AgingSummary(_ context.Context, partyID int64) ([]BucketSummary, error) {
	byBucket := map[AgingBucket]*BucketSummary{}
	for _, row := range m.aging {
		if row.Outstanding.IsZero() || (partyID != 0 && row.PartyID != partyID) {
			continue
		}
		s, ok := byBucket[row.Bucket]
		if !ok {
			s = &BucketSummary{Bucket: row.Bucket}
			byBucket[row.Bucket] = s
		}
		s.Count++
		s.Total = s.Total.Add(row.Outstanding)
	}
	var out []BucketSummary
	for _, s := range byBucket {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memBillingRepo) ListOpenAging(context.Context) ([]AgingRow, error) {
	var out []AgingRow
	for id := int64(1); id < m.nextInv; id++ {
		row, ok := m.aging[id]
		if ok && !row.Outstanding.IsZero() {
			out = append(out, row)
		}
	}
	return out, nil
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func issuedInvoice(t *testing.T, svc *Service, total string, due time.Time) Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		Kind: KindSales, PartyID: 9, BranchID: 1, Total: amount(total), DueAt: due,
	})
	require.NoError(t, err)
	inv, err = svc.Issue(context.Background(), inv.ID, 1)
	require.NoError(t, err)
	return inv
}

func TestIssueRequiresDraft(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)
	inv := issuedInvoice(t, svc, "1000.00", time.Now().AddDate(0, 0, 30))

	_, err := svc.Issue(context.Background(), inv.ID, 1)
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestIssueSeedsAgingRow(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)
	inv := issuedInvoice(t, svc, "1000.00", time.Now().AddDate(0, 0, 30))

	row, ok := repo.aging[inv.ID]
	require.True(t, ok)
	require.Equal(t, BucketCurrent, row.Bucket)
	require.Equal(t, "1000.00", row.Outstanding.StringFixed(2))
}

func TestFullPaymentMarksPaid(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)
	inv := issuedInvoice(t, svc, "10000.00", time.Now().AddDate(0, 0, 30))

	inv, _, err := svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: amount("10000.00")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, inv.Status)
	require.Equal(t, "0.00", inv.Outstanding.StringFixed(2))
	require.Equal(t, "0.00", inv.Credit.StringFixed(2))
}

func TestPartialPaymentsAccumulate(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)
	inv := issuedInvoice(t, svc, "10000.00", time.Now().AddDate(0, 0, 30))

	inv, _, err := svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: amount("3000.00")})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, inv.Status)
	require.Equal(t, "7000.00", inv.Outstanding.StringFixed(2))

	inv, _, err = svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: amount("4000.00")})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, inv.Status)
	require.Equal(t, "3000.00", inv.Outstanding.StringFixed(2))

	inv, _, err = svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: amount("3000.00")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, inv.Status)
	require.Equal(t, "0.00", inv.Outstanding.StringFixed(2))
	require.Len(t, repo.allocations, 3)
}

func TestPaymentCarriesReferenceAndNotes(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)
	inv := issuedInvoice(t, svc, "100.00", time.Now().AddDate(0, 0, 7))

	_, payment, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID,
		Amount:    amount("100.00"),
		Method:    "TRANSFER",
		Reference: "TRX-2026-0815",
		Notes:     "wire from head office account",
	})
	require.NoError(t, err)
	require.Equal(t, "TRX-2026-0815", payment.Reference)
	require.Equal(t, "wire from head office account", payment.Notes)

	stored := repo.payments[payment.ID]
	require.Equal(t, "TRX-2026-0815", stored.Reference)
	require.Equal(t, "wire from head office account", stored.Notes)
}

func TestOverpaymentTrackedAsCredit(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)
	inv := issuedInvoice(t, svc, "5000.00", time.Now().AddDate(0, 0, 30))

	inv, _, err := svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: amount("6000.00")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, inv.Status)
	require.Equal(t, "0.00", inv.Outstanding.StringFixed(2))
	require.Equal(t, "1000.00", inv.Credit.StringFixed(2))
}

func TestPaymentAgainstDraftConflicts(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		Kind: KindSales, PartyID: 9, BranchID: 1, Total: amount("100.00"), DueAt: time.Now().AddDate(0, 0, 7),
	})
	require.NoError(t, err)

	_, _, err = svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: amount("100.00")})
	require.ErrorIs(t, err, ErrNotPayable)
}

func TestPaymentAgainstPaidInvoiceConflicts(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)
	inv := issuedInvoice(t, svc, "100.00", time.Now().AddDate(0, 0, 7))

	_, _, err := svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: amount("100.00")})
	require.NoError(t, err)

	_, _, err = svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: amount("1.00")})
	require.ErrorIs(t, err, ErrNotPayable)
}

func TestBucketFor(t *testing.T) {
	cases := []struct {
		days   int
		bucket AgingBucket
	}{
		{-5, BucketCurrent},
		{0, BucketCurrent},
		{1, Bucket30},
		{30, Bucket30},
		{45, Bucket60},
		{60, Bucket60},
		{61, Bucket90},
		{90, Bucket90},
		{91, BucketOver90},
		{400, BucketOver90},
	}
	for _, tc := range cases {
		require.Equal(t, tc.bucket, BucketFor(tc.days), "days=%d", tc.days)
	}
}

func TestUpdateAgingMovesBuckets(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)

	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return base })

	inv := issuedInvoice(t, svc, "2500.00", base.AddDate(0, 0, 14))
	require.Equal(t, BucketCurrent, repo.aging[inv.ID].Bucket)

	updated, err := svc.UpdateAging(context.Background(), base.AddDate(0, 0, 14+45))
	require.NoError(t, err)
	require.Equal(t, 1, updated)
	require.Equal(t, Bucket60, repo.aging[inv.ID].Bucket)
	require.Equal(t, 45, repo.aging[inv.ID].DaysOverdue)
}

func TestUpdateInvoiceAgingRecomputesOneRow(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)

	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return base })
	inv := issuedInvoice(t, svc, "2500.00", base.AddDate(0, 0, 14))

	svc.WithNow(func() time.Time { return base.AddDate(0, 0, 14+45) })
	row, err := svc.UpdateInvoiceAging(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, 45, row.DaysOverdue)
	require.Equal(t, Bucket60, row.Bucket)
	require.Equal(t, Bucket60, repo.aging[inv.ID].Bucket)

	_, err = svc.UpdateInvoiceAging(context.Background(), 999)
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestOutstandingSumsOpenInvoices(t *testing.T) {
	repo := newMemBillingRepo()
	svc := NewService(repo, nil)
	due := time.Now().AddDate(0, 0, 30)

	first := issuedInvoice(t, svc, "1000.00", due)
	issuedInvoice(t, svc, "500.00", due)

	_, _, err := svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: first.ID, Amount: amount("250.00")})
	require.NoError(t, err)

	outstanding, err := svc.Outstanding(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, "1250.00", outstanding.StringFixed(2))
}
