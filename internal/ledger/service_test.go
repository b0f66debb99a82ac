package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memLedgerRepo struct {
	entries []Entry
	nextID  int64
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{nextID: 1}
}

func (m *memLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memLedgerRepo) LockSubject(context.Context, SubjectKind, int64) error { return nil }

func (m *memLedgerRepo) LastBalance(_ context.Context, kind SubjectKind, subjectID int64) (decimal.Decimal, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Kind == kind && m.entries[i].SubjectID == subjectID {
			return m.entries[i].RunningBalance, nil
		}
	}
	return decimal.Zero, nil
}

func (m *memLedgerRepo) InsertEntry(_ context.Context, entry Entry) (int64, error) {
	entry.ID = m.nextID
	m.nextID++
	m.entries = append(m.entries, entry)
	return entry.ID, nil
}

func (m *memLedgerRepo) Balance(ctx context.Context, kind SubjectKind, subjectID int64) (decimal.Decimal, error) {
	return m.LastBalance(ctx, kind, subjectID)
}

func (m *memLedgerRepo) History(_ context.Context, filter HistoryFilter) ([]Entry, error) {
	var out []Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.Kind != filter.Kind || e.SubjectID != filter.SubjectID {
			continue
		}
		if !filter.From.IsZero() && e.EntryAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.EntryAt.After(filter.To) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAppendBranchRunningBalance(t *testing.T) {
	repo := newMemLedgerRepo()
	svc := NewService(repo, nil)

	entry, err := svc.Append(context.Background(), AppendInput{
		Kind: SubjectBranch, SubjectID: 1, Credit: dec("150.00"), Description: "sale",
	})
	require.NoError(t, err)
	require.True(t, entry.RunningBalance.Equal(dec("150.00")))

	entry, err = svc.Append(context.Background(), AppendInput{
		Kind: SubjectBranch, SubjectID: 1, Debit: dec("40.50"), Description: "settlement",
	})
	require.NoError(t, err)
	require.True(t, entry.RunningBalance.Equal(dec("109.50")))
}

func TestAppendSupplierDebitIncreasesBalance(t *testing.T) {
	repo := newMemLedgerRepo()
	svc := NewService(repo, nil)

	entry, err := svc.Append(context.Background(), AppendInput{
		Kind: SubjectSupplier, SubjectID: 7, Debit: dec("1200.00"), Description: "purchase",
	})
	require.NoError(t, err)
	require.True(t, entry.RunningBalance.Equal(dec("1200.00")))

	entry, err = svc.Append(context.Background(), AppendInput{
		Kind: SubjectSupplier, SubjectID: 7, Credit: dec("200.00"), Description: "payment",
	})
	require.NoError(t, err)
	require.True(t, entry.RunningBalance.Equal(dec("1000.00")))
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	svc := NewService(newMemLedgerRepo(), nil)

	cases := []struct {
		name  string
		input AppendInput
	}{
		{"unknown kind", AppendInput{Kind: "VENDOR", SubjectID: 1, Debit: dec("1")}},
		{"missing subject", AppendInput{Kind: SubjectBranch, Debit: dec("1")}},
		{"negative debit", AppendInput{Kind: SubjectBranch, SubjectID: 1, Debit: dec("-1")}},
		{"both zero", AppendInput{Kind: SubjectBranch, SubjectID: 1}},
		{"sub-cent precision", AppendInput{Kind: SubjectBranch, SubjectID: 1, Debit: dec("0.001")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Append(context.Background(), tc.input)
			require.Error(t, err)
			var sharedErr *shared.Error
			require.ErrorAs(t, err, &sharedErr)
			require.Equal(t, shared.KindValidation, sharedErr.Kind)
		})
	}
}

func TestBalanceZeroForUnknownSubject(t *testing.T) {
	svc := NewService(newMemLedgerRepo(), nil)

	balance, err := svc.Balance(context.Background(), SubjectBranch, 99)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}

func TestHistoryNewestFirstAndBounded(t *testing.T) {
	repo := newMemLedgerRepo()
	svc := NewService(repo, nil)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := svc.Append(context.Background(), AppendInput{
			Kind: SubjectBranch, SubjectID: 4, Credit: dec("10.00"),
			EntryAt: base.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}

	entries, err := svc.History(context.Background(), HistoryFilter{Kind: SubjectBranch, SubjectID: 4})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.True(t, entries[0].EntryAt.After(entries[2].EntryAt))

	entries, err = svc.History(context.Background(), HistoryFilter{
		Kind: SubjectBranch, SubjectID: 4,
		From: base.AddDate(0, 0, 1), To: base.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestHistoryRequiresSubject(t *testing.T) {
	svc := NewService(newMemLedgerRepo(), nil)

	_, err := svc.History(context.Background(), HistoryFilter{Kind: SubjectBranch})
	require.ErrorIs(t, err, ErrSubjectRequired)
}
