// Package ledger implements the append-only running-balance account log used
// by every other financial component. Entries are keyed by (subject kind,
// subject id) and are never updated or deleted.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SubjectKind partitions the ledger. Branch balances grow with credits,
// supplier balances grow with debits (a supplier debit is an amount the
// company owes).
type SubjectKind string

const (
	SubjectBranch   SubjectKind = "BRANCH"
	SubjectSupplier SubjectKind = "SUPPLIER"
)

// Entry is one immutable ledger row.
type Entry struct {
	ID             int64
	Kind           SubjectKind
	SubjectID      int64
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
	Description    string
	Reference      string
	EntryAt        time.Time
}

// AppendInput describes a requested append.
type AppendInput struct {
	Kind        SubjectKind
	SubjectID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	Reference   string
	EntryAt     time.Time
}

// Validate rejects malformed appends before any transaction starts.
func (in AppendInput) Validate() error {
	switch in.Kind {
	case SubjectBranch, SubjectSupplier:
	default:
		return shared.Validationf("ledger: unknown subject kind %q", string(in.Kind))
	}
	if in.SubjectID <= 0 {
		return shared.Validationf("ledger: subject id required")
	}
	if !shared.IsMoney(in.Debit) || !shared.IsMoney(in.Credit) {
		return shared.Validationf("ledger: debit and credit must be non-negative amounts")
	}
	if in.Debit.IsZero() && in.Credit.IsZero() {
		return shared.Validationf("ledger: debit or credit must be non-zero")
	}
	return nil
}

// delta returns the signed balance movement for the subject kind.
func (k SubjectKind) delta(debit, credit decimal.Decimal) decimal.Decimal {
	if k == SubjectSupplier {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// HistoryFilter bounds a history query. Entries come back newest first.
type HistoryFilter struct {
	Kind      SubjectKind
	SubjectID int64
	From      time.Time
	To        time.Time
	Limit     int
}

var (
	// ErrSubjectRequired indicates a balance/history query without a subject.
	ErrSubjectRequired = shared.Validationf("ledger: subject kind and id required")
)
