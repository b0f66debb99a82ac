package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Balance(ctx context.Context, kind SubjectKind, subjectID int64) (decimal.Decimal, error)
	History(ctx context.Context, filter HistoryFilter) ([]Entry, error)
}

// TxRepository exposes the transactional append path. LockSubject serialises
// the read-last-balance / insert sequence per subject; without it two
// concurrent appends could both read the same predecessor and produce a lost
// update in the running balance.
type TxRepository interface {
	LockSubject(ctx context.Context, kind SubjectKind, subjectID int64) error
	LastBalance(ctx context.Context, kind SubjectKind, subjectID int64) (decimal.Decimal, error)
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
}

// AuditPort records ledger events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger appends and reads.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Append writes one entry and returns it with the new running balance.
func (s *Service) Append(ctx context.Context, input AppendInput) (Entry, error) {
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = appendEntry(ctx, tx, input, s.now())
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "ledger.append",
			Entity:   "ledger_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"kind":       string(entry.Kind),
				"subject_id": entry.SubjectID,
				"debit":      entry.Debit.String(),
				"credit":     entry.Credit.String(),
				"balance":    entry.RunningBalance.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// Balance returns the subject's latest running balance, zero when the subject
// has no entries.
func (s *Service) Balance(ctx context.Context, kind SubjectKind, subjectID int64) (decimal.Decimal, error) {
	if subjectID <= 0 {
		return decimal.Zero, ErrSubjectRequired
	}
	return s.repo.Balance(ctx, kind, subjectID)
}

// History returns entries newest-first, optionally date-bounded.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Entry, error) {
	if filter.SubjectID <= 0 {
		return nil, ErrSubjectRequired
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.History(ctx, filter)
}

// appendEntry is the single append path, shared by the standalone service and
// by other components composing a ledger write into their own transaction.
func appendEntry(ctx context.Context, tx TxRepository, input AppendInput, now time.Time) (Entry, error) {
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	if err := tx.LockSubject(ctx, input.Kind, input.SubjectID); err != nil {
		return Entry{}, err
	}
	last, err := tx.LastBalance(ctx, input.Kind, input.SubjectID)
	if err != nil {
		return Entry{}, err
	}
	debit := shared.Round2(input.Debit)
	credit := shared.Round2(input.Credit)
	entryAt := input.EntryAt
	if entryAt.IsZero() {
		entryAt = now
	}
	entry := Entry{
		Kind:           input.Kind,
		SubjectID:      input.SubjectID,
		Debit:          debit,
		Credit:         credit,
		RunningBalance: shared.Round2(last.Add(input.Kind.delta(debit, credit))),
		Description:    input.Description,
		Reference:      input.Reference,
		EntryAt:        entryAt,
	}
	id, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = id
	return entry, nil
}

// AppendTx composes an append into a caller-owned transaction wrapper. Used
// by purchasing finalisation and sale posting so their ledger writes commit
// or roll back with the rest of the operation.
func AppendTx(ctx context.Context, tx TxRepository, input AppendInput, now time.Time) (Entry, error) {
	return appendEntry(ctx, tx, input, now)
}
