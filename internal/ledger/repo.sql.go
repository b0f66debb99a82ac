package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for ledger entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Balance returns the latest running balance or zero.
func (r *Repository) Balance(ctx context.Context, kind SubjectKind, subjectID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT running_balance FROM ledger_entries
WHERE subject_kind=$1 AND subject_id=$2 ORDER BY id DESC LIMIT 1`, kind, subjectID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// History lists entries newest-first within the optional date bounds.
func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]Entry, error) {
	query := `SELECT id, subject_kind, subject_id, debit, credit, running_balance, description, reference, entry_at
FROM ledger_entries WHERE subject_kind=$1 AND subject_id=$2`
	args := []any{filter.Kind, filter.SubjectID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND entry_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND entry_at <= $` + strconv.Itoa(len(args))
	}
	args = append(args, filter.Limit)
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.SubjectID, &e.Debit, &e.Credit, &e.RunningBalance, &e.Description, &e.Reference, &e.EntryAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

type txRepo struct {
	tx pgx.Tx
}

// TxAdapter exposes the transactional ledger operations over a caller-owned
// pgx transaction, so purchasing and sales can append entries atomically with
// their own writes.
func TxAdapter(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// LockSubject takes a transaction-scoped advisory lock serialising appends
// per (kind, subject).
func (t *txRepo) LockSubject(ctx context.Context, kind SubjectKind, subjectID int64) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`,
		string(kind), strconv.FormatInt(subjectID, 10))
	return err
}

func (t *txRepo) LastBalance(ctx context.Context, kind SubjectKind, subjectID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT running_balance FROM ledger_entries
WHERE subject_kind=$1 AND subject_id=$2 ORDER BY id DESC LIMIT 1`, kind, subjectID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (t *txRepo) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO ledger_entries
(subject_kind, subject_id, debit, credit, running_balance, description, reference, entry_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		entry.Kind, entry.SubjectID, entry.Debit, entry.Credit, entry.RunningBalance,
		entry.Description, entry.Reference, entry.EntryAt).Scan(&id)
	return id, err
}
