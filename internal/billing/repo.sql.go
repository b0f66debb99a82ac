package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists billing data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const invoiceQuery = `SELECT id, invoice_number, kind, party_id, branch_id, total, paid, outstanding, credit,
status, due_at, COALESCE(issued_at, 'epoch'::timestamptz), created_at
FROM invoices`

func (r *Repository) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, invoiceQuery+` WHERE id=$1`, invoiceID))
}

// Outstanding sums open invoice balances for a party.
func (r *Repository) Outstanding(ctx context.Context, partyID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(outstanding), 0) FROM invoices
WHERE party_id=$1 AND status IN ('ISSUED','PARTIALLY_PAID')`, partyID).Scan(&sum)
	return sum, err
}

// AgingSummary groups open aging rows per bucket; partyID zero means all.
func (r *Repository) AgingSummary(ctx context.Context, partyID int64) ([]BucketSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.bucket, COUNT(*), COALESCE(SUM(a.outstanding), 0)
FROM invoice_aging a
WHERE a.outstanding > 0 AND ($1 = 0 OR a.party_id = $1)
GROUP BY a.bucket
ORDER BY a.bucket`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BucketSummary
	for rows.Next() {
		var s BucketSummary
		if err := rows.Scan(&s.Bucket, &s.Count, &s.Total); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListOpenAging returns aging rows that still carry an outstanding amount.
func (r *Repository) ListOpenAging(ctx context.Context) ([]AgingRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT invoice_id, party_id, branch_id, outstanding, due_at, days_overdue, bucket, updated_at
FROM invoice_aging WHERE outstanding > 0 ORDER BY invoice_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AgingRow
	for rows.Next() {
		var row AgingRow
		if err := rows.Scan(&row.InvoiceID, &row.PartyID, &row.BranchID, &row.Outstanding,
			&row.DueAt, &row.DaysOverdue, &row.Bucket, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Kind, &inv.PartyID, &inv.BranchID,
		&inv.Total, &inv.Paid, &inv.Outstanding, &inv.Credit,
		&inv.Status, &inv.DueAt, &inv.IssuedAt, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices
(invoice_number, kind, party_id, branch_id, total, paid, outstanding, credit, status, due_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		inv.Number, string(inv.Kind), inv.PartyID, inv.BranchID, inv.Total, inv.Paid,
		inv.Outstanding, inv.Credit, string(inv.Status), inv.DueAt, inv.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, invoiceQuery+` WHERE id=$1 FOR UPDATE`, invoiceID))
}

func (r *txRepository) UpdateInvoicePosition(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices
SET paid=$2, outstanding=$3, credit=$4, status=$5, issued_at=NULLIF($6, 'epoch'::timestamptz), updated_at=NOW()
WHERE id=$1`,
		inv.ID, inv.Paid, inv.Outstanding, inv.Credit, string(inv.Status), inv.IssuedAt)
	return err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payments
(payment_number, party_id, amount, method, reference, notes, paid_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		p.Number, p.PartyID, p.Amount, p.Method, p.Reference, p.Notes, p.PaidAt, nullInt(p.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertAllocation(ctx context.Context, a Allocation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payment_allocations (payment_id, invoice_id, amount)
VALUES ($1,$2,$3) RETURNING id`, a.PaymentID, a.InvoiceID, a.Amount).Scan(&id)
	return id, err
}

func (r *txRepository) UpsertAgingRow(ctx context.Context, row AgingRow) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO invoice_aging
(invoice_id, party_id, branch_id, outstanding, due_at, days_overdue, bucket, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (invoice_id) DO UPDATE
SET outstanding=EXCLUDED.outstanding, days_overdue=EXCLUDED.days_overdue,
    bucket=EXCLUDED.bucket, updated_at=EXCLUDED.updated_at`,
		row.InvoiceID, row.PartyID, row.BranchID, row.Outstanding, row.DueAt,
		row.DaysOverdue, string(row.Bucket), row.UpdatedAt)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
