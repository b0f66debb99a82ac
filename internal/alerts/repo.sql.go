package alerts

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists alerts in PostgreSQL. A partial unique index on
// (kind, branch_id, subject_id) WHERE acked_at IS NULL enforces the one open
// alert per condition rule.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const alertColumns = `id, kind, severity, branch_id, subject_id, message, raised_at,
COALESCE(acked_at, 'epoch'::timestamptz), COALESCE(acked_by, 0)`

// Raise inserts the alert unless an open one already covers the condition.
func (r *Repository) Raise(ctx context.Context, alert Alert) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO alerts
(kind, severity, branch_id, subject_id, message, raised_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (kind, branch_id, subject_id) WHERE acked_at IS NULL DO NOTHING`,
		string(alert.Kind), string(alert.Severity), alert.BranchID, alert.SubjectID,
		alert.Message, alert.RaisedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListOpen returns unacknowledged alerts, newest first. branchID zero means
// all branches.
func (r *Repository) ListOpen(ctx context.Context, branchID int64) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE acked_at IS NULL`
	args := []any{}
	if branchID > 0 {
		query += ` AND branch_id = $1`
		args = append(args, branchID)
	}
	query += ` ORDER BY raised_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// Acknowledge closes the alert. Returns false when it was already closed or
// does not exist.
func (r *Repository) Acknowledge(ctx context.Context, alertID, actorID int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE alerts SET acked_at=$2, acked_by=$3
WHERE id=$1 AND acked_at IS NULL`, alertID, at, actorID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Get loads one alert.
func (r *Repository) Get(ctx context.Context, alertID int64) (Alert, error) {
	alert, err := scanAlert(r.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id=$1`, alertID))
	if err == pgx.ErrNoRows {
		return Alert{}, ErrAlertNotFound
	}
	return alert, err
}

// OverdueInvoices lists open invoices past due as of the given time.
func (r *Repository) OverdueInvoices(ctx context.Context, asOf time.Time) ([]OverdueInvoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, party_id, branch_id, outstanding, due_at
FROM invoices WHERE status IN ('ISSUED','PARTIALLY_PAID') AND due_at < $1
ORDER BY due_at, id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OverdueInvoice
	for rows.Next() {
		var row OverdueInvoice
		if err := rows.Scan(&row.InvoiceID, &row.PartyID, &row.BranchID, &row.Outstanding, &row.DueAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (Alert, error) {
	var (
		alert          Alert
		kind, severity string
		ackedAt        time.Time
	)
	err := row.Scan(&alert.ID, &kind, &severity, &alert.BranchID, &alert.SubjectID,
		&alert.Message, &alert.RaisedAt, &ackedAt, &alert.AckedBy)
	if err != nil {
		return Alert{}, err
	}
	alert.Kind = Kind(kind)
	alert.Severity = Severity(severity)
	if ackedAt.Unix() != 0 {
		alert.AckedAt = ackedAt
	}
	return alert, nil
}
