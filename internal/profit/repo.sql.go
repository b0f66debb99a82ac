package profit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists distributions in PostgreSQL.
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

// InvestorCapital sums contributions per active investor.
func (r *Repository) InvestorCapital(ctx context.Context) ([]InvestorCapital, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.name, COALESCE(SUM(c.amount), 0)
FROM investors i
LEFT JOIN investor_capital c ON c.investor_id = i.id
WHERE i.active
GROUP BY i.id, i.name
HAVING COALESCE(SUM(c.amount), 0) > 0
ORDER BY i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InvestorCapital
	for rows.Next() {
		var inv InvestorCapital
		if err := rows.Scan(&inv.InvestorID, &inv.Name, &inv.Capital); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// PoolForPeriod sums the investor share of every sale in [from, to).
func (r *Repository) PoolForPeriod(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var pool decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(investor_share), 0)
FROM sale_items WHERE sold_at >= $1 AND sold_at < $2`, from, to).Scan(&pool)
	return pool, err
}

const distributionQuery = `SELECT id, period, pool, is_finalized,
COALESCE(finalized_at, 'epoch'::timestamptz), created_at
FROM profit_distributions`

// GetDistribution fetches a distribution by period.
func (r *Repository) GetDistribution(ctx context.Context, period shared.Period) (Distribution, error) {
	dist, err := scanDistribution(r.pool.QueryRow(ctx, distributionQuery+` WHERE period=$1`, period.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Distribution{}, shared.NotFoundf("profit: no distribution for %s", period.String())
	}
	return dist, err
}

// ListDetails lists detail rows for a distribution.
func (r *Repository) ListDetails(ctx context.Context, distributionID int64) ([]DistributionDetail, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, distribution_id, investor_id, share_percent, amount
FROM profit_distribution_details WHERE distribution_id=$1 ORDER BY investor_id`, distributionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DistributionDetail
	for rows.Next() {
		var d DistributionDetail
		if err := rows.Scan(&d.ID, &d.DistributionID, &d.InvestorID, &d.SharePercent, &d.Amount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDistribution(row rowScanner) (Distribution, error) {
	var d Distribution
	var period string
	err := row.Scan(&d.ID, &period, &d.Pool, &d.IsFinalized, &d.FinalizedAt, &d.CreatedAt)
	if err != nil {
		return Distribution{}, err
	}
	d.Period = shared.Period(period)
	return d, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetDistributionForUpdate(ctx context.Context, period shared.Period) (Distribution, bool, error) {
	dist, err := scanDistribution(r.tx.QueryRow(ctx, distributionQuery+` WHERE period=$1 FOR UPDATE`, period.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Distribution{}, false, nil
	}
	if err != nil {
		return Distribution{}, false, err
	}
	return dist, true, nil
}

func (r *txRepository) InsertDistribution(ctx context.Context, d Distribution) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO profit_distributions (period, pool, is_finalized, created_at)
VALUES ($1,$2,false,$3) RETURNING id`, d.Period.String(), d.Pool, d.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateDistributionPool(ctx context.Context, id int64, pool decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE profit_distributions SET pool=$2 WHERE id=$1`, id, pool)
	return err
}

func (r *txRepository) MarkFinalized(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE profit_distributions SET is_finalized=true, finalized_at=$2
WHERE id=$1 AND is_finalized=false`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) DeleteDetails(ctx context.Context, distributionID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM profit_distribution_details WHERE distribution_id=$1`, distributionID)
	return err
}

func (r *txRepository) InsertDetail(ctx context.Context, detail DistributionDetail) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO profit_distribution_details
(distribution_id, investor_id, share_percent, amount)
VALUES ($1,$2,$3,$4) RETURNING id`,
		detail.DistributionID, detail.InvestorID, detail.SharePercent, detail.Amount).Scan(&id)
	return id, err
}
