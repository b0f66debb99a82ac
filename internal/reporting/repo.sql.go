package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the report queries against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DailySales aggregates sale items per branch for one day.
func (r *Repository) DailySales(ctx context.Context, date time.Time) ([]DailySalesRow, error) {
	day := date.Format("2006-01-02")
	rows, err := r.pool.Query(ctx, `SELECT branch_id, COUNT(*), COALESCE(SUM(retail_price), 0), COALESCE(SUM(profit), 0)
FROM sale_items WHERE sold_at >= $1::date AND sold_at < $1::date + INTERVAL '1 day'
GROUP BY branch_id ORDER BY branch_id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailySalesRow
	for rows.Next() {
		row := DailySalesRow{Date: day}
		if err := rows.Scan(&row.BranchID, &row.Units, &row.Revenue, &row.Profit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MonthlyRevenue aggregates sale items per branch for one month.
func (r *Repository) MonthlyRevenue(ctx context.Context, from, to time.Time) ([]MonthlyRevenueRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT branch_id, COUNT(*), COALESCE(SUM(retail_price), 0)
FROM sale_items WHERE sold_at >= $1 AND sold_at < $2
GROUP BY branch_id ORDER BY branch_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	period := from.Format("2006-01")
	var out []MonthlyRevenueRow
	for rows.Next() {
		row := MonthlyRevenueRow{Period: period}
		if err := rows.Scan(&row.BranchID, &row.Units, &row.Revenue); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ProfitBreakdown sums split components over [from, to).
func (r *Repository) ProfitBreakdown(ctx context.Context, from, to time.Time) (ProfitBreakdown, error) {
	breakdown := ProfitBreakdown{From: from.Format("2006-01-02"), To: to.Format("2006-01-02")}
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(profit), 0), COALESCE(SUM(investor_share), 0),
COALESCE(SUM(master_share), 0), COALESCE(SUM(cash_due_hq), 0)
FROM sale_items WHERE sold_at >= $1 AND sold_at < $2`, from, to).
		Scan(&breakdown.Profit, &breakdown.InvestorShare, &breakdown.MasterShare, &breakdown.CashDueHeadOffice)
	return breakdown, err
}

// SupplierPayables returns each supplier's latest running balance.
func (r *Repository) SupplierPayables(ctx context.Context) ([]SupplierPayable, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ON (subject_id) subject_id, running_balance
FROM ledger_entries WHERE subject_kind='SUPPLIER'
ORDER BY subject_id, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SupplierPayable
	for rows.Next() {
		var row SupplierPayable
		if err := rows.Scan(&row.SupplierID, &row.Balance); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// BranchOutstanding sums open invoice balances per branch.
func (r *Repository) BranchOutstanding(ctx context.Context) ([]BranchOutstanding, error) {
	rows, err := r.pool.Query(ctx, `SELECT branch_id, COALESCE(SUM(outstanding), 0)
FROM invoices WHERE status IN ('ISSUED','PARTIALLY_PAID')
GROUP BY branch_id ORDER BY branch_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BranchOutstanding
	for rows.Next() {
		var row BranchOutstanding
		if err := rows.Scan(&row.BranchID, &row.Outstanding); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// AgingSummary groups open aging rows per bucket.
func (r *Repository) AgingSummary(ctx context.Context) ([]AgingSummaryRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT bucket, COUNT(*), COALESCE(SUM(outstanding), 0)
FROM invoice_aging WHERE outstanding > 0
GROUP BY bucket ORDER BY bucket`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AgingSummaryRow
	for rows.Next() {
		var row AgingSummaryRow
		if err := rows.Scan(&row.Bucket, &row.Count, &row.Total); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpsertDailySnapshot writes one materialised per-branch day row.
func (r *Repository) UpsertDailySnapshot(ctx context.Context, snap DailySnapshot) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO daily_snapshots
(snapshot_date, branch_id, units, revenue, profit, cash_due_hq, built_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (snapshot_date, branch_id) DO UPDATE
SET units=EXCLUDED.units, revenue=EXCLUDED.revenue, profit=EXCLUDED.profit,
    cash_due_hq=EXCLUDED.cash_due_hq, built_at=NOW()`,
		snap.Date, snap.BranchID, snap.Units, snap.Revenue, snap.Profit, snap.CashDueHeadOffice)
	return err
}

// SnapshotRows aggregates sale items per branch for the snapshot build.
func (r *Repository) SnapshotRows(ctx context.Context, date time.Time) ([]DailySnapshot, error) {
	day := date.Format("2006-01-02")
	rows, err := r.pool.Query(ctx, `SELECT branch_id, COUNT(*), COALESCE(SUM(retail_price), 0),
COALESCE(SUM(profit), 0), COALESCE(SUM(cash_due_hq), 0)
FROM sale_items WHERE sold_at >= $1::date AND sold_at < $1::date + INTERVAL '1 day'
GROUP BY branch_id ORDER BY branch_id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailySnapshot
	for rows.Next() {
		snap := DailySnapshot{Date: date}
		if err := rows.Scan(&snap.BranchID, &snap.Units, &snap.Revenue, &snap.Profit, &snap.CashDueHeadOffice); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
