package sales

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// Repository persists sale items in PostgreSQL.
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

// ListItemsForInvoice lists the frozen sale snapshot for an invoice.
func (r *Repository) ListItemsForInvoice(ctx context.Context, invoiceID int64) ([]SaleItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, unit_id, product_id, branch_id,
retail_price, landing_cost, branch_cost, profit, investor_share, master_share, cash_due_hq, sold_at
FROM sale_items WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaleItem
	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.UnitID, &item.ProductID, &item.BranchID,
			&item.RetailPrice, &item.LandingCost, &item.BranchCost, &item.Profit,
			&item.InvestorShare, &item.MasterShare, &item.CashDueHeadOffice, &item.SoldAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) HasItemsForInvoice(ctx context.Context, invoiceID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sale_items WHERE invoice_id=$1)`, invoiceID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertSaleItem(ctx context.Context, item SaleItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_items
(invoice_id, unit_id, product_id, branch_id, retail_price, landing_cost, branch_cost,
 profit, investor_share, master_share, cash_due_hq, sold_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		item.InvoiceID, item.UnitID, item.ProductID, item.BranchID,
		item.RetailPrice, item.LandingCost, item.BranchCost,
		item.Profit, item.InvestorShare, item.MasterShare, item.CashDueHeadOffice, item.SoldAt).Scan(&id)
	return id, err
}

func (r *txRepository) Stock() stock.TxRepository {
	return stock.TxAdapter(r.tx)
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.TxAdapter(r.tx)
}
