package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// Repository persists purchasing data in PostgreSQL.
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

const poQuery = `SELECT id, po_number, supplier_id, branch_id, status, total, note, COALESCE(created_by, 0), created_at
FROM purchase_orders`

func (r *Repository) GetPO(ctx context.Context, poID int64) (PurchaseOrder, error) {
	return scanPO(r.pool.QueryRow(ctx, poQuery+` WHERE id=$1`, poID))
}

func (r *Repository) ListPOItems(ctx context.Context, poID int64) ([]POItem, error) {
	return listPOItems(ctx, r.pool, poID)
}

const grnQuery = `SELECT id, grn_number, po_id, supplier_id, branch_id, status,
COALESCE(received_at, 'epoch'::timestamptz), created_at
FROM goods_received_notes`

func (r *Repository) GetGRN(ctx context.Context, grnID int64) (GoodsReceivedNote, error) {
	return scanGRN(r.pool.QueryRow(ctx, grnQuery+` WHERE id=$1`, grnID))
}

func (r *Repository) ListLandingCosts(ctx context.Context, grnID int64) ([]LandingCost, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, grn_id, kind, amount, note, created_at
FROM landing_costs WHERE grn_id=$1 ORDER BY id`, grnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LandingCost
	for rows.Next() {
		var lc LandingCost
		if err := rows.Scan(&lc.ID, &lc.GRNID, &lc.Kind, &lc.Amount, &lc.Note, &lc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listPOItems(ctx context.Context, q queryer, poID int64) ([]POItem, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, product_id, qty, unit_price, line_total
FROM po_items WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []POItem
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ProductID, &item.Qty, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPO(row rowScanner) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.BranchID, &po.Status, &po.Total,
		&po.Note, &po.CreatedBy, &po.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrPONotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func scanGRN(row rowScanner) (GoodsReceivedNote, error) {
	var grn GoodsReceivedNote
	err := row.Scan(&grn.ID, &grn.Number, &grn.POID, &grn.SupplierID, &grn.BranchID, &grn.Status,
		&grn.ReceivedAt, &grn.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GoodsReceivedNote{}, ErrGRNNotFound
	}
	if err != nil {
		return GoodsReceivedNote{}, err
	}
	return grn, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(po_number, supplier_id, branch_id, status, total, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		po.Number, po.SupplierID, po.BranchID, string(po.Status), po.Total, po.Note,
		nullInt(po.CreatedBy), po.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, error) {
	return scanPO(r.tx.QueryRow(ctx, poQuery+` WHERE id=$1 FOR UPDATE`, poID))
}

func (r *txRepository) UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2, updated_at=NOW() WHERE id=$1`,
		poID, string(status))
	return err
}

func (r *txRepository) UpdatePOTotal(ctx context.Context, poID int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET total=$2, updated_at=NOW() WHERE id=$1`, poID, total)
	return err
}

func (r *txRepository) InsertPOItem(ctx context.Context, item POItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO po_items (po_id, product_id, qty, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		item.POID, item.ProductID, item.Qty, item.UnitPrice, item.LineTotal).Scan(&id)
	return id, err
}

func (r *txRepository) ListPOItems(ctx context.Context, poID int64) ([]POItem, error) {
	return listPOItems(ctx, r.tx, poID)
}

func (r *txRepository) InsertGRN(ctx context.Context, grn GoodsReceivedNote) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO goods_received_notes
(grn_number, po_id, supplier_id, branch_id, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		grn.Number, grn.POID, grn.SupplierID, grn.BranchID, string(grn.Status), grn.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetGRNForUpdate(ctx context.Context, grnID int64) (GoodsReceivedNote, error) {
	return scanGRN(r.tx.QueryRow(ctx, grnQuery+` WHERE id=$1 FOR UPDATE`, grnID))
}

func (r *txRepository) UpdateGRNStatus(ctx context.Context, grnID int64, status GRNStatus, receivedAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE goods_received_notes SET status=$2, received_at=$3 WHERE id=$1`,
		grnID, string(status), receivedAt)
	return err
}

func (r *txRepository) InsertGRNItem(ctx context.Context, item GRNItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO grn_items (grn_id, product_id, qty, unit_price)
VALUES ($1,$2,$3,$4)`, item.GRNID, item.ProductID, item.Qty, item.UnitPrice)
	return err
}

func (r *txRepository) ListGRNItems(ctx context.Context, grnID int64) ([]GRNItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, grn_id, product_id, qty, unit_price
FROM grn_items WHERE grn_id=$1 ORDER BY id`, grnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GRNItem
	for rows.Next() {
		var item GRNItem
		if err := rows.Scan(&item.ID, &item.GRNID, &item.ProductID, &item.Qty, &item.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertLandingCost(ctx context.Context, lc LandingCost) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO landing_costs (grn_id, kind, amount, note, created_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, lc.GRNID, lc.Kind, lc.Amount, lc.Note, lc.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) SumLandingCosts(ctx context.Context, grnID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM landing_costs WHERE grn_id=$1`, grnID).Scan(&sum)
	return sum, err
}

func (r *txRepository) HasFinalization(ctx context.Context, grnID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM purchase_finalizations WHERE grn_id=$1)`, grnID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertFinalization(ctx context.Context, f Finalization) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_finalizations
(grn_id, supplier_id, goods_total, landing_total, final_amount, ledger_entry_id, finalized_by, finalized_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		f.GRNID, f.SupplierID, f.GoodsTotal, f.LandingTotal, f.FinalAmount,
		nullInt(f.LedgerEntryID), nullInt(f.FinalizedBy), f.FinalizedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrAlreadyFinalized
	}
	return id, err
}

func (r *txRepository) Stock() stock.TxRepository {
	return stock.TxAdapter(r.tx)
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.TxAdapter(r.tx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
