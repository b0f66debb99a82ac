package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists units and reservations in PostgreSQL.
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

// Availability aggregates unit counts for one product at one branch.
func (r *Repository) Availability(ctx context.Context, productID, branchID int64) (Availability, error) {
	avail := Availability{ProductID: productID, BranchID: branchID}
	err := r.pool.QueryRow(ctx, `SELECT
  COUNT(*) FILTER (WHERE status IN ('AVAILABLE','RESERVED')),
  COUNT(*) FILTER (WHERE status='RESERVED'),
  COUNT(*) FILTER (WHERE status='AVAILABLE')
FROM inventory_units WHERE product_id=$1 AND branch_id=$2`, productID, branchID).
		Scan(&avail.Total, &avail.Reserved, &avail.Available)
	if err != nil {
		return Availability{}, err
	}
	return avail, nil
}

// LowStock joins availability against stock policies.
func (r *Repository) LowStock(ctx context.Context) ([]LowStockRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.product_id, p.branch_id,
  COUNT(u.id) FILTER (WHERE u.status='AVAILABLE') AS available, p.reorder_level
FROM stock_policies p
LEFT JOIN inventory_units u ON u.product_id=p.product_id AND u.branch_id=p.branch_id
GROUP BY p.product_id, p.branch_id, p.reorder_level
HAVING COUNT(u.id) FILTER (WHERE u.status='AVAILABLE') <= p.reorder_level
ORDER BY p.branch_id, p.product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LowStockRow
	for rows.Next() {
		var row LowStockRow
		if err := rows.Scan(&row.ProductID, &row.BranchID, &row.Available, &row.ReorderLevel); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetUnit fetches a unit by id.
func (r *Repository) GetUnit(ctx context.Context, unitID int64) (Unit, error) {
	return scanUnit(r.pool.QueryRow(ctx, unitQuery+` WHERE id=$1`, unitID))
}

const unitQuery = `SELECT id, product_id, branch_id, grn_id, serial_no,
landing_cost, branch_cost, retail_price, status, COALESCE(transit_branch_id, 0), created_at
FROM inventory_units`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (Unit, error) {
	var u Unit
	err := row.Scan(&u.ID, &u.ProductID, &u.BranchID, &u.GRNID, &u.SerialNo,
		&u.LandingCost, &u.BranchCost, &u.RetailPrice, &u.Status, &u.TransitBranchID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, ErrUnitNotFound
	}
	if err != nil {
		return Unit{}, err
	}
	return u, nil
}

type txRepository struct {
	tx pgx.Tx
}

// TxAdapter exposes the transactional stock operations over a caller-owned
// pgx transaction, so purchasing and sales compose unit writes with their own.
func TxAdapter(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetUnitForUpdate(ctx context.Context, unitID int64) (Unit, error) {
	return scanUnit(r.tx.QueryRow(ctx, unitQuery+` WHERE id=$1 FOR UPDATE`, unitID))
}

func (r *txRepository) InsertUnit(ctx context.Context, unit Unit) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_units
(product_id, branch_id, grn_id, serial_no, landing_cost, branch_cost, retail_price, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		unit.ProductID, unit.BranchID, nullInt(unit.GRNID), unit.SerialNo,
		unit.LandingCost, unit.BranchCost, unit.RetailPrice, string(unit.Status)).Scan(&id)
	if isUniqueViolation(err) {
		return 0, shared.Conflictf("stock: serial %s already exists", unit.SerialNo)
	}
	return id, err
}

func (r *txRepository) UpdateUnitStatus(ctx context.Context, unitID int64, status UnitStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_units SET status=$2, transit_branch_id=NULL WHERE id=$1`, unitID, string(status))
	return err
}

func (r *txRepository) SetUnitTransit(ctx context.Context, unitID, transitBranchID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_units SET status='IN_TRANSIT', transit_branch_id=$2 WHERE id=$1`,
		unitID, transitBranchID)
	return err
}

func (r *txRepository) LandUnit(ctx context.Context, unitID, branchID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_units
SET status='AVAILABLE', branch_id=$2, transit_branch_id=NULL WHERE id=$1`, unitID, branchID)
	return err
}

func (r *txRepository) InsertReservation(ctx context.Context, res Reservation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_reservations
(unit_id, invoice_id, invoice_kind, branch_id, quantity, status, reserved_by, reserved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		res.UnitID, res.InvoiceID, string(res.InvoiceKind), res.BranchID, res.Quantity, string(res.Status),
		nullInt(res.ReservedBy), res.ReservedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrAlreadyReserved
	}
	return id, err
}

func (r *txRepository) GetReservationForUpdate(ctx context.Context, reservationID int64) (Reservation, error) {
	var res Reservation
	var releasedAt *time.Time
	err := r.tx.QueryRow(ctx, `SELECT id, unit_id, invoice_id, invoice_kind, branch_id, quantity, status,
COALESCE(reserved_by, 0), reserved_at, released_at
FROM stock_reservations WHERE id=$1 FOR UPDATE`, reservationID).
		Scan(&res.ID, &res.UnitID, &res.InvoiceID, &res.InvoiceKind, &res.BranchID, &res.Quantity, &res.Status,
			&res.ReservedBy, &res.ReservedAt, &releasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrReservationGone
	}
	if err != nil {
		return Reservation{}, err
	}
	if releasedAt != nil {
		res.ReleasedAt = *releasedAt
	}
	return res, nil
}

func (r *txRepository) ActiveReservationsForInvoice(ctx context.Context, invoiceID int64) ([]Reservation, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, unit_id, invoice_id, invoice_kind, branch_id, quantity, status,
COALESCE(reserved_by, 0), reserved_at
FROM stock_reservations WHERE invoice_id=$1 AND status='ACTIVE'
ORDER BY id FOR UPDATE`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.UnitID, &res.InvoiceID, &res.InvoiceKind, &res.BranchID, &res.Quantity,
			&res.Status, &res.ReservedBy, &res.ReservedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *txRepository) UpdateReservationStatus(ctx context.Context, reservationID int64, status ReservationStatus, at time.Time) error {
	if status == ReservationReleased {
		_, err := r.tx.Exec(ctx, `UPDATE stock_reservations SET status=$2, released_at=$3 WHERE id=$1`,
			reservationID, string(status), at)
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE stock_reservations SET status=$2 WHERE id=$1`, reservationID, string(status))
	return err
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
