// Package stock tracks serialized inventory units per branch and the
// reservations that hold them for pending invoices. A unit is reserved,
// released or consumed as a whole; stock never goes negative because a unit
// either exists in a sellable state or it does not.
package stock

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// UnitStatus is the lifecycle state of a serialized unit.
type UnitStatus string

const (
	UnitAvailable UnitStatus = "AVAILABLE"
	UnitReserved  UnitStatus = "RESERVED"
	UnitSold      UnitStatus = "SOLD"
	UnitInTransit UnitStatus = "IN_TRANSIT"
	UnitDamaged   UnitStatus = "DAMAGED"
)

// Unit is one physical, serial-numbered item at a branch. Landing cost and
// branch cost are frozen at receipt and copied into the sale snapshot.
type Unit struct {
	ID              int64
	ProductID       int64
	BranchID        int64
	GRNID           int64
	SerialNo        string
	LandingCost     decimal.Decimal
	BranchCost      decimal.Decimal
	RetailPrice     decimal.Decimal
	Status          UnitStatus
	TransitBranchID int64
	CreatedAt       time.Time
}

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationConsumed ReservationStatus = "CONSUMED"
)

// InvoiceKind names the demand a reservation serves.
type InvoiceKind string

const (
	InvoiceSales    InvoiceKind = "SALES"
	InvoiceTransfer InvoiceKind = "TRANSFER"
	InvoicePurchase InvoiceKind = "PURCHASE"
)

// Reservation holds one unit for one invoice. At most one ACTIVE reservation
// may exist per unit, enforced by a partial unique index.
type Reservation struct {
	ID          int64
	UnitID      int64
	InvoiceID   int64
	InvoiceKind InvoiceKind
	BranchID    int64
	Quantity    int
	Status      ReservationStatus
	ReservedBy  int64
	ReservedAt  time.Time
	ReleasedAt  time.Time
}

// ReserveInput describes a reservation request. Quantity is always one unit;
// the field exists for wire compatibility and zero defaults to one. An empty
// invoice kind defaults to SALES.
type ReserveInput struct {
	UnitID      int64
	InvoiceID   int64
	InvoiceKind InvoiceKind
	ActorID     int64
	Quantity    int
}

// Validate rejects malformed reservation requests.
func (in ReserveInput) Validate() error {
	if in.UnitID <= 0 {
		return shared.Validationf("stock: unit id required")
	}
	if in.InvoiceID <= 0 {
		return shared.Validationf("stock: invoice id required")
	}
	switch in.InvoiceKind {
	case "", InvoiceSales, InvoiceTransfer, InvoicePurchase:
	default:
		return shared.Validationf("stock: unknown invoice kind %q", string(in.InvoiceKind))
	}
	if in.Quantity != 0 && in.Quantity != 1 {
		return shared.Validationf("stock: reservations cover exactly one unit")
	}
	return nil
}

// Availability is the per-product, per-branch stock position. Available is
// clamped at zero.
type Availability struct {
	ProductID int64
	BranchID  int64
	Total     int
	Reserved  int
	Available int
}

// LowStockRow is one product/branch pair at or below its reorder level.
type LowStockRow struct {
	ProductID    int64
	BranchID     int64
	Available    int
	ReorderLevel int
}

var (
	ErrUnitNotFound      = shared.NotFoundf("stock: unit not found")
	ErrUnitNotAvailable  = shared.Conflictf("stock: unit is not available")
	ErrAlreadyReserved   = shared.Conflictf("stock: unit already has an active reservation")
	ErrInsufficientStock = shared.Conflictf("stock: insufficient available units")
	ErrSameBranch        = shared.Conflictf("stock: transfer destination equals current branch")
	ErrNotInTransit      = shared.Conflictf("stock: unit is not in transit")
	ErrReservationGone   = shared.NotFoundf("stock: reservation not found")
)
