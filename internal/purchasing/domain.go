// Package purchasing drives the purchase order / goods receipt / finalization
// workflow. Finalization is the single point where supplier debt enters the
// ledger, and it happens at most once per goods received note.
package purchasing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusSubmitted POStatus = "SUBMITTED"
	POStatusApproved  POStatus = "APPROVED"
)

// Goods received note statuses.
type GRNStatus string

const (
	GRNStatusPending  GRNStatus = "PENDING"
	GRNStatusReceived GRNStatus = "RECEIVED"
)

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID         int64
	Number     string
	SupplierID int64
	BranchID   int64
	Status     POStatus
	Total      decimal.Decimal
	Note       string
	CreatedBy  int64
	CreatedAt  time.Time
}

// POItem is one ordered line.
type POItem struct {
	ID        int64
	POID      int64
	ProductID int64
	Qty       int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// GoodsReceivedNote records physical receipt against an approved order.
type GoodsReceivedNote struct {
	ID         int64
	Number     string
	POID       int64
	SupplierID int64
	BranchID   int64
	Status     GRNStatus
	ReceivedAt time.Time
	CreatedAt  time.Time
}

// GRNItem describes received goods; unit price is frozen from the PO line.
type GRNItem struct {
	ID        int64
	GRNID     int64
	ProductID int64
	Qty       int
	UnitPrice decimal.Decimal
}

// LandingCost is an extra cost attached to a received GRN before
// finalization (freight, duty, handling).
type LandingCost struct {
	ID        int64
	GRNID     int64
	Kind      string
	Amount    decimal.Decimal
	Note      string
	CreatedAt time.Time
}

// Finalization is the terminal record of a purchase. One per GRN.
type Finalization struct {
	ID            int64
	GRNID         int64
	SupplierID    int64
	GoodsTotal    decimal.Decimal
	LandingTotal  decimal.Decimal
	FinalAmount   decimal.Decimal
	LedgerEntryID int64
	FinalizedBy   int64
	FinalizedAt   time.Time
}

// CreatePOInput describes a new draft order.
type CreatePOInput struct {
	Number     string
	SupplierID int64
	BranchID   int64
	Note       string
	ActorID    int64
}

// Validate rejects malformed orders.
func (in CreatePOInput) Validate() error {
	if in.SupplierID <= 0 {
		return shared.Validationf("purchasing: supplier required")
	}
	if in.BranchID <= 0 {
		return shared.Validationf("purchasing: branch required")
	}
	return nil
}

// ItemInput is one line added to a draft order.
type ItemInput struct {
	ProductID int64
	Qty       int
	UnitPrice decimal.Decimal
}

// Validate rejects malformed lines.
func (in ItemInput) Validate() error {
	if in.ProductID <= 0 {
		return shared.Validationf("purchasing: product required")
	}
	if in.Qty <= 0 {
		return shared.Validationf("purchasing: quantity must be positive")
	}
	if !shared.IsMoney(in.UnitPrice) || in.UnitPrice.IsZero() {
		return shared.Validationf("purchasing: unit price must be a positive amount")
	}
	return nil
}

// CreateGRNInput opens a pending receipt against an approved order.
type CreateGRNInput struct {
	Number  string
	POID    int64
	ActorID int64
}

// LandingCostInput attaches a cost to a received GRN.
type LandingCostInput struct {
	GRNID   int64
	Kind    string
	Amount  decimal.Decimal
	Note    string
	ActorID int64
}

// Validate rejects malformed landing costs.
func (in LandingCostInput) Validate() error {
	if in.GRNID <= 0 {
		return shared.Validationf("purchasing: grn required")
	}
	if in.Kind == "" {
		return shared.Validationf("purchasing: landing cost kind required")
	}
	if !shared.IsMoney(in.Amount) || in.Amount.IsZero() {
		return shared.Validationf("purchasing: landing cost must be a positive amount")
	}
	return nil
}

var (
	ErrPONotFound       = shared.NotFoundf("purchasing: purchase order not found")
	ErrGRNNotFound      = shared.NotFoundf("purchasing: goods received note not found")
	ErrNotDraft         = shared.Conflictf("purchasing: purchase order is not draft")
	ErrNotSubmitted     = shared.Conflictf("purchasing: purchase order is not submitted")
	ErrNotApproved      = shared.Conflictf("purchasing: purchase order is not approved")
	ErrNoItems          = shared.Conflictf("purchasing: purchase order has no items")
	ErrGRNNotPending    = shared.Conflictf("purchasing: goods received note is not pending")
	ErrGRNNotReceived   = shared.Conflictf("purchasing: goods received note is not received")
	ErrAlreadyFinalized = shared.Conflictf("purchasing: purchase already finalized")
)
