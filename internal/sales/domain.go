// Package sales posts sales against reserved stock. A sale consumes the
// invoice's reservations, freezes each unit's cost snapshot with its profit
// split, and credits the branch ledger, all in one transaction.
package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SaleItem is the immutable record of one sold unit. Costs and split amounts
// are frozen at posting time; later cost or price changes never touch it.
type SaleItem struct {
	ID                int64
	InvoiceID         int64
	UnitID            int64
	ProductID         int64
	BranchID          int64
	RetailPrice       decimal.Decimal
	LandingCost       decimal.Decimal
	BranchCost        decimal.Decimal
	Profit            decimal.Decimal
	InvestorShare     decimal.Decimal
	MasterShare       decimal.Decimal
	CashDueHeadOffice decimal.Decimal
	SoldAt            time.Time
}

// PostSaleInput describes a sale posting. Prices maps unit id to the retail
// price realised for that unit.
type PostSaleInput struct {
	InvoiceID int64
	Prices    map[int64]decimal.Decimal
	ActorID   int64
}

// Validate rejects malformed postings.
func (in PostSaleInput) Validate() error {
	if in.InvoiceID <= 0 {
		return shared.Validationf("sales: invoice required")
	}
	if len(in.Prices) == 0 {
		return shared.Validationf("sales: at least one unit price required")
	}
	for unitID, price := range in.Prices {
		if unitID <= 0 {
			return shared.Validationf("sales: invalid unit id")
		}
		if !shared.IsMoney(price) || price.IsZero() {
			return shared.Validationf("sales: retail price for unit %d must be a positive amount", unitID)
		}
	}
	return nil
}

var (
	ErrMissingPrice  = shared.Validationf("sales: retail price missing for a reserved unit")
	ErrMixedBranches = shared.Conflictf("sales: reserved units span multiple branches")
	ErrAlreadyPosted = shared.Conflictf("sales: invoice already posted")
)
