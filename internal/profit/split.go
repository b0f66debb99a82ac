// Package profit computes per-sale profit splits and the periodic investor
// distribution. The split arithmetic is pure and exact: investor and master
// shares always sum back to the profit to the cent.
package profit

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// investorRatio is the investor's share of per-sale profit.
var investorRatio = decimal.RequireFromString("0.70")

// Split is the per-sale money breakdown frozen into the sale item.
type Split struct {
	Profit            decimal.Decimal
	InvestorShare     decimal.Decimal
	MasterShare       decimal.Decimal
	CashDueHeadOffice decimal.Decimal
}

// ComputeSplit derives the split from the frozen unit snapshot. The master
// share is the remainder after rounding the investor share, so
// investor + master equals profit exactly.
func ComputeSplit(retail, landingCost, branchCost decimal.Decimal) Split {
	profit := shared.Round2(retail.Sub(landingCost))
	investor := shared.Round2(profit.Mul(investorRatio))
	return Split{
		Profit:            profit,
		InvestorShare:     investor,
		MasterShare:       profit.Sub(investor),
		CashDueHeadOffice: shared.Round2(retail.Sub(branchCost)),
	}
}
