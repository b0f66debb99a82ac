// Package reporting is the read model over posted sales, invoices and ledger
// entries. Queries are pure reads; the only write is the daily snapshot the
// worker materialises overnight.
package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySalesRow aggregates one branch's sales for one day.
type DailySalesRow struct {
	BranchID int64           `json:"branch_id"`
	Date     string          `json:"date"`
	Units    int             `json:"units"`
	Revenue  decimal.Decimal `json:"revenue"`
	Profit   decimal.Decimal `json:"profit"`
}

// MonthlyRevenueRow aggregates one branch's revenue for one month.
type MonthlyRevenueRow struct {
	Period   string          `json:"period"`
	BranchID int64           `json:"branch_id"`
	Units    int             `json:"units"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// ProfitBreakdown sums the split components over a date range.
type ProfitBreakdown struct {
	From              string          `json:"from"`
	To                string          `json:"to"`
	Profit            decimal.Decimal `json:"profit"`
	InvestorShare     decimal.Decimal `json:"investor_share"`
	MasterShare       decimal.Decimal `json:"master_share"`
	CashDueHeadOffice decimal.Decimal `json:"cash_due_hq"`
}

// SupplierPayable is a supplier's latest ledger balance.
type SupplierPayable struct {
	SupplierID int64           `json:"supplier_id"`
	Balance    decimal.Decimal `json:"balance"`
}

// BranchOutstanding sums open invoice balances per branch.
type BranchOutstanding struct {
	BranchID    int64           `json:"branch_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// AgingSummaryRow mirrors the billing aging buckets for export.
type AgingSummaryRow struct {
	Bucket string          `json:"bucket"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// DailySnapshot is the materialised per-branch day aggregate.
type DailySnapshot struct {
	Date              time.Time
	BranchID          int64
	Units             int
	Revenue           decimal.Decimal
	Profit            decimal.Decimal
	CashDueHeadOffice decimal.Decimal
}
