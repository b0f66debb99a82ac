// Package billing owns invoices, payments and their allocations. Every
// monetary recompute runs in exact decimals so total, paid, outstanding and
// credit stay consistent to the cent.
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// InvoiceKind distinguishes the commercial document types.
type InvoiceKind string

const (
	KindSales      InvoiceKind = "SALES"
	KindPurchase   InvoiceKind = "PURCHASE"
	KindCreditNote InvoiceKind = "CREDIT_NOTE"
	KindDebitNote  InvoiceKind = "DEBIT_NOTE"
)

// InvoiceStatus is the payment lifecycle state.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "DRAFT"
	StatusIssued        InvoiceStatus = "ISSUED"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
)

// Invoice carries the running payment position. Outstanding and credit are
// both derived from total and paid: outstanding = max(0, total-paid),
// credit = max(0, paid-total). An invoice is PAID exactly when outstanding
// reaches zero; an overpayment is accepted and tracked as credit.
type Invoice struct {
	ID          int64
	Number      string
	Kind        InvoiceKind
	PartyID     int64
	BranchID    int64
	Total       decimal.Decimal
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
	Credit      decimal.Decimal
	Status      InvoiceStatus
	DueAt       time.Time
	IssuedAt    time.Time
	CreatedAt   time.Time
}

// Payment is one received amount, allocated 1:1 to a single invoice.
// Reference carries an external identifier (bank slip, transfer id); Notes is
// free text. Both are optional.
type Payment struct {
	ID        int64
	Number    string
	PartyID   int64
	Amount    decimal.Decimal
	Method    string
	Reference string
	Notes     string
	PaidAt    time.Time
	CreatedBy int64
}

// Allocation binds a payment to an invoice.
type Allocation struct {
	ID        int64
	PaymentID int64
	InvoiceID int64
	Amount    decimal.Decimal
}

// AgingBucket classifies how far past due an invoice is.
type AgingBucket string

const (
	BucketCurrent AgingBucket = "CURRENT"
	Bucket30      AgingBucket = "30DAYS"
	Bucket60      AgingBucket = "60DAYS"
	Bucket90      AgingBucket = "90DAYS"
	BucketOver90  AgingBucket = "OVER90DAYS"
)

// BucketFor maps days overdue to its aging bucket.
func BucketFor(daysOverdue int) AgingBucket {
	switch {
	case daysOverdue <= 0:
		return BucketCurrent
	case daysOverdue <= 30:
		return Bucket30
	case daysOverdue <= 60:
		return Bucket60
	case daysOverdue <= 90:
		return Bucket90
	default:
		return BucketOver90
	}
}

// AgingRow is the per-invoice aging position.
type AgingRow struct {
	InvoiceID   int64
	PartyID     int64
	BranchID    int64
	Outstanding decimal.Decimal
	DueAt       time.Time
	DaysOverdue int
	Bucket      AgingBucket
	UpdatedAt   time.Time
}

// BucketSummary aggregates outstanding amounts per bucket.
type BucketSummary struct {
	Bucket AgingBucket
	Count  int
	Total  decimal.Decimal
}

// CreateInvoiceInput describes a new draft invoice.
type CreateInvoiceInput struct {
	Number   string
	Kind     InvoiceKind
	PartyID  int64
	BranchID int64
	Total    decimal.Decimal
	DueAt    time.Time
	ActorID  int64
}

// Validate rejects malformed invoices.
func (in CreateInvoiceInput) Validate() error {
	switch in.Kind {
	case KindSales, KindPurchase, KindCreditNote, KindDebitNote:
	default:
		return shared.Validationf("billing: unknown invoice kind %q", string(in.Kind))
	}
	if in.PartyID <= 0 {
		return shared.Validationf("billing: party required")
	}
	if in.BranchID <= 0 {
		return shared.Validationf("billing: branch required")
	}
	if !shared.IsMoney(in.Total) || in.Total.IsZero() {
		return shared.Validationf("billing: total must be a positive amount")
	}
	if in.DueAt.IsZero() {
		return shared.Validationf("billing: due date required")
	}
	return nil
}

// RecordPaymentInput describes an incoming payment against one invoice.
type RecordPaymentInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
	Method    string
	Reference string
	Notes     string
	ActorID   int64
}

// Validate rejects malformed payments.
func (in RecordPaymentInput) Validate() error {
	if in.InvoiceID <= 0 {
		return shared.Validationf("billing: invoice required")
	}
	if !shared.IsMoney(in.Amount) || in.Amount.IsZero() {
		return shared.Validationf("billing: payment must be a positive amount")
	}
	return nil
}

var (
	ErrInvoiceNotFound = shared.NotFoundf("billing: invoice not found")
	ErrNotDraft        = shared.Conflictf("billing: invoice is not draft")
	ErrNotPayable      = shared.Conflictf("billing: invoice is not open for payment")
)
