// Package alerts raises operational warnings out of the stock and billing
// state: reorder levels breached and invoices past due. Scans run nightly from
// the worker; each open condition produces at most one open alert until it is
// acknowledged.
package alerts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Kind classifies what an alert is about.
type Kind string

const (
	KindLowStock       Kind = "LOW_STOCK"
	KindOverdueInvoice Kind = "OVERDUE_INVOICE"
)

// Severity orders alerts for triage.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one raised condition. SubjectID is the product for low stock and
// the invoice for overdue alerts. At most one open alert exists per
// (kind, branch, subject); a repeat scan refreshes nothing until the open one
// is acknowledged.
type Alert struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	BranchID  int64     `json:"branch_id"`
	SubjectID int64     `json:"subject_id"`
	Message   string    `json:"message"`
	RaisedAt  time.Time `json:"raised_at"`
	AckedAt   time.Time `json:"acked_at,omitzero"`
	AckedBy   int64     `json:"acked_by,omitempty"`
}

// Open reports whether the alert still needs attention.
func (a Alert) Open() bool { return a.AckedAt.IsZero() }

// OverdueInvoice is the billing-side input to the overdue scan.
type OverdueInvoice struct {
	InvoiceID   int64
	PartyID     int64
	BranchID    int64
	Outstanding decimal.Decimal
	DueAt       time.Time
}

var (
	ErrAlertNotFound = shared.NotFoundf("alerts: alert not found")
	ErrAlreadyAcked  = shared.Conflictf("alerts: alert already acknowledged")
)
