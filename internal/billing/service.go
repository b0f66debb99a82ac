package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error)
	Outstanding(ctx context.Context, partyID int64) (decimal.Decimal, error)
	AgingSummary(ctx context.Context, partyID int64) ([]BucketSummary, error)
	ListOpenAging(ctx context.Context) ([]AgingRow, error)
}

// TxRepository exposes the transactional operations.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (Invoice, error)
	UpdateInvoicePosition(ctx context.Context, inv Invoice) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	InsertAllocation(ctx context.Context, a Allocation) (int64, error)
	UpsertAgingRow(ctx context.Context, row AgingRow) error
}

// AuditPort records billing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates invoicing and payment allocation.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the billing service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInvoice opens a draft invoice.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if err := input.Validate(); err != nil {
		return Invoice{}, err
	}
	number := input.Number
	if number == "" {
		number = fmt.Sprintf("INV-%d", s.now().UnixNano())
	}
	total := shared.Round2(input.Total)
	inv := Invoice{
		Number:      number,
		Kind:        input.Kind,
		PartyID:     input.PartyID,
		BranchID:    input.BranchID,
		Total:       total,
		Paid:        decimal.Zero,
		Outstanding: total,
		Credit:      decimal.Zero,
		Status:      StatusDraft,
		DueAt:       input.DueAt,
		CreatedAt:   s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, input.ActorID, "billing.invoice_create", inv.ID, map[string]any{"number": inv.Number})
	return inv, nil
}

// Issue moves a draft invoice to issued, stamps the issue time and seeds the
// aging row. Issuing anything but a draft is a conflict.
func (s *Service) Issue(ctx context.Context, invoiceID, actorID int64) (Invoice, error) {
	if invoiceID <= 0 {
		return Invoice{}, shared.Validationf("billing: invoice required")
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return ErrNotDraft
		}
		inv.Status = StatusIssued
		inv.IssuedAt = s.now()
		if err := tx.UpdateInvoicePosition(ctx, inv); err != nil {
			return err
		}
		return tx.UpsertAgingRow(ctx, s.agingRow(inv))
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actorID, "billing.invoice_issue", inv.ID, nil)
	return inv, nil
}

// RecordPayment books a payment with its single allocation and recomputes the
// invoice position in one transaction. Overpayment is accepted; the surplus
// is tracked as credit and the invoice is PAID because nothing remains
// outstanding.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (Invoice, Payment, error) {
	if err := input.Validate(); err != nil {
		return Invoice{}, Payment{}, err
	}
	amount := shared.Round2(input.Amount)
	var (
		inv     Invoice
		payment Payment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusIssued && inv.Status != StatusPartiallyPaid {
			return ErrNotPayable
		}
		payment = Payment{
			Number:    fmt.Sprintf("PAY-%d", s.now().UnixNano()),
			PartyID:   inv.PartyID,
			Amount:    amount,
			Method:    input.Method,
			Reference: input.Reference,
			Notes:     input.Notes,
			PaidAt:    s.now(),
			CreatedBy: input.ActorID,
		}
		paymentID, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = paymentID
		allocation := Allocation{PaymentID: paymentID, InvoiceID: inv.ID, Amount: amount}
		if _, err := tx.InsertAllocation(ctx, allocation); err != nil {
			return err
		}
		inv.Paid = shared.Round2(inv.Paid.Add(amount))
		inv.Outstanding = shared.FloorZero(shared.Round2(inv.Total.Sub(inv.Paid)))
		inv.Credit = shared.FloorZero(shared.Round2(inv.Paid.Sub(inv.Total)))
		if inv.Outstanding.IsZero() {
			inv.Status = StatusPaid
		} else {
			inv.Status = StatusPartiallyPaid
		}
		if err := tx.UpdateInvoicePosition(ctx, inv); err != nil {
			return err
		}
		return tx.UpsertAgingRow(ctx, s.agingRow(inv))
	})
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	s.record(ctx, input.ActorID, "billing.payment", inv.ID, map[string]any{
		"payment_id":  payment.ID,
		"amount":      amount.String(),
		"outstanding": inv.Outstanding.String(),
		"credit":      inv.Credit.String(),
	})
	return inv, payment, nil
}

// UpdateAging recomputes days overdue and bucket for every open invoice as of
// the given day. The worker calls it daily.
func (s *Service) UpdateAging(ctx context.Context, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	rows, err := s.repo.ListOpenAging(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, row := range rows {
		row.DaysOverdue = daysOverdue(row.DueAt, asOf)
		row.Bucket = BucketFor(row.DaysOverdue)
		row.UpdatedAt = asOf
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpsertAgingRow(ctx, row)
		})
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// UpdateInvoiceAging recomputes the aging row for a single invoice from its
// current position, for on-demand refresh between nightly runs.
func (s *Service) UpdateInvoiceAging(ctx context.Context, invoiceID int64) (AgingRow, error) {
	if invoiceID <= 0 {
		return AgingRow{}, shared.Validationf("billing: invoice required")
	}
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return AgingRow{}, err
	}
	row := s.agingRow(inv)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertAgingRow(ctx, row)
	})
	if err != nil {
		return AgingRow{}, err
	}
	return row, nil
}

// GetInvoice fetches an invoice.
func (s *Service) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error) {
	if invoiceID <= 0 {
		return Invoice{}, shared.Validationf("billing: invoice required")
	}
	return s.repo.GetInvoice(ctx, invoiceID)
}

// Outstanding sums what a party still owes across open invoices.
func (s *Service) Outstanding(ctx context.Context, partyID int64) (decimal.Decimal, error) {
	if partyID <= 0 {
		return decimal.Zero, shared.Validationf("billing: party required")
	}
	return s.repo.Outstanding(ctx, partyID)
}

// AgingSummary groups open invoices into buckets, optionally for one party
// (zero means all parties).
func (s *Service) AgingSummary(ctx context.Context, partyID int64) ([]BucketSummary, error) {
	return s.repo.AgingSummary(ctx, partyID)
}

func (s *Service) agingRow(inv Invoice) AgingRow {
	days := daysOverdue(inv.DueAt, s.now())
	return AgingRow{
		InvoiceID:   inv.ID,
		PartyID:     inv.PartyID,
		BranchID:    inv.BranchID,
		Outstanding: inv.Outstanding,
		DueAt:       inv.DueAt,
		DaysOverdue: days,
		Bucket:      BucketFor(days),
		UpdatedAt:   s.now(),
	}
}

func daysOverdue(due, asOf time.Time) int {
	days := int(asOf.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
