package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/profit"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItemsForInvoice(ctx context.Context, invoiceID int64) ([]SaleItem, error)
}

// TxRepository exposes the transactional operations. Stock and Ledger hand
// out adapters over the same underlying transaction.
type TxRepository interface {
	HasItemsForInvoice(ctx context.Context, invoiceID int64) (bool, error)
	InsertSaleItem(ctx context.Context, item SaleItem) (int64, error)
	Stock() stock.TxRepository
	Ledger() ledger.TxRepository
}

// AuditPort records sale events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts sales.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostSale consumes the invoice's active reservations, snapshots each unit
// with its profit split and credits the branch ledger with the sale total.
// Any failure rolls the whole posting back.
func (s *Service) PostSale(ctx context.Context, input PostSaleInput) ([]SaleItem, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	soldAt := s.now()
	var items []SaleItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := tx.HasItemsForInvoice(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if posted {
			return ErrAlreadyPosted
		}
		units, err := stock.ConsumeForInvoiceTx(ctx, tx.Stock(), input.InvoiceID, soldAt)
		if err != nil {
			return err
		}
		branchID := units[0].BranchID
		total := decimal.Zero
		items = make([]SaleItem, 0, len(units))
		for _, unit := range units {
			if unit.BranchID != branchID {
				return ErrMixedBranches
			}
			retail, ok := input.Prices[unit.ID]
			if !ok {
				return ErrMissingPrice
			}
			retail = shared.Round2(retail)
			split := profit.ComputeSplit(retail, unit.LandingCost, unit.BranchCost)
			item := SaleItem{
				InvoiceID:         input.InvoiceID,
				UnitID:            unit.ID,
				ProductID:         unit.ProductID,
				BranchID:          unit.BranchID,
				RetailPrice:       retail,
				LandingCost:       unit.LandingCost,
				BranchCost:        unit.BranchCost,
				Profit:            split.Profit,
				InvestorShare:     split.InvestorShare,
				MasterShare:       split.MasterShare,
				CashDueHeadOffice: split.CashDueHeadOffice,
				SoldAt:            soldAt,
			}
			id, err := tx.InsertSaleItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = id
			items = append(items, item)
			total = total.Add(retail)
		}
		_, err = ledger.AppendTx(ctx, tx.Ledger(), ledger.AppendInput{
			Kind:        ledger.SubjectBranch,
			SubjectID:   branchID,
			Credit:      shared.Round2(total),
			Description: fmt.Sprintf("sale posting for invoice %d", input.InvoiceID),
			Reference:   fmt.Sprintf("INV:%d", input.InvoiceID),
			EntryAt:     soldAt,
		}, soldAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "sales.post",
			Entity:   "invoice",
			EntityID: fmt.Sprintf("%d", input.InvoiceID),
			Meta:     map[string]any{"units": len(items)},
			At:       soldAt,
		})
	}
	return items, nil
}

// ListItemsForInvoice returns the posted snapshot for an invoice.
func (s *Service) ListItemsForInvoice(ctx context.Context, invoiceID int64) ([]SaleItem, error) {
	if invoiceID <= 0 {
		return nil, shared.Validationf("sales: invoice required")
	}
	return s.repo.ListItemsForInvoice(ctx, invoiceID)
}
