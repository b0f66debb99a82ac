package purchasing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, poID int64) (PurchaseOrder, error)
	ListPOItems(ctx context.Context, poID int64) ([]POItem, error)
	GetGRN(ctx context.Context, grnID int64) (GoodsReceivedNote, error)
	ListLandingCosts(ctx context.Context, grnID int64) ([]LandingCost, error)
}

// TxRepository exposes the transactional operations. Stock and Ledger hand
// out adapters over the same underlying transaction so unit creation and the
// supplier debit commit with the purchasing writes.
type TxRepository interface {
	InsertPO(ctx context.Context, po PurchaseOrder) (int64, error)
	GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, error)
	UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error
	UpdatePOTotal(ctx context.Context, poID int64, total decimal.Decimal) error
	InsertPOItem(ctx context.Context, item POItem) (int64, error)
	ListPOItems(ctx context.Context, poID int64) ([]POItem, error)
	InsertGRN(ctx context.Context, grn GoodsReceivedNote) (int64, error)
	GetGRNForUpdate(ctx context.Context, grnID int64) (GoodsReceivedNote, error)
	UpdateGRNStatus(ctx context.Context, grnID int64, status GRNStatus, receivedAt time.Time) error
	InsertGRNItem(ctx context.Context, item GRNItem) error
	ListGRNItems(ctx context.Context, grnID int64) ([]GRNItem, error)
	InsertLandingCost(ctx context.Context, lc LandingCost) (int64, error)
	SumLandingCosts(ctx context.Context, grnID int64) (decimal.Decimal, error)
	HasFinalization(ctx context.Context, grnID int64) (bool, error)
	InsertFinalization(ctx context.Context, f Finalization) (int64, error)
	Stock() stock.TxRepository
	Ledger() ledger.TxRepository
}

// AuditPort records purchasing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the purchase workflow.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	now         func() time.Time
}

// NewService constructs the purchasing service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreatePurchaseOrder opens a draft order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if err := input.Validate(); err != nil {
		return PurchaseOrder{}, err
	}
	number := input.Number
	if number == "" {
		number = fmt.Sprintf("PO-%d", s.now().UnixNano())
	}
	po := PurchaseOrder{
		Number:     number,
		SupplierID: input.SupplierID,
		BranchID:   input.BranchID,
		Status:     POStatusDraft,
		Total:      decimal.Zero,
		Note:       input.Note,
		CreatedBy:  input.ActorID,
		CreatedAt:  s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.record(ctx, input.ActorID, "purchasing.po_create", "purchase_order", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// AddItem appends a line to a draft order and recomputes the total.
func (s *Service) AddItem(ctx context.Context, poID int64, input ItemInput) (POItem, error) {
	if err := input.Validate(); err != nil {
		return POItem{}, err
	}
	item := POItem{
		POID:      poID,
		ProductID: input.ProductID,
		Qty:       input.Qty,
		UnitPrice: shared.Round2(input.UnitPrice),
	}
	item.LineTotal = shared.Round2(item.UnitPrice.Mul(decimal.NewFromInt(int64(input.Qty))))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return ErrNotDraft
		}
		id, err := tx.InsertPOItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		items, err := tx.ListPOItems(ctx, poID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, line := range items {
			total = total.Add(line.LineTotal)
		}
		return tx.UpdatePOTotal(ctx, poID, shared.Round2(total))
	})
	if err != nil {
		return POItem{}, err
	}
	return item, nil
}

// Submit moves a draft order with at least one line to submitted.
func (s *Service) Submit(ctx context.Context, poID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return ErrNotDraft
		}
		items, err := tx.ListPOItems(ctx, poID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrNoItems
		}
		return tx.UpdatePOStatus(ctx, poID, POStatusSubmitted)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "purchasing.po_submit", "purchase_order", poID, nil)
	return nil
}

// Approve moves a submitted order to approved.
func (s *Service) Approve(ctx context.Context, poID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusSubmitted {
			return ErrNotSubmitted
		}
		return tx.UpdatePOStatus(ctx, poID, POStatusApproved)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "purchasing.po_approve", "purchase_order", poID, nil)
	return nil
}

// CreateGRN opens a pending receipt against an approved order, copying the
// order lines as the expected receipt.
func (s *Service) CreateGRN(ctx context.Context, input CreateGRNInput) (GoodsReceivedNote, error) {
	if input.POID <= 0 {
		return GoodsReceivedNote{}, shared.Validationf("purchasing: purchase order required")
	}
	number := input.Number
	if number == "" {
		number = fmt.Sprintf("GRN-%d", s.now().UnixNano())
	}
	var grn GoodsReceivedNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, input.POID)
		if err != nil {
			return err
		}
		if po.Status != POStatusApproved {
			return ErrNotApproved
		}
		items, err := tx.ListPOItems(ctx, input.POID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrNoItems
		}
		grn = GoodsReceivedNote{
			Number:     number,
			POID:       po.ID,
			SupplierID: po.SupplierID,
			BranchID:   po.BranchID,
			Status:     GRNStatusPending,
			CreatedAt:  s.now(),
		}
		id, err := tx.InsertGRN(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = id
		for _, line := range items {
			item := GRNItem{GRNID: id, ProductID: line.ProductID, Qty: line.Qty, UnitPrice: line.UnitPrice}
			if err := tx.InsertGRNItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return GoodsReceivedNote{}, err
	}
	s.record(ctx, input.ActorID, "purchasing.grn_create", "grn", grn.ID, map[string]any{"number": grn.Number})
	return grn, nil
}

// ReceiveGRN marks a pending receipt received and creates one inventory unit
// per unit of quantity. Unit landing and branch cost start at the frozen line
// price; finalization may add landing costs later without touching units.
func (s *Service) ReceiveGRN(ctx context.Context, grnID, actorID int64) error {
	if grnID <= 0 {
		return shared.Validationf("purchasing: grn required")
	}
	grnRef, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("GRN:%s", grnRef.Number)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "purchasing"); err != nil {
			return err
		}
		insertedKey = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.GetGRNForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusPending {
			return ErrGRNNotPending
		}
		items, err := tx.ListGRNItems(ctx, grnID)
		if err != nil {
			return err
		}
		seq := 0
		for _, item := range items {
			for i := 0; i < item.Qty; i++ {
				seq++
				unit := stock.Unit{
					ProductID:   item.ProductID,
					BranchID:    grn.BranchID,
					GRNID:       grnID,
					SerialNo:    fmt.Sprintf("%s-%04d", grn.Number, seq),
					LandingCost: item.UnitPrice,
					BranchCost:  item.UnitPrice,
					RetailPrice: decimal.Zero,
					Status:      stock.UnitAvailable,
				}
				if _, err := stock.CreateUnitTx(ctx, tx.Stock(), unit); err != nil {
					return err
				}
			}
		}
		return tx.UpdateGRNStatus(ctx, grnID, GRNStatusReceived, s.now())
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}
	s.record(ctx, actorID, "purchasing.grn_receive", "grn", grnID, map[string]any{"number": grnRef.Number})
	return nil
}

// AddLandingCost attaches a cost to a received, not yet finalized GRN.
func (s *Service) AddLandingCost(ctx context.Context, input LandingCostInput) (LandingCost, error) {
	if err := input.Validate(); err != nil {
		return LandingCost{}, err
	}
	lc := LandingCost{
		GRNID:     input.GRNID,
		Kind:      input.Kind,
		Amount:    shared.Round2(input.Amount),
		Note:      input.Note,
		CreatedAt: s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.GetGRNForUpdate(ctx, input.GRNID)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusReceived {
			return ErrGRNNotReceived
		}
		finalized, err := tx.HasFinalization(ctx, input.GRNID)
		if err != nil {
			return err
		}
		if finalized {
			return ErrAlreadyFinalized
		}
		id, err := tx.InsertLandingCost(ctx, lc)
		if err != nil {
			return err
		}
		lc.ID = id
		return nil
	})
	if err != nil {
		return LandingCost{}, err
	}
	return lc, nil
}

// FinalizePurchase closes the purchase in one transaction: it sums goods and
// landing costs, debits the supplier ledger and writes the finalization row.
// The unique GRN constraint makes a second call a conflict no matter how the
// race interleaves.
func (s *Service) FinalizePurchase(ctx context.Context, grnID, actorID int64) (Finalization, error) {
	if grnID <= 0 {
		return Finalization{}, shared.Validationf("purchasing: grn required")
	}
	var final Finalization
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.GetGRNForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if grn.Status != GRNStatusReceived {
			return ErrGRNNotReceived
		}
		finalized, err := tx.HasFinalization(ctx, grnID)
		if err != nil {
			return err
		}
		if finalized {
			return ErrAlreadyFinalized
		}
		items, err := tx.ListGRNItems(ctx, grnID)
		if err != nil {
			return err
		}
		goods := decimal.Zero
		for _, item := range items {
			goods = goods.Add(shared.Round2(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty)))))
		}
		landing, err := tx.SumLandingCosts(ctx, grnID)
		if err != nil {
			return err
		}
		amount := shared.Round2(goods.Add(landing))
		entry, err := ledger.AppendTx(ctx, tx.Ledger(), ledger.AppendInput{
			Kind:        ledger.SubjectSupplier,
			SubjectID:   grn.SupplierID,
			Debit:       amount,
			Description: fmt.Sprintf("purchase finalization %s", grn.Number),
			Reference:   fmt.Sprintf("GRN:%s", grn.Number),
		}, s.now())
		if err != nil {
			return err
		}
		final = Finalization{
			GRNID:         grnID,
			SupplierID:    grn.SupplierID,
			GoodsTotal:    shared.Round2(goods),
			LandingTotal:  shared.Round2(landing),
			FinalAmount:   amount,
			LedgerEntryID: entry.ID,
			FinalizedBy:   actorID,
			FinalizedAt:   s.now(),
		}
		id, err := tx.InsertFinalization(ctx, final)
		if err != nil {
			return err
		}
		final.ID = id
		return nil
	})
	if err != nil {
		return Finalization{}, err
	}
	s.record(ctx, actorID, "purchasing.finalize", "grn", grnID, map[string]any{
		"final_amount": final.FinalAmount.String(),
	})
	return final, nil
}

// GetPO fetches an order.
func (s *Service) GetPO(ctx context.Context, poID int64) (PurchaseOrder, error) {
	if poID <= 0 {
		return PurchaseOrder{}, shared.Validationf("purchasing: purchase order required")
	}
	return s.repo.GetPO(ctx, poID)
}

// ListPOItems lists order lines.
func (s *Service) ListPOItems(ctx context.Context, poID int64) ([]POItem, error) {
	return s.repo.ListPOItems(ctx, poID)
}

// GetGRN fetches a receipt.
func (s *Service) GetGRN(ctx context.Context, grnID int64) (GoodsReceivedNote, error) {
	if grnID <= 0 {
		return GoodsReceivedNote{}, shared.Validationf("purchasing: grn required")
	}
	return s.repo.GetGRN(ctx, grnID)
}

// ListLandingCosts lists costs attached to a receipt.
func (s *Service) ListLandingCosts(ctx context.Context, grnID int64) ([]LandingCost, error) {
	return s.repo.ListLandingCosts(ctx, grnID)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
