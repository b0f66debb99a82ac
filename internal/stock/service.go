package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Availability(ctx context.Context, productID, branchID int64) (Availability, error)
	LowStock(ctx context.Context) ([]LowStockRow, error)
	GetUnit(ctx context.Context, unitID int64) (Unit, error)
}

// TxRepository exposes the transactional operations. GetUnitForUpdate
// row-locks the unit so the verify-then-flip sequence cannot race a
// concurrent reservation on the same unit.
type TxRepository interface {
	GetUnitForUpdate(ctx context.Context, unitID int64) (Unit, error)
	InsertUnit(ctx context.Context, unit Unit) (int64, error)
	UpdateUnitStatus(ctx context.Context, unitID int64, status UnitStatus) error
	SetUnitTransit(ctx context.Context, unitID, transitBranchID int64) error
	LandUnit(ctx context.Context, unitID, branchID int64) error
	InsertReservation(ctx context.Context, res Reservation) (int64, error)
	GetReservationForUpdate(ctx context.Context, reservationID int64) (Reservation, error)
	ActiveReservationsForInvoice(ctx context.Context, invoiceID int64) ([]Reservation, error)
	UpdateReservationStatus(ctx context.Context, reservationID int64, status ReservationStatus, at time.Time) error
}

// AuditPort records stock events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates unit and reservation state changes.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the stock service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Availability returns the stock position with available clamped at zero.
func (s *Service) Availability(ctx context.Context, productID, branchID int64) (Availability, error) {
	if productID <= 0 || branchID <= 0 {
		return Availability{}, shared.Validationf("stock: product and branch required")
	}
	avail, err := s.repo.Availability(ctx, productID, branchID)
	if err != nil {
		return Availability{}, err
	}
	if avail.Available < 0 {
		avail.Available = 0
	}
	return avail, nil
}

// CheckSufficient verifies at least qty units are available.
func (s *Service) CheckSufficient(ctx context.Context, productID, branchID int64, qty int) error {
	if qty <= 0 {
		return shared.Validationf("stock: quantity must be positive")
	}
	avail, err := s.Availability(ctx, productID, branchID)
	if err != nil {
		return err
	}
	if avail.Available < qty {
		return ErrInsufficientStock
	}
	return nil
}

// Reserve holds one unit for an invoice. The unit is row-locked, verified
// AVAILABLE and flipped to RESERVED in the same transaction as the
// reservation insert; a concurrent duplicate surfaces as ErrAlreadyReserved.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	if err := input.Validate(); err != nil {
		return Reservation{}, err
	}
	var res Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unit, err := tx.GetUnitForUpdate(ctx, input.UnitID)
		if err != nil {
			return err
		}
		if unit.Status != UnitAvailable {
			return ErrUnitNotAvailable
		}
		kind := input.InvoiceKind
		if kind == "" {
			kind = InvoiceSales
		}
		res = Reservation{
			UnitID:      input.UnitID,
			InvoiceID:   input.InvoiceID,
			InvoiceKind: kind,
			BranchID:    unit.BranchID,
			Quantity:    1,
			Status:      ReservationActive,
			ReservedBy:  input.ActorID,
			ReservedAt:  s.now(),
		}
		id, err := tx.InsertReservation(ctx, res)
		if err != nil {
			return err
		}
		res.ID = id
		return tx.UpdateUnitStatus(ctx, input.UnitID, UnitReserved)
	})
	if err != nil {
		return Reservation{}, err
	}
	s.record(ctx, input.ActorID, "stock.reserve", "reservation", res.ID, map[string]any{
		"unit_id": input.UnitID, "invoice_id": input.InvoiceID,
	})
	return res, nil
}

// Release frees a reservation and returns the unit to AVAILABLE. Releasing a
// reservation that is already released or consumed is a no-op; the unit of a
// consumed reservation stays sold.
func (s *Service) Release(ctx context.Context, reservationID, actorID int64) error {
	if reservationID <= 0 {
		return shared.Validationf("stock: reservation id required")
	}
	released := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := tx.GetReservationForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.Status != ReservationActive {
			return nil
		}
		if err := tx.UpdateReservationStatus(ctx, reservationID, ReservationReleased, s.now()); err != nil {
			return err
		}
		released = true
		return tx.UpdateUnitStatus(ctx, res.UnitID, UnitAvailable)
	})
	if err != nil {
		return err
	}
	if released {
		s.record(ctx, actorID, "stock.release", "reservation", reservationID, nil)
	}
	return nil
}

// ReleaseForInvoice frees every ACTIVE reservation held for the invoice and
// returns their units to AVAILABLE in one transaction. An invoice with no
// active reservations left is a no-op, so a cancelled invoice can be released
// again without effect.
func (s *Service) ReleaseForInvoice(ctx context.Context, invoiceID, actorID int64) (int, error) {
	if invoiceID <= 0 {
		return 0, shared.Validationf("stock: invoice id required")
	}
	released := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reservations, err := tx.ActiveReservationsForInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		for _, res := range reservations {
			if err := tx.UpdateReservationStatus(ctx, res.ID, ReservationReleased, s.now()); err != nil {
				return err
			}
			if err := tx.UpdateUnitStatus(ctx, res.UnitID, UnitAvailable); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.record(ctx, actorID, "stock.release_invoice", "invoice", invoiceID, map[string]any{"released": released})
	}
	return released, nil
}

// Consume marks a single reservation consumed and its unit sold. Sale posting
// uses ConsumeForInvoiceTx instead so the whole sale commits atomically.
func (s *Service) Consume(ctx context.Context, reservationID, actorID int64) error {
	if reservationID <= 0 {
		return shared.Validationf("stock: reservation id required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := tx.GetReservationForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.Status != ReservationActive {
			return shared.Conflictf("stock: reservation is not active")
		}
		if err := tx.UpdateReservationStatus(ctx, reservationID, ReservationConsumed, s.now()); err != nil {
			return err
		}
		return tx.UpdateUnitStatus(ctx, res.UnitID, UnitSold)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "stock.consume", "reservation", reservationID, nil)
	return nil
}

// MarkDamaged takes an available unit out of sellable stock.
func (s *Service) MarkDamaged(ctx context.Context, unitID, actorID int64) error {
	if unitID <= 0 {
		return shared.Validationf("stock: unit id required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unit, err := tx.GetUnitForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		if unit.Status != UnitAvailable {
			return ErrUnitNotAvailable
		}
		return tx.UpdateUnitStatus(ctx, unitID, UnitDamaged)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "stock.damage", "unit", unitID, nil)
	return nil
}

// BeginTransfer puts an available unit in transit towards another branch.
func (s *Service) BeginTransfer(ctx context.Context, unitID, destBranchID, actorID int64) error {
	if unitID <= 0 || destBranchID <= 0 {
		return shared.Validationf("stock: unit and destination branch required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unit, err := tx.GetUnitForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		if unit.Status != UnitAvailable {
			return ErrUnitNotAvailable
		}
		if unit.BranchID == destBranchID {
			return ErrSameBranch
		}
		return tx.SetUnitTransit(ctx, unitID, destBranchID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "stock.transfer_begin", "unit", unitID, map[string]any{"dest_branch_id": destBranchID})
	return nil
}

// CompleteTransfer lands an in-transit unit at its destination branch.
func (s *Service) CompleteTransfer(ctx context.Context, unitID, actorID int64) error {
	if unitID <= 0 {
		return shared.Validationf("stock: unit id required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unit, err := tx.GetUnitForUpdate(ctx, unitID)
		if err != nil {
			return err
		}
		if unit.Status != UnitInTransit || unit.TransitBranchID == 0 {
			return ErrNotInTransit
		}
		return tx.LandUnit(ctx, unitID, unit.TransitBranchID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "stock.transfer_complete", "unit", unitID, nil)
	return nil
}

// LowStock lists product/branch pairs at or below their reorder level.
func (s *Service) LowStock(ctx context.Context) ([]LowStockRow, error) {
	return s.repo.LowStock(ctx)
}

// GetUnit fetches a single unit.
func (s *Service) GetUnit(ctx context.Context, unitID int64) (Unit, error) {
	if unitID <= 0 {
		return Unit{}, shared.Validationf("stock: unit id required")
	}
	return s.repo.GetUnit(ctx, unitID)
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

// CreateUnitTx inserts a unit inside a caller-owned transaction. GRN receipt
// is the only unit producer.
func CreateUnitTx(ctx context.Context, tx TxRepository, unit Unit) (int64, error) {
	if unit.ProductID <= 0 || unit.BranchID <= 0 {
		return 0, shared.Validationf("stock: product and branch required")
	}
	if unit.SerialNo == "" {
		return 0, shared.Validationf("stock: serial number required")
	}
	if unit.Status == "" {
		unit.Status = UnitAvailable
	}
	return tx.InsertUnit(ctx, unit)
}

// ConsumeForInvoiceTx consumes every ACTIVE reservation held for the invoice
// and marks the units sold, inside a caller-owned transaction. It returns the
// consumed units so the caller can snapshot their costs.
func ConsumeForInvoiceTx(ctx context.Context, tx TxRepository, invoiceID int64, at time.Time) ([]Unit, error) {
	reservations, err := tx.ActiveReservationsForInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if len(reservations) == 0 {
		return nil, shared.Conflictf("stock: no active reservations for invoice")
	}
	units := make([]Unit, 0, len(reservations))
	for _, res := range reservations {
		unit, err := tx.GetUnitForUpdate(ctx, res.UnitID)
		if err != nil {
			return nil, err
		}
		if unit.Status != UnitReserved {
			return nil, shared.Conflictf("stock: unit %d is not reserved", res.UnitID)
		}
		if err := tx.UpdateReservationStatus(ctx, res.ID, ReservationConsumed, at); err != nil {
			return nil, err
		}
		if err := tx.UpdateUnitStatus(ctx, res.UnitID, UnitSold); err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}
