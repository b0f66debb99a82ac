package stock

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memStockRepo struct {
	units        map[int64]*Unit
	reservations map[int64]*Reservation
	nextUnit     int64
	nextRes      int64
}

func newMemStockRepo() *memStockRepo {
	return &memStockRepo{
		units:        map[int64]*Unit{},
		reservations: map[int64]*Reservation{},
		nextUnit:     1,
		nextRes:      1,
	}
}

func (m *memStockRepo) addUnit(productID, branchID int64, status UnitStatus) int64 {
	id := m.nextUnit
	m.nextUnit++
	m.units[id] = &Unit{
		ID: id, ProductID: productID, BranchID: branchID, Status: status,
		SerialNo:    "SN-" + time.Now().Format("150405") + "-" + decimal.NewFromInt(id).String(),
		LandingCost: decimal.RequireFromString("45.00"),
		BranchCost:  decimal.RequireFromString("55.00"),
		RetailPrice: decimal.RequireFromString("89.99"),
	}
	return id
}

func (m *memStockRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memStockRepo) Availability(_ context.Context, productID, branchID int64) (Availability, error) {
	avail := Availability{ProductID: productID, BranchID: branchID}
	for _, u := range m.units {
		if u.ProductID != productID || u.BranchID != branchID {
			continue
		}
		switch u.Status {
		case UnitAvailable:
			avail.Total++
			avail.Available++
		case UnitReserved:
			avail.Total++
			avail.Reserved++
		}
	}
	return avail, nil
}

func (m *memStockRepo) LowStock(context.Context) ([]LowStockRow, error) { return nil, nil }

func (m *memStockRepo) GetUnit(_ context.Context, unitID int64) (Unit, error) {
	u, ok := m.units[unitID]
	if !ok {
		return Unit{}, ErrUnitNotFound
	}
	return *u, nil
}

func (m *memStockRepo) GetUnitForUpdate(ctx context.Context, unitID int64) (Unit, error) {
	return m.GetUnit(ctx, unitID)
}

func (m *memStockRepo) InsertUnit(_ context.Context, unit Unit) (int64, error) {
	unit.ID = m.nextUnit
	m.nextUnit++
	m.units[unit.ID] = &unit
	return unit.ID, nil
}

func (m *memStockRepo) UpdateUnitStatus(_ context.Context, unitID int64, status UnitStatus) error {
	m.units[unitID].Status = status
	m.units[unitID].TransitBranchID = 0
	return nil
}

func (m *memStockRepo) SetUnitTransit(_ context.Context, unitID, transitBranchID int64) error {
	m.units[unitID].Status = UnitInTransit
	m.units[unitID].TransitBranchID = transitBranchID
	return nil
}

func (m *memStockRepo) LandUnit(_ context.Context, unitID, branchID int64) error {
	m.units[unitID].Status = UnitAvailable
	m.units[unitID].BranchID = branchID
	m.units[unitID].TransitBranchID = 0
	return nil
}

func (m *memStockRepo) InsertReservation(_ context.Context, res Reservation) (int64, error) {
	for _, existing := range m.reservations {
		if existing.UnitID == res.UnitID && existing.Status == ReservationActive {
			return 0, ErrAlreadyReserved
		}
	}
	res.ID = m.nextRes
	m.nextRes++
	m.reservations[res.ID] = &res
	return res.ID, nil
}

func (m *memStockRepo) GetReservationForUpdate(_ context.Context, reservationID int64) (Reservation, error) {
	res, ok := m.reservations[reservationID]
	if !ok {
		return Reservation{}, ErrReservationGone
	}
	return *res, nil
}

func (m *memStockRepo) ActiveReservationsForInvoice(_ context.Context, invoiceID int64) ([]Reservation, error) {
	var out []Reservation
	for id := int64(1); id < m.nextRes; id++ {
		res, ok := m.reservations[id]
		if ok && res.InvoiceID == invoiceID && res.Status == ReservationActive {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (m *memStockRepo) UpdateReservationStatus(_ context.Context, reservationID int64, status ReservationStatus, at time.Time) error {
	m.reservations[reservationID].Status = status
	if status == ReservationReleased {
		m.reservations[reservationID].ReleasedAt = at
	}
	return nil
}

func TestReserveFlipsUnitToReserved(t *testing.T) {
	repo := newMemStockRepo()
	unitID := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	res, err := svc.Reserve(context.Background(), ReserveInput{UnitID: unitID, InvoiceID: 100})
	require.NoError(t, err)
	require.Equal(t, ReservationActive, res.Status)
	require.Equal(t, UnitReserved, repo.units[unitID].Status)
}

func TestReserveRejectsSecondActiveReservation(t *testing.T) {
	repo := newMemStockRepo()
	unitID := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	_, err := svc.Reserve(context.Background(), ReserveInput{UnitID: unitID, InvoiceID: 100})
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), ReserveInput{UnitID: unitID, InvoiceID: 101})
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestReserveRejectsNonAvailableUnit(t *testing.T) {
	repo := newMemStockRepo()
	unitID := repo.addUnit(10, 1, UnitSold)
	svc := NewService(repo, nil)

	_, err := svc.Reserve(context.Background(), ReserveInput{UnitID: unitID, InvoiceID: 100})
	require.ErrorIs(t, err, ErrUnitNotAvailable)
}

func TestReleaseIsIdempotent(t *testing.T) {
	repo := newMemStockRepo()
	unitID := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	res, err := svc.Reserve(context.Background(), ReserveInput{UnitID: unitID, InvoiceID: 100})
	require.NoError(t, err)

	require.NoError(t, svc.Release(context.Background(), res.ID, 0))
	require.Equal(t, UnitAvailable, repo.units[unitID].Status)

	require.NoError(t, svc.Release(context.Background(), res.ID, 0))
	require.Equal(t, UnitAvailable, repo.units[unitID].Status)
}

func TestReleaseConsumedReservationIsNoop(t *testing.T) {
	repo := newMemStockRepo()
	unitID := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	res, err := svc.Reserve(context.Background(), ReserveInput{UnitID: unitID, InvoiceID: 100})
	require.NoError(t, err)
	require.NoError(t, svc.Consume(context.Background(), res.ID, 0))

	require.NoError(t, svc.Release(context.Background(), res.ID, 0))
	require.Equal(t, ReservationConsumed, repo.reservations[res.ID].Status)
	require.Equal(t, UnitSold, repo.units[unitID].Status)
}

func TestReleaseForInvoiceReleasesAllActive(t *testing.T) {
	repo := newMemStockRepo()
	first := repo.addUnit(10, 1, UnitAvailable)
	second := repo.addUnit(10, 1, UnitAvailable)
	consumed := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	_, err := svc.Reserve(context.Background(), ReserveInput{UnitID: first, InvoiceID: 300})
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), ReserveInput{UnitID: second, InvoiceID: 300})
	require.NoError(t, err)
	res, err := svc.Reserve(context.Background(), ReserveInput{UnitID: consumed, InvoiceID: 300})
	require.NoError(t, err)
	require.NoError(t, svc.Consume(context.Background(), res.ID, 0))

	released, err := svc.ReleaseForInvoice(context.Background(), 300, 0)
	require.NoError(t, err)
	require.Equal(t, 2, released)
	require.Equal(t, UnitAvailable, repo.units[first].Status)
	require.Equal(t, UnitAvailable, repo.units[second].Status)
	require.Equal(t, UnitSold, repo.units[consumed].Status)
	require.Equal(t, ReservationConsumed, repo.reservations[res.ID].Status)

	released, err = svc.ReleaseForInvoice(context.Background(), 300, 0)
	require.NoError(t, err)
	require.Zero(t, released)
}

func TestReserveDefaultsInvoiceKindToSales(t *testing.T) {
	repo := newMemStockRepo()
	unitID := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	res, err := svc.Reserve(context.Background(), ReserveInput{UnitID: unitID, InvoiceID: 100})
	require.NoError(t, err)
	require.Equal(t, InvoiceSales, res.InvoiceKind)

	_, err = svc.Reserve(context.Background(), ReserveInput{UnitID: unitID, InvoiceID: 100, InvoiceKind: "REFUND"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAvailabilityCounts(t *testing.T) {
	repo := newMemStockRepo()
	repo.addUnit(10, 1, UnitAvailable)
	repo.addUnit(10, 1, UnitAvailable)
	reserved := repo.addUnit(10, 1, UnitAvailable)
	repo.addUnit(10, 1, UnitSold)
	repo.addUnit(10, 2, UnitAvailable)
	svc := NewService(repo, nil)

	_, err := svc.Reserve(context.Background(), ReserveInput{UnitID: reserved, InvoiceID: 100})
	require.NoError(t, err)

	avail, err := svc.Availability(context.Background(), 10, 1)
	require.NoError(t, err)
	require.Equal(t, 3, avail.Total)
	require.Equal(t, 1, avail.Reserved)
	require.Equal(t, 2, avail.Available)
}

func TestCheckSufficient(t *testing.T) {
	repo := newMemStockRepo()
	repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	require.NoError(t, svc.CheckSufficient(context.Background(), 10, 1, 1))
	require.ErrorIs(t, svc.CheckSufficient(context.Background(), 10, 1, 2), ErrInsufficientStock)
}

func TestBeginTransferSameBranchConflicts(t *testing.T) {
	repo := newMemStockRepo()
	unitID := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	err := svc.BeginTransfer(context.Background(), unitID, 1, 0)
	require.ErrorIs(t, err, ErrSameBranch)
}

func TestTransferMovesUnitBetweenBranches(t *testing.T) {
	repo := newMemStockRepo()
	unitID := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	require.NoError(t, svc.BeginTransfer(context.Background(), unitID, 2, 0))
	require.Equal(t, UnitInTransit, repo.units[unitID].Status)
	require.Equal(t, int64(2), repo.units[unitID].TransitBranchID)

	require.NoError(t, svc.CompleteTransfer(context.Background(), unitID, 0))
	require.Equal(t, UnitAvailable, repo.units[unitID].Status)
	require.Equal(t, int64(2), repo.units[unitID].BranchID)
	require.Zero(t, repo.units[unitID].TransitBranchID)
}

func TestCompleteTransferRequiresTransit(t *testing.T) {
	repo := newMemStockRepo()
	unitID := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	require.ErrorIs(t, svc.CompleteTransfer(context.Background(), unitID, 0), ErrNotInTransit)
}

func TestMarkDamagedRequiresAvailable(t *testing.T) {
	repo := newMemStockRepo()
	available := repo.addUnit(10, 1, UnitAvailable)
	reserved := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	_, err := svc.Reserve(context.Background(), ReserveInput{UnitID: reserved, InvoiceID: 100})
	require.NoError(t, err)

	require.NoError(t, svc.MarkDamaged(context.Background(), available, 0))
	require.Equal(t, UnitDamaged, repo.units[available].Status)

	require.ErrorIs(t, svc.MarkDamaged(context.Background(), reserved, 0), ErrUnitNotAvailable)
}

func TestConsumeForInvoiceTxMarksUnitsSold(t *testing.T) {
	repo := newMemStockRepo()
	first := repo.addUnit(10, 1, UnitAvailable)
	second := repo.addUnit(10, 1, UnitAvailable)
	svc := NewService(repo, nil)

	_, err := svc.Reserve(context.Background(), ReserveInput{UnitID: first, InvoiceID: 200})
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), ReserveInput{UnitID: second, InvoiceID: 200})
	require.NoError(t, err)

	units, err := ConsumeForInvoiceTx(context.Background(), repo, 200, time.Now())
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Equal(t, UnitSold, repo.units[first].Status)
	require.Equal(t, UnitSold, repo.units[second].Status)
}

func TestConsumeForInvoiceTxWithoutReservations(t *testing.T) {
	repo := newMemStockRepo()

	_, err := ConsumeForInvoiceTx(context.Background(), repo, 999, time.Now())
	require.ErrorIs(t, err, shared.ErrConflict)
}
