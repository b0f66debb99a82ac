package profit

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
	InvestorCapital(ctx context.Context) ([]InvestorCapital, error)
	PoolForPeriod(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	GetDistribution(ctx context.Context, period shared.Period) (Distribution, error)
	ListDetails(ctx context.Context, distributionID int64) ([]DistributionDetail, error)
}

// TxRepository exposes the transactional operations. MarkFinalized is a
// conditional update on is_finalized=false; it reports whether this call won,
// which is what makes a concurrent second finalize a clean conflict.
type TxRepository interface {
	GetDistributionForUpdate(ctx context.Context, period shared.Period) (Distribution, bool, error)
	InsertDistribution(ctx context.Context, d Distribution) (int64, error)
	UpdateDistributionPool(ctx context.Context, id int64, pool decimal.Decimal) error
	MarkFinalized(ctx context.Context, id int64, at time.Time) (bool, error)
	DeleteDetails(ctx context.Context, distributionID int64) error
	InsertDetail(ctx context.Context, detail DistributionDetail) (int64, error)
}

// AuditPort records distribution events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the periodic investor distribution.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the profit service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Preview computes the period's pool and per-investor shares without
// persisting anything.
func (s *Service) Preview(ctx context.Context, period shared.Period) (Distribution, []DistributionDetail, error) {
	pool, details, err := s.compute(ctx, period)
	if err != nil {
		return Distribution{}, nil, err
	}
	return Distribution{Period: period, Pool: pool}, details, nil
}

// Finalize recomputes and persists the distribution, then flips the finalized
// flag. A second finalize conflicts and leaves the stored details untouched.
func (s *Service) Finalize(ctx context.Context, period shared.Period, actorID int64) (Distribution, []DistributionDetail, error) {
	pool, details, err := s.compute(ctx, period)
	if err != nil {
		return Distribution{}, nil, err
	}
	var dist Distribution
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, found, err := tx.GetDistributionForUpdate(ctx, period)
		if err != nil {
			return err
		}
		if found {
			if existing.IsFinalized {
				return ErrAlreadyFinalized
			}
			dist = existing
			dist.Pool = pool
			if err := tx.UpdateDistributionPool(ctx, dist.ID, pool); err != nil {
				return err
			}
		} else {
			dist = Distribution{Period: period, Pool: pool, CreatedAt: s.now()}
			id, err := tx.InsertDistribution(ctx, dist)
			if err != nil {
				return err
			}
			dist.ID = id
		}
		if err := tx.DeleteDetails(ctx, dist.ID); err != nil {
			return err
		}
		for i := range details {
			details[i].DistributionID = dist.ID
			id, err := tx.InsertDetail(ctx, details[i])
			if err != nil {
				return err
			}
			details[i].ID = id
		}
		won, err := tx.MarkFinalized(ctx, dist.ID, s.now())
		if err != nil {
			return err
		}
		if !won {
			return ErrAlreadyFinalized
		}
		dist.IsFinalized = true
		dist.FinalizedAt = s.now()
		return nil
	})
	if err != nil {
		return Distribution{}, nil, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "profit.finalize",
			Entity:   "distribution",
			EntityID: fmt.Sprintf("%d", dist.ID),
			Meta:     map[string]any{"period": period.String(), "pool": pool.String()},
			At:       s.now(),
		})
	}
	return dist, details, nil
}

// GetDistribution fetches a stored distribution with its details.
func (s *Service) GetDistribution(ctx context.Context, period shared.Period) (Distribution, []DistributionDetail, error) {
	dist, err := s.repo.GetDistribution(ctx, period)
	if err != nil {
		return Distribution{}, nil, err
	}
	details, err := s.repo.ListDetails(ctx, dist.ID)
	if err != nil {
		return Distribution{}, nil, err
	}
	return dist, details, nil
}

// compute derives the pool and the per-investor slices. Shares follow capital
// proportions; the last investor absorbs the rounding remainder so the slices
// sum to the pool exactly.
func (s *Service) compute(ctx context.Context, period shared.Period) (decimal.Decimal, []DistributionDetail, error) {
	from, to := period.Bounds()
	if from.IsZero() {
		return decimal.Zero, nil, shared.Validationf("profit: invalid period %q", period.String())
	}
	pool, err := s.repo.PoolForPeriod(ctx, from, to)
	if err != nil {
		return decimal.Zero, nil, err
	}
	pool = shared.Round2(pool)
	investors, err := s.repo.InvestorCapital(ctx)
	if err != nil {
		return decimal.Zero, nil, err
	}
	totalCapital := decimal.Zero
	for _, inv := range investors {
		totalCapital = totalCapital.Add(inv.Capital)
	}
	if len(investors) == 0 || totalCapital.IsZero() {
		return decimal.Zero, nil, ErrNoInvestors
	}
	details := make([]DistributionDetail, 0, len(investors))
	allocated := decimal.Zero
	for i, inv := range investors {
		pct := inv.Capital.Div(totalCapital).Round(6)
		var amount decimal.Decimal
		if i == len(investors)-1 {
			amount = pool.Sub(allocated)
		} else {
			amount = shared.Round2(pool.Mul(pct))
			allocated = allocated.Add(amount)
		}
		details = append(details, DistributionDetail{
			InvestorID:   inv.InvestorID,
			SharePercent: pct,
			Amount:       amount,
		})
	}
	return pool, details, nil
}
