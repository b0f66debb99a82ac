package profit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Investor is a capital participant in the profit pool.
type Investor struct {
	ID       int64
	Name     string
	Active   bool
	JoinedAt time.Time
}

// CapitalContribution is one paid-in amount by an investor.
type CapitalContribution struct {
	ID            int64
	InvestorID    int64
	Amount        decimal.Decimal
	ContributedAt time.Time
}

// InvestorCapital is an investor with their summed capital.
type InvestorCapital struct {
	InvestorID int64
	Name       string
	Capital    decimal.Decimal
}

// Distribution is one period's payout of the investor pool. A period is
// distributed at most once; finalization is terminal.
type Distribution struct {
	ID          int64
	Period      shared.Period
	Pool        decimal.Decimal
	IsFinalized bool
	FinalizedAt time.Time
	CreatedAt   time.Time
}

// DistributionDetail is one investor's slice of a distribution.
type DistributionDetail struct {
	ID             int64
	DistributionID int64
	InvestorID     int64
	SharePercent   decimal.Decimal
	Amount         decimal.Decimal
}

var (
	ErrAlreadyFinalized = shared.Conflictf("profit: distribution already finalized")
	ErrNoInvestors      = shared.Conflictf("profit: no investors with capital")
)
