package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRound2HalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"44.985", "44.99"},
		{"44.984", "44.98"},
		{"44.99", "44.99"},
		{"-1.005", "-1.01"},
	}
	for _, tc := range cases {
		got := Round2(decimal.RequireFromString(tc.in))
		require.Equal(t, tc.want, got.StringFixed(2), "round %s", tc.in)
	}
}

func TestFloorZeroClampsNegatives(t *testing.T) {
	require.True(t, FloorZero(decimal.RequireFromString("-3.50")).IsZero())
	require.Equal(t, "3.50", FloorZero(decimal.RequireFromString("3.50")).StringFixed(2))
}

func TestIsMoneyRejectsSubCentAndNegative(t *testing.T) {
	require.True(t, IsMoney(decimal.RequireFromString("10.05")))
	require.True(t, IsMoney(decimal.Zero))
	require.False(t, IsMoney(decimal.RequireFromString("10.005")))
	require.False(t, IsMoney(decimal.RequireFromString("-0.01")))
}

func TestErrorKindMatching(t *testing.T) {
	specific := Conflictf("ledger: entry exists")
	require.ErrorIs(t, specific, ErrConflict)
	require.NotErrorIs(t, specific, ErrValidation)
	require.ErrorIs(t, specific, Conflictf("ledger: entry exists"))
	require.NotErrorIs(t, specific, Conflictf("other message"))
	require.NotErrorIs(t, errors.New("plain"), ErrConflict)
}

func TestPeriodBounds(t *testing.T) {
	period, err := ParsePeriod("2026-08")
	require.NoError(t, err)
	from, to := period.Bounds()
	require.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), to)

	_, err = ParsePeriod("2026-13")
	require.ErrorIs(t, err, ErrValidation)
}

func TestPeriodOf(t *testing.T) {
	require.Equal(t, Period("2026-02"), PeriodOf(time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC)))
}

func TestRefIDIsDeterministic(t *testing.T) {
	first := RefID("purchasing", "GRN:GRN-1001")
	second := RefID("purchasing", "GRN:GRN-1001")
	require.Equal(t, first, second)
	require.NotEqual(t, first, RefID("purchasing", "GRN:GRN-1002"))
	require.NotEqual(t, first, RefID("billing", "GRN:GRN-1001"))
}

func TestAuditLogValidate(t *testing.T) {
	valid := AuditLog{Action: "stock.reserve", Entity: "reservation", EntityID: "42"}
	require.NoError(t, valid.validate())

	bad := valid
	bad.Action = "reserve"
	require.Error(t, bad.validate())

	bad = valid
	bad.Action = "warehouse.reserve"
	require.Error(t, bad.validate())

	bad = valid
	bad.EntityID = ""
	require.Error(t, bad.validate())
}

func TestAuditLoggerRejectsBeforeTouchingPool(t *testing.T) {
	logger := &AuditLogger{}
	err := logger.Record(context.Background(), AuditLog{Action: "nope", Entity: "x", EntityID: "1"})
	require.ErrorContains(t, err, "module.verb")
}
