package resolution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyledger/pnlengine/internal/domain"
)

const condA = "1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b"

var resolvedAt = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func TestCanonicalize_BinaryResolution(t *testing.T) {
	r, err := Canonicalize(RawResolution{
		ConditionID:       "0x" + condA,
		PayoutNumerators:  []uint64{1, 0},
		PayoutDenominator: 1,
		ResolvedAt:        resolvedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, condA, r.ConditionID)
	assert.InDelta(t, 1.0, r.Payout.Price(0), 1e-9)
	assert.Zero(t, r.Payout.Price(1))
	assert.Equal(t, 0, r.Payout.WinningOutcome())
}

func TestCanonicalize_SplitPayout(t *testing.T) {
	r, err := Canonicalize(RawResolution{
		ConditionID:       condA,
		PayoutNumerators:  []uint64{1, 1},
		PayoutDenominator: 2,
		ResolvedAt:        resolvedAt,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r.Payout.Price(0), 1e-9)
	assert.InDelta(t, 0.5, r.Payout.Price(1), 1e-9)
}

func TestCanonicalize_NumeratorSumMismatch(t *testing.T) {
	_, err := Canonicalize(RawResolution{
		ConditionID:       condA,
		PayoutNumerators:  []uint64{1, 1},
		PayoutDenominator: 3,
		ResolvedAt:        resolvedAt,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)

	var ie *domain.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, condA, ie.ConditionID)
}

func TestCanonicalize_InvalidConditionID(t *testing.T) {
	_, err := Canonicalize(RawResolution{
		ConditionID:       "0x1234",
		PayoutNumerators:  []uint64{1, 0},
		PayoutDenominator: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestCheckConflict_IdenticalReobservation(t *testing.T) {
	r, err := Canonicalize(RawResolution{
		ConditionID:       condA,
		PayoutNumerators:  []uint64{1, 0},
		PayoutDenominator: 1,
		ResolvedAt:        resolvedAt,
	})
	require.NoError(t, err)
	assert.NoError(t, CheckConflict(r, r))
}

func TestCheckConflict_DifferingPayout(t *testing.T) {
	a, err := Canonicalize(RawResolution{
		ConditionID:       condA,
		PayoutNumerators:  []uint64{1, 0},
		PayoutDenominator: 1,
	})
	require.NoError(t, err)
	b, err := Canonicalize(RawResolution{
		ConditionID:       condA,
		PayoutNumerators:  []uint64{0, 1},
		PayoutDenominator: 1,
	})
	require.NoError(t, err)

	err = CheckConflict(a, b)
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)
}

func TestTable_Resolve(t *testing.T) {
	r, err := Canonicalize(RawResolution{
		ConditionID:       condA,
		PayoutNumerators:  []uint64{0, 1},
		PayoutDenominator: 1,
		ResolvedAt:        resolvedAt,
	})
	require.NoError(t, err)
	table := NewTable([]domain.Resolution{r})

	got, ok := table.Resolve(condA)
	require.True(t, ok)
	assert.Equal(t, 1, got.Payout.WinningOutcome())

	_, ok = table.Resolve("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	assert.False(t, ok)

	price, ok := table.PayoutPrice(condA, 1)
	require.True(t, ok)
	assert.InDelta(t, 1.0, price, 1e-9)
}
