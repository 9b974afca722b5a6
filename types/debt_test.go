package types

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestDebtIsZero(t *testing.T) {
	var nilDebt *Debt
	require.True(t, nilDebt.IsZero())

	zero := Debt{Amount: new(uint256.Int)}
	require.True(t, zero.IsZero())

	nonZero := Debt{Amount: uint256.NewInt(1)}
	require.False(t, nonZero.IsZero())
}

func TestDebtSetPriceDoesNotMutateOriginal(t *testing.T) {
	d := Debt{Amount: uint256.NewInt(10), Price: RayFromUint64(1)}
	updated := d.SetPrice(RayFromUint64(2))

	require.True(t, d.Price.Equal(RayFromUint64(1)))
	require.True(t, updated.Price.Equal(RayFromUint64(2)))
}

func TestDebtPartialFillLeavesRemainderWithoutMutatingOriginal(t *testing.T) {
	d := Debt{Kind: DebtExactIn, Amount: uint256.NewInt(100)}
	updated := d.PartialFill(uint256.NewInt(40))

	require.Equal(t, uint256.NewInt(100), d.Amount)
	require.Equal(t, uint256.NewInt(60), updated.Amount)
}

func TestDebtPartialFillOvermatchZeroesOut(t *testing.T) {
	d := Debt{Amount: uint256.NewInt(100)}
	updated := d.PartialFill(uint256.NewInt(150))

	require.True(t, updated.Amount.IsZero())
}
