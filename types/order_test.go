package types

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestOrderRemainingAmountFallsBackToAmountIn(t *testing.T) {
	o := &Order{AmountIn: uint256.NewInt(100)}
	require.Equal(t, uint256.NewInt(100), o.RemainingAmount())
}

func TestOrderRemainingAmountUsesRemainingOnceSet(t *testing.T) {
	o := &Order{AmountIn: uint256.NewInt(100), Remaining: uint256.NewInt(40)}
	require.Equal(t, uint256.NewInt(40), o.RemainingAmount())
}

func TestOrderFillPartialLeavesRemainder(t *testing.T) {
	o := &Order{Kind: KindStandingPartial, AmountIn: uint256.NewInt(100)}
	complete := o.Fill(uint256.NewInt(40))

	require.False(t, complete)
	require.Equal(t, uint256.NewInt(60), o.Remaining)
	require.NotEqual(t, StateFilled, o.State)
}

func TestOrderFillExactMarksFilled(t *testing.T) {
	o := &Order{Kind: KindStandingExact, AmountIn: uint256.NewInt(100)}
	complete := o.Fill(uint256.NewInt(100))

	require.True(t, complete)
	require.Equal(t, StateFilled, o.State)
	require.True(t, o.Remaining.IsZero())
}

func TestOrderFillOvermatchStillCompletes(t *testing.T) {
	o := &Order{AmountIn: uint256.NewInt(100)}
	complete := o.Fill(uint256.NewInt(150))

	require.True(t, complete)
	require.True(t, o.Remaining.IsZero())
}

func TestOrderIsPartialByKind(t *testing.T) {
	require.True(t, (&Order{Kind: KindStandingPartial}).IsPartial())
	require.True(t, (&Order{Kind: KindFlashPartial}).IsPartial())
	require.False(t, (&Order{Kind: KindStandingExact}).IsPartial())
	require.False(t, (&Order{Kind: KindFlashExact}).IsPartial())
	require.False(t, (&Order{Kind: KindTopOfBlock}).IsPartial())
}

func TestOrderIsTopOfBlock(t *testing.T) {
	require.True(t, (&Order{Kind: KindTopOfBlock}).IsTopOfBlock())
	require.False(t, (&Order{Kind: KindStandingExact}).IsTopOfBlock())
}

func TestOrderIsComposite(t *testing.T) {
	require.False(t, (&Order{}).IsComposite())
	require.True(t, (&Order{Composable: &Hook{PreHook: []byte{1}}}).IsComposite())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "valid", StateValid.String())
	require.Equal(t, "unknown", State(255).String())
}
