package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestRayFromUint64ScalesByRayScale(t *testing.T) {
	r := RayFromUint64(2)
	require.Equal(t, new(uint256.Int).Mul(uint256.NewInt(2), RayScale), r.Int())
}

func TestRayCompareHelpers(t *testing.T) {
	one := RayFromUint64(1)
	two := RayFromUint64(2)

	require.True(t, two.GreaterThan(one))
	require.True(t, one.LessThan(two))
	require.True(t, one.Equal(RayFromUint64(1)))
	require.False(t, one.Equal(two))
}

func TestRayAddSub(t *testing.T) {
	one := RayFromUint64(1)
	two := RayFromUint64(2)

	require.True(t, one.Add(one).Equal(two))
	require.True(t, two.Sub(one).Equal(one))
}

func TestRayMidTruncatesInU256Space(t *testing.T) {
	zero := ZeroRay()
	two := RayFromUint64(2)
	require.True(t, zero.Mid(two).Equal(RayFromUint64(1)))

	// An odd sum truncates toward zero rather than rounding.
	three := RayFromUint64(3)
	mid := zero.Mid(three)
	require.True(t, mid.LessThan(RayFromUint64(2)))
	require.True(t, mid.GreaterThan(RayFromUint64(1)))
}

func TestRayMulQuantityAndDivQuantityAreInverses(t *testing.T) {
	price := RayFromUint64(3)
	qty := uint256.NewInt(10)

	amountOut := price.MulQuantity(qty)
	require.Equal(t, uint256.NewInt(30), amountOut)

	recovered := price.DivQuantity(amountOut)
	require.Equal(t, qty, recovered)
}

func TestRayDivQuantityByZeroPriceIsZero(t *testing.T) {
	zero := ZeroRay()
	require.True(t, zero.DivQuantity(uint256.NewInt(10)).IsZero())
}

func TestRayEncodeDecodeRLPRoundtrip(t *testing.T) {
	original := RayFromUint64(42)
	b, err := rlp.EncodeToBytes(original)
	require.NoError(t, err)

	var decoded Ray
	require.NoError(t, rlp.DecodeBytes(b, &decoded))
	require.True(t, original.Equal(decoded))
}
