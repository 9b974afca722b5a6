// Package types defines the core data model shared by the order pool,
// matching engine and consensus state machine: orders, prices, debt and
// the final bundle.
package types

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// RayScale is the fixed-point scale used for all prices: 10^27.
var RayScale = uint256.MustFromDecimal("1000000000000000000000000000")

// Ray is a 256-bit unsigned fixed-point number with a scale of 10^27,
// used throughout the book and matcher for prices and UCP.
type Ray struct {
	v uint256.Int
}

// NewRay wraps a raw 10^27-scaled uint256 value.
func NewRay(v *uint256.Int) Ray {
	var r Ray
	if v != nil {
		r.v.Set(v)
	}
	return r
}

// RayFromUint64 builds a Ray from a plain integer price (scaled up by RayScale).
func RayFromUint64(price uint64) Ray {
	var r Ray
	r.v.SetUint64(price)
	r.v.Mul(&r.v, RayScale)
	return r
}

// ZeroRay is the zero price.
func ZeroRay() Ray { return Ray{} }

func (r Ray) IsZero() bool { return r.v.IsZero() }

func (r Ray) Int() *uint256.Int { return new(uint256.Int).Set(&r.v) }

func (r Ray) Cmp(o Ray) int { return r.v.Cmp(&o.v) }

func (r Ray) GreaterThan(o Ray) bool { return r.Cmp(o) > 0 }
func (r Ray) LessThan(o Ray) bool    { return r.Cmp(o) < 0 }
func (r Ray) Equal(o Ray) bool       { return r.Cmp(o) == 0 }

func (r Ray) Add(o Ray) Ray {
	var out Ray
	out.v.Add(&r.v, &o.v)
	return out
}

func (r Ray) Sub(o Ray) Ray {
	var out Ray
	out.v.Sub(&r.v, &o.v)
	return out
}

// Mid returns the truncating midpoint of r and o, per spec: "midpoints
// divide by 2 in U256 space".
func (r Ray) Mid(o Ray) Ray {
	var sum uint256.Int
	sum.Add(&r.v, &o.v)
	var out Ray
	out.v.Rsh(&sum, 1)
	return out
}

// MulQuantity computes floor(r * qty / RayScale), truncation toward zero,
// used to convert a Ray price and an integer quantity into an output amount.
func (r Ray) MulQuantity(qty *uint256.Int) *uint256.Int {
	var prod uint256.Int
	_, overflow := prod.MulOverflow(&r.v, qty)
	if overflow {
		// fall back to big.Int for the rare overflow case; still truncates.
		bp := new(big.Int).Mul(r.v.ToBig(), qty.ToBig())
		bp.Div(bp, RayScale.ToBig())
		out, _ := uint256.FromBig(bp)
		return out
	}
	out := new(uint256.Int).Div(&prod, RayScale)
	return out
}

// DivQuantity computes floor(amount * RayScale / r), the inverse of
// MulQuantity, used to recover a quantity from an amount-out and a price.
func (r Ray) DivQuantity(amount *uint256.Int) *uint256.Int {
	if r.IsZero() {
		return new(uint256.Int)
	}
	bp := new(big.Int).Mul(amount.ToBig(), RayScale.ToBig())
	bp.Div(bp, r.v.ToBig())
	out, _ := uint256.FromBig(bp)
	return out
}

func (r Ray) String() string { return r.v.Dec() }

// EncodeRLP serializes the Ray's underlying value, since uint256.Int's
// unexported limbs are not otherwise visible to reflection-based RLP
// encoding of the Ray wrapper.
func (r Ray) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, r.v.Bytes())
}

// DecodeRLP restores a Ray encoded by EncodeRLP.
func (r *Ray) DecodeRLP(s *rlp.Stream) error {
	var b []byte
	if err := s.Decode(&b); err != nil {
		return err
	}
	r.v.SetBytes(b)
	return nil
}
