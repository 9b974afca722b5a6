package types

import "github.com/holiman/uint256"

// FillKind describes how an order's index in a PoolSolution was resolved.
type FillKind uint8

const (
	FillComplete FillKind = iota
	FillPartial
)

// OrderFillState records the outcome of one matched order.
type OrderFillState struct {
	OrderHash OrderHash
	Kind      FillKind
	// MatchedAmount is the amount-in consumed from this order in this round.
	MatchedAmount *uint256.Int
}

// PoolSolution is the matcher's output for a single pool: the uniform
// clearing price and the set of fills that clear at it.
type PoolSolution struct {
	Pool   PoolID
	UCP    Ray
	// AMMQuantity is the unsigned token0 volume the AMM leg traded this
	// round; its direction is carried separately in AMMDirection.
	AMMQuantity *uint256.Int
	AMMDirection bool // true = the most recent AMM fill was on the bid side (token0 bought from the pool)
	Searcher    *OrderFillState
	Limit       []OrderFillState
}

// Bundle is the ordered list of searcher transactions, limit-order fills
// and AMM swaps committed as a single settlement call, per spec.md
// section 3 and section 6.
type Bundle struct {
	BlockHeight uint64
	Solutions   []PoolSolution
}
