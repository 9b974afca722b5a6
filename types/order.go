package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OrderHash uniquely identifies an order; ingestion is idempotent on hash.
type OrderHash = common.Hash

// PoolID identifies the trading pool (token0/token1 pair) an order targets.
type PoolID = common.Hash

// OrderKind is the tag of the polymorphic Order variant described in
// spec.md section 3 and the "Polymorphic orders" design note in section 9.
type OrderKind uint8

const (
	// KindStandingExact is a durable order valid until its deadline,
	// filled exactly or not at all.
	KindStandingExact OrderKind = iota
	// KindStandingPartial is a durable order that may be partially filled.
	KindStandingPartial
	// KindFlashExact is a kill-or-fill order valid only in one block.
	KindFlashExact
	// KindFlashPartial is a kill-or-fill order, partial-fill safe, valid
	// only in one block.
	KindFlashPartial
	// KindTopOfBlock is a searcher order: one per block per pool,
	// winner-takes-all by bid.
	KindTopOfBlock
)

// State is the lifecycle state of an order (spec.md section 3 invariants).
type State uint8

const (
	StateUnseen State = iota
	StatePendingValidation
	StateValid
	StateInvalid
	StateParked
	StateFilled
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnseen:
		return "unseen"
	case StatePendingValidation:
		return "pending-validation"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	case StateParked:
		return "parked"
	case StateFilled:
		return "filled"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// RespendGuard is the order's anti-respend mechanism: either a nonce or a
// staged block number, never both.
type RespendGuard struct {
	HasNonce bool
	Nonce    uint64
	HasBlock bool
	Block    uint64
}

// Priority carries the fields used to sort and select orders during
// matching: price, volume and the gas the order is willing to cover.
type Priority struct {
	Price  Ray
	Volume *uint256.Int
	Gas    *uint256.Int
}

// Hook carries optional pre/post-swap bytecode for Composable orders.
type Hook struct {
	PreHook  []byte
	PostHook []byte
}

// Order is the tagged variant over the four order kinds from spec.md
// section 3. Rather than inheritance, capability-set accessor methods
// dispatch on Kind, per the section 9 design note.
type Order struct {
	Kind   OrderKind
	State  State
	Hash   OrderHash
	Signer common.Address
	Pool   PoolID

	TokenIn  common.Address
	TokenOut common.Address

	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	MinPrice     Ray // alternative to MinAmountOut; whichever is set governs

	Deadline  uint64 // block number, for standing orders
	ValidBlock uint64 // exact block, for flash/top-of-block orders

	Respend   RespendGuard
	Signature []byte

	Priority Priority

	// Composable is non-nil when this order wraps another with hook
	// bytecode attached (spec.md "Composable" kind).
	Composable *Hook

	// Remaining tracks outstanding amount for a partially filled order.
	// Only meaningful once a partial fill has occurred.
	Remaining *uint256.Int
}

// IsPartial reports whether this order's kind may be partially filled
// (standing-partial or flash-partial). Order itself carries no bid/ask
// flag: it stores raw token direction, and the pool storage's book
// assembly classifies each order as a bid or an ask.
func (o *Order) IsPartial() bool {
	switch o.Kind {
	case KindStandingPartial, KindFlashPartial:
		return true
	default:
		return false
	}
}

// IsAMM is always false for a real book order. The matcher's synthetic AMM
// and composite entries are its own entry type, not Orders, and track
// their kind there.
func (o *Order) IsAMM() bool { return false }

// IsComposite reports whether this order carries hook bytecode.
func (o *Order) IsComposite() bool { return o.Composable != nil }

// IsTopOfBlock reports whether this is a searcher order.
func (o *Order) IsTopOfBlock() bool { return o.Kind == KindTopOfBlock }

// Price returns the order's limit price.
func (o *Order) Price() Ray { return o.Priority.Price }

// Quantity returns the quantity fillable against a counterparty price of
// atPrice, bounded by what remains of the order. For book orders this is
// simply the remaining amount; the matcher's AMM/Composite entries compute
// their own quantity in matching/entry.go.
func (o *Order) Quantity(atPrice Ray) *uint256.Int {
	remaining := o.RemainingAmount()
	_ = atPrice // book orders do not reprice against the counterparty
	return remaining
}

// RemainingAmount returns the unfilled amount-in of this order.
func (o *Order) RemainingAmount() *uint256.Int {
	if o.Remaining != nil {
		return new(uint256.Int).Set(o.Remaining)
	}
	if o.AmountIn != nil {
		return new(uint256.Int).Set(o.AmountIn)
	}
	return new(uint256.Int)
}

// Fill reduces the order's remaining amount by matched and returns whether
// the order is now completely filled.
func (o *Order) Fill(matched *uint256.Int) (complete bool) {
	remaining := o.RemainingAmount()
	if matched.Cmp(remaining) >= 0 {
		o.Remaining = new(uint256.Int)
		o.State = StateFilled
		return true
	}
	o.Remaining = new(uint256.Int).Sub(remaining, matched)
	return false
}
