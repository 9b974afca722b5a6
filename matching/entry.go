// Package matching implements the volume-fill book solver described in
// spec.md section 4.4: a deterministic matcher that walks sorted bids and
// asks while concurrently consuming AMM liquidity and accumulated debt
// fragments, producing a Uniform Clearing Price with checkpoint/rollback
// so partial solutions remain safe.
//
// Grounded primarily on original_source/crates/matching-engine/src/matcher/volume.rs
// (the teacher repo has no equivalent batch-auction solver; this is the
// one component built from the Rust original, translated into idiomatic
// Go rather than transliterated) and spec.md section 4.4's eight-step
// algorithm description.
package matching

import (
	"github.com/holiman/uint256"

	"github.com/angstrom-node/angstrom/amm"
	"github.com/angstrom-node/angstrom/types"
)

// entryKind tags what kind of counterparty single_match is looking at for
// one side of the book (spec.md section 9 "Polymorphic orders" design
// note, applied here to matcher entries rather than stored orders).
type entryKind uint8

const (
	entryBook entryKind = iota
	entryAMM
	entryComposite
)

// entry is the matcher's view of "the next thing to match against" on one
// side of the book: a real book order, a synthetic AMM order, or a
// synthetic Composite(debt, optional amm) order bounded by the next real
// book order's price (spec.md section 4.3 "Composite order construction").
type entry struct {
	kind      entryKind
	bookIndex int // valid only if kind == entryBook
	order     *types.Order
	debt      *types.Debt
	boundPrice types.Ray // the next real book order's price, for amm/composite
	isBid     bool
}

func (e entry) isAMM() bool       { return e.kind == entryAMM }
func (e entry) isComposite() bool { return e.kind == entryComposite }
func (e entry) isDebt() bool      { return e.kind == entryComposite }

// price returns the entry's matching price: the order's limit price for a
// book entry, the debt's price for a composite entry (spec.md section
// 4.4 step 1: "If debt exists ... emit a Composite(debt, optional amm)
// bounded by the next book order's price"), or the bound price for a bare
// AMM entry (it is only ever offered up to boundPrice).
func (e entry) price(snap *amm.PoolSnapshot) types.Ray {
	switch e.kind {
	case entryBook:
		return e.order.Price()
	case entryComposite:
		return e.debt.Price
	case entryAMM:
		return e.boundPrice
	}
	return types.ZeroRay()
}

// quantity returns how much of this entry is available against a
// counterparty price of atPrice. Non-AMM book orders ignore atPrice
// (spec.md section 4.4 step 3: "for book orders it is min(remaining,
// max_amount_in)"). AMM entries cap themselves at the amount that would
// not overshoot the nearer of atPrice and their boundPrice; Composite
// entries ignore atPrice and report compositeRoom, which is bounded by
// boundPrice.
func (e entry) quantity(atPrice types.Ray, snap *amm.PoolSnapshot) *uint256.Int {
	switch e.kind {
	case entryBook:
		return e.order.RemainingAmount()
	case entryAMM:
		if snap == nil {
			return new(uint256.Int)
		}
		target := atPrice
		if !e.boundPrice.IsZero() {
			if e.isBid && e.boundPrice.LessThan(atPrice) {
				target = e.boundPrice
			} else if !e.isBid && e.boundPrice.GreaterThan(atPrice) {
				target = e.boundPrice
			}
		}
		return snap.QuantityToPrice(target, e.isBid)
	case entryComposite:
		return e.compositeRoom(snap)
	}
	return new(uint256.Int)
}

// compositeRoom is the quantity a Composite(debt, optional amm) entry can
// expose right now: the debt amount itself when there is no AMM leg or no
// real order yet bounding it, or the smaller of the debt amount and the AMM
// room between the current price and boundPrice otherwise (spec.md section
// 4.3 "bounded by the next real book order's price"). Once that room is
// exhausted the entry reports zero even though debt remains outstanding,
// which is exactly the trigger for spec.md section 4.4 step 4: the matcher
// must then look past the debt at the real order waiting beyond the bound.
func (e entry) compositeRoom(snap *amm.PoolSnapshot) *uint256.Int {
	if e.debt.IsZero() {
		return new(uint256.Int)
	}
	if snap == nil || e.boundPrice.IsZero() {
		return new(uint256.Int).Set(e.debt.Amount)
	}
	room := snap.QuantityToPrice(e.boundPrice, e.isBid)
	if room.Cmp(e.debt.Amount) < 0 {
		return room
	}
	return new(uint256.Int).Set(e.debt.Amount)
}

// negativeQuantity is the debt-only view used by the zero-ask-with-debt
// special case (spec.md section 4.4 step 4): how much debt exists,
// independent of any AMM leg riding along with it.
func (e entry) negativeQuantity() *uint256.Int {
	if e.kind != entryComposite || e.debt == nil || e.debt.Amount == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(e.debt.Amount)
}
