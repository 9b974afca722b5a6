package types

import "github.com/holiman/uint256"

// DebtKind distinguishes whether a Debt fragment represents inventory the
// matcher owes in (it must buy) or out (it must sell) of the pool.
type DebtKind uint8

const (
	DebtExactIn DebtKind = iota
	DebtExactOut
)

// Debt models unsettled inventory left over from a prior partial fill
// within a running round (spec.md section 9 "Debt tracking" design note).
// It is a plain value type, never a reference into the book: composite
// orders carry a copy, and the matcher's single source of truth is its
// own debt field, mutated only through SetPrice / PartialFill below.
type Debt struct {
	Kind   DebtKind
	Amount *uint256.Int
	Price  Ray
}

// IsZero reports whether there is no outstanding debt.
func (d *Debt) IsZero() bool {
	return d == nil || d.Amount == nil || d.Amount.IsZero()
}

// SetPrice returns a copy of d with its price replaced, leaving d
// unmodified (pure operation, per spec.md section 9).
func (d Debt) SetPrice(p Ray) Debt {
	d.Price = p
	return d
}

// PartialFill returns a copy of d with matched amount removed, leaving d
// unmodified.
func (d Debt) PartialFill(matched *uint256.Int) Debt {
	out := d
	remaining := new(uint256.Int)
	if d.Amount != nil {
		remaining.Set(d.Amount)
	}
	if matched.Cmp(remaining) >= 0 {
		out.Amount = new(uint256.Int)
	} else {
		out.Amount = new(uint256.Int).Sub(remaining, matched)
	}
	return out
}
