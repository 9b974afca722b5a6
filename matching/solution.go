package matching

import (
	"github.com/holiman/uint256"

	"github.com/angstrom-node/angstrom/orderpool"
	"github.com/angstrom-node/angstrom/types"
)

// Solve runs a full match over book and assembles the PoolSolution,
// mapping bid/ask indices back to their OrderHash/OrderFillState (spec.md
// section 4.4 step 8). Returns the end reason alongside the solution so
// callers can distinguish a clean NoMoreBids/NoMoreAsks/NoLongerCross stop
// from an EndErrorEncountered that truncated the solution.
func Solve(book *orderpool.OrderBook) (types.PoolSolution, EndReason) {
	m := New(book)
	reason := m.RunMatch()
	if reason == EndErrorEncountered {
		m.Rollback()
	}
	return m.Solution(), reason
}

// Solution assembles the matcher's current state into a PoolSolution.
func (m *Matcher) Solution() types.PoolSolution {
	sol := types.PoolSolution{
		Pool: m.book.Pool,
		UCP:  m.results.Price,
	}
	if !m.results.AMMVolume.IsZero() {
		sol.AMMQuantity = m.results.AMMVolume
		sol.AMMDirection = m.results.AMMNetBid
	}

	for i, o := range m.book.Bids {
		if fs, ok := fillStateFor(m.bidOutcomes[i], o); ok {
			sol.Limit = append(sol.Limit, fs)
		}
	}
	for i, o := range m.book.Asks {
		if fs, ok := fillStateFor(m.askOutcomes[i], o); ok {
			sol.Limit = append(sol.Limit, fs)
		}
	}
	if m.book.TopOfBlock != nil {
		sol.Searcher = &types.OrderFillState{
			OrderHash:     m.book.TopOfBlock.Hash,
			Kind:          types.FillComplete,
			MatchedAmount: m.book.TopOfBlock.RemainingAmount(),
		}
	}
	return sol
}

func fillStateFor(o orderOutcome, order *types.Order) (types.OrderFillState, bool) {
	switch {
	case o.filled:
		return types.OrderFillState{
			OrderHash:     order.Hash,
			Kind:          types.FillComplete,
			MatchedAmount: order.AmountIn,
		}, true
	case o.partial:
		matched := o.matched
		if matched == nil {
			matched = new(uint256.Int)
		}
		return types.OrderFillState{
			OrderHash:     order.Hash,
			Kind:          types.FillPartial,
			MatchedAmount: matched,
		}, true
	default:
		return types.OrderFillState{}, false
	}
}
