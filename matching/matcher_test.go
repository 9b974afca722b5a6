package matching

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/angstrom-node/angstrom/amm"
	"github.com/angstrom-node/angstrom/orderpool"
	"github.com/angstrom-node/angstrom/types"
)

// ammSnapshotAtK builds a PoolSnapshot whose price is exactly k^2 (a perfect
// square keeps AsRay()'s sqrt-then-square round trip exact), with the given
// liquidity active at the current tick.
func ammSnapshotAtK(k, liquidity uint64) amm.PoolSnapshot {
	sqrtPriceX96 := new(uint256.Int).Mul(uint256.NewInt(k), amm.Q96)
	return amm.PoolSnapshot{
		Price:     amm.PoolPrice{SqrtPriceX96: sqrtPriceX96},
		Liquidity: uint256.NewInt(liquidity),
	}
}

func bookOrder(hash byte, price uint64, size uint64, partial bool) *types.Order {
	kind := types.KindStandingExact
	if partial {
		kind = types.KindStandingPartial
	}
	amt := new(uint256.Int).SetUint64(size)
	return &types.Order{
		Kind:     kind,
		Hash:     common.Hash{hash},
		AmountIn: amt,
		Priority: types.Priority{Price: types.RayFromUint64(price)},
	}
}

func TestEmptyBookNoAMM(t *testing.T) {
	book := &orderpool.OrderBook{}
	sol, reason := Solve(book)
	require.Equal(t, EndNoMoreBids, reason)
	require.True(t, sol.UCP.IsZero())
	require.Empty(t, sol.Limit)
}

func TestSingleBidAskCrossing(t *testing.T) {
	book := &orderpool.OrderBook{}
	book.AddBid(bookOrder(1, 10, 100, false))
	book.AddAsk(bookOrder(2, 5, 100, false))

	sol, reason := Solve(book)
	require.Equal(t, EndNoMoreBids, reason)
	require.Equal(t, types.RayFromUint64(10).Mid(types.RayFromUint64(5)).String(), sol.UCP.String())
	require.Len(t, sol.Limit, 2)
	for _, fs := range sol.Limit {
		require.Equal(t, types.FillComplete, fs.Kind)
	}
}

func TestBidOutweighsAsk(t *testing.T) {
	book := &orderpool.OrderBook{}
	book.AddBid(bookOrder(1, 1_000_000_000, 100, true))
	book.AddAsk(bookOrder(2, 1_000, 10, false))

	sol, _ := Solve(book)
	require.Equal(t, types.RayFromUint64(1_000_000_000).String(), sol.UCP.String())
	require.Len(t, sol.Limit, 2)
	for _, fs := range sol.Limit {
		if fs.OrderHash == (common.Hash{1}) {
			require.Equal(t, types.FillPartial, fs.Kind)
			require.Equal(t, uint64(10), fs.MatchedAmount.Uint64())
		}
		if fs.OrderHash == (common.Hash{2}) {
			require.Equal(t, types.FillComplete, fs.Kind)
		}
	}
}

func TestAskOutweighsBid(t *testing.T) {
	book := &orderpool.OrderBook{}
	book.AddAsk(bookOrder(2, 1_000, 100, true))
	book.AddBid(bookOrder(1, 1_000_000_000, 10, false))

	sol, _ := Solve(book)
	require.Equal(t, types.RayFromUint64(1_000).String(), sol.UCP.String())
	for _, fs := range sol.Limit {
		if fs.OrderHash == (common.Hash{2}) {
			require.Equal(t, types.FillPartial, fs.Kind)
			require.Equal(t, uint64(10), fs.MatchedAmount.Uint64())
		}
		if fs.OrderHash == (common.Hash{1}) {
			require.Equal(t, types.FillComplete, fs.Kind)
		}
	}
}

func TestCheckpointMonotonicVolume(t *testing.T) {
	book := &orderpool.OrderBook{}
	book.AddBid(bookOrder(1, 10, 100, false))
	book.AddBid(bookOrder(3, 9, 50, false))
	book.AddAsk(bookOrder(2, 5, 30, false))
	book.AddAsk(bookOrder(4, 6, 120, false))

	m := New(book)
	for m.SingleMatch() == EndNone {
		require.True(t, m.checkpoint.results.TotalVolume.Cmp(m.results.TotalVolume) <= 0)
	}
}

func TestFilledOrderNotReofferedAfterBlockAdvance(t *testing.T) {
	store := orderpool.NewPoolStorage()
	o := bookOrder(1, 10, 100, false)
	o.Pool = common.Hash{9}
	o.TokenIn = common.Address{1}
	o.TokenOut = common.Address{2}
	require.True(t, store.Insert(o))

	filled := orderpool.FilledSet([]types.OrderHash{o.Hash})
	require.True(t, filled.Contains(o.Hash))
	store.Remove(o.Hash)
	require.False(t, store.Contains(o.Hash))
	book := store.Books().Get(o.Pool)
	require.Empty(t, book.Bids)
	require.Empty(t, book.Asks)
}

// TestZeroAskDebtConsumesDebtThenFillsRealBookOrder exercises spec.md
// section 4.4 step 4's ask-side two-step fill: the debt's Composite entry
// reports zero room because the AMM has no room to the book's bound price,
// so single_match falls through to handleZeroAskDebt, matches the debt
// against the real ask order waiting beyond it, then on the next iteration
// crosses what remains of that ask directly against the bid before the
// exhausted AMM halts the match with no room left to offer.
func TestZeroAskDebtConsumesDebtThenFillsRealBookOrder(t *testing.T) {
	book := &orderpool.OrderBook{}
	book.AddBid(bookOrder(1, 10, 1000, true))
	book.AddAsk(bookOrder(2, 9, 200, false))
	snap := ammSnapshotAtK(3, 1) // price 9, exactly at the ask's bound: no AMM room
	book.AMM = &snap

	m := New(book)
	m.SetDebt(&types.Debt{Kind: types.DebtExactOut, Amount: uint256.NewInt(50), Price: types.RayFromUint64(4)})

	reason := m.RunMatch()
	require.Equal(t, EndZeroQuantity, reason)
	require.True(t, m.debt.IsZero())

	sol := m.Solution()
	require.Len(t, sol.Limit, 2)
	for _, fs := range sol.Limit {
		if fs.OrderHash == (common.Hash{1}) {
			require.Equal(t, types.FillPartial, fs.Kind)
			require.Equal(t, uint64(150), fs.MatchedAmount.Uint64())
		}
		if fs.OrderHash == (common.Hash{2}) {
			require.Equal(t, types.FillComplete, fs.Kind)
			require.Equal(t, uint64(200), fs.MatchedAmount.Uint64())
		}
	}
}

// TestBidSideCompositeEmissionMovesBothDebtAndAMM exercises spec.md section
// 4.3's Composite(debt, amm) construction on the bid side: the debt beats
// the bid's own resting order, the AMM leg riding along with it has real
// room short of the full debt amount, and matching it must shrink both the
// debt and the AMM snapshot together rather than only one of them.
func TestBidSideCompositeEmissionMovesBothDebtAndAMM(t *testing.T) {
	book := &orderpool.OrderBook{}
	book.AddBid(bookOrder(1, 15, 100, false))
	book.AddAsk(bookOrder(2, 3, 1000, true))
	snap := ammSnapshotAtK(3, 100) // price 9, liquidity 100
	book.AMM = &snap

	m := New(book)
	m.SetDebt(&types.Debt{Kind: types.DebtExactIn, Amount: uint256.NewInt(50), Price: types.RayFromUint64(20)})

	reason := m.SingleMatch()
	require.Equal(t, EndNone, reason)

	require.Equal(t, uint64(10), m.debt.Amount.Uint64())
	require.Equal(t, uint64(40), m.results.AMMVolume.Uint64())
	require.True(t, m.results.AMMNetBid)
	require.Equal(t, uint64(40), m.results.TotalVolume.Uint64())

	require.True(t, m.askOutcomes[0].partial)
	require.Equal(t, uint64(40), m.askOutcomes[0].matched.Uint64())
}
