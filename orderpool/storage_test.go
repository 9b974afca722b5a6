package orderpool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/angstrom-node/angstrom/types"
)

func bookOrder(hash string, price uint64, volume uint64) *types.Order {
	return &types.Order{
		Hash:     common.HexToHash(hash),
		AmountIn: uint256.NewInt(volume),
		Priority: types.Priority{Price: types.RayFromUint64(price), Volume: uint256.NewInt(volume)},
	}
}

func TestOrderBookAddBidSortsDescendingByPriceThenVolume(t *testing.T) {
	b := &OrderBook{}
	b.AddBid(bookOrder("0x1", 1, 10))
	b.AddBid(bookOrder("0x2", 3, 10))
	b.AddBid(bookOrder("0x3", 2, 10))
	b.AddBid(bookOrder("0x4", 2, 20)) // same price as 0x3, larger volume sorts first

	require.Len(t, b.Bids, 4)
	require.Equal(t, common.HexToHash("0x2"), b.Bids[0].Hash)
	require.Equal(t, common.HexToHash("0x4"), b.Bids[1].Hash)
	require.Equal(t, common.HexToHash("0x3"), b.Bids[2].Hash)
	require.Equal(t, common.HexToHash("0x1"), b.Bids[3].Hash)
}

func TestOrderBookAddAskSortsAscendingByPriceThenVolume(t *testing.T) {
	b := &OrderBook{}
	b.AddAsk(bookOrder("0x1", 3, 10))
	b.AddAsk(bookOrder("0x2", 1, 10))
	b.AddAsk(bookOrder("0x3", 2, 10))
	b.AddAsk(bookOrder("0x4", 2, 20))

	require.Len(t, b.Asks, 4)
	require.Equal(t, common.HexToHash("0x2"), b.Asks[0].Hash)
	require.Equal(t, common.HexToHash("0x4"), b.Asks[1].Hash)
	require.Equal(t, common.HexToHash("0x3"), b.Asks[2].Hash)
	require.Equal(t, common.HexToHash("0x1"), b.Asks[3].Hash)
}

func TestOrderBookSetTopOfBlockWinnerTakesAllByBid(t *testing.T) {
	b := &OrderBook{}
	low := bookOrder("0x1", 1, 10)
	high := bookOrder("0x2", 5, 10)
	b.SetTopOfBlock(low)
	require.Equal(t, low, b.TopOfBlock)

	b.SetTopOfBlock(high)
	require.Equal(t, high, b.TopOfBlock)

	// A lower bid arriving after does not displace the current winner.
	b.SetTopOfBlock(low)
	require.Equal(t, high, b.TopOfBlock)
}

func TestBooksSnapshotIsShallowCopy(t *testing.T) {
	books := NewBooks()
	pool := common.HexToHash("0xaa")
	ob := books.GetOrCreate(pool)
	ob.AddBid(bookOrder("0x1", 1, 10))

	snap := books.Snapshot()
	require.Same(t, ob, snap[pool])

	// Mutating the live book after the snapshot is visible through the
	// shared pointer, since Snapshot only copies the map, not the books.
	ob.AddBid(bookOrder("0x2", 2, 10))
	require.Len(t, snap[pool].Bids, 2)
}

func TestFilledSetContainsAllHashes(t *testing.T) {
	hashes := []types.OrderHash{common.HexToHash("0x1"), common.HexToHash("0x2")}
	set := FilledSet(hashes)
	require.True(t, set.Contains(common.HexToHash("0x1")))
	require.True(t, set.Contains(common.HexToHash("0x2")))
	require.False(t, set.Contains(common.HexToHash("0x3")))
	require.Equal(t, 2, set.Cardinality())
}
