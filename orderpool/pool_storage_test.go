package orderpool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/angstrom-node/angstrom/types"
)

func testOrder(hash string, signer common.Address, pool common.Hash) *types.Order {
	return &types.Order{
		Kind:     types.KindStandingExact,
		Hash:     common.HexToHash(hash),
		Signer:   signer,
		Pool:     pool,
		TokenIn:  common.HexToAddress("0x1"),
		TokenOut: common.HexToAddress("0x2"),
		AmountIn: uint256.NewInt(10),
		Priority: types.Priority{Price: types.RayFromUint64(1), Volume: uint256.NewInt(10)},
	}
}

func TestPoolStorageInsertIsIdempotentOnHash(t *testing.T) {
	s := NewPoolStorage()
	signer := common.HexToAddress("0xa1")
	pool := common.HexToHash("0xaa")
	o := testOrder("0x1", signer, pool)

	require.True(t, s.Insert(o))
	require.False(t, s.Insert(o)) // second insert of the same hash is a no-op
	require.True(t, s.Contains(o.Hash))
}

func TestPoolStorageRemove(t *testing.T) {
	s := NewPoolStorage()
	signer := common.HexToAddress("0xa1")
	pool := common.HexToHash("0xaa")
	o := testOrder("0x1", signer, pool)
	s.Insert(o)

	s.Remove(o.Hash)
	require.False(t, s.Contains(o.Hash))
	require.Empty(t, s.OrdersFor(signer))
}

func TestPoolStorageOrdersForTracksBySigner(t *testing.T) {
	s := NewPoolStorage()
	signer := common.HexToAddress("0xa1")
	pool := common.HexToHash("0xaa")
	o1 := testOrder("0x1", signer, pool)
	o2 := testOrder("0x2", signer, pool)
	other := testOrder("0x3", common.HexToAddress("0xb2"), pool)

	s.Insert(o1)
	s.Insert(o2)
	s.Insert(other)

	hashes := s.OrdersFor(signer)
	require.ElementsMatch(t, []types.OrderHash{o1.Hash, o2.Hash}, hashes)
}

func TestPoolStorageCompactFinalizedIsMonotonic(t *testing.T) {
	s := NewPoolStorage()
	s.CompactFinalized(10)
	s.CompactFinalized(5) // must not regress
	require.Equal(t, uint64(10), s.FinalizedHeight())
	s.CompactFinalized(20)
	require.Equal(t, uint64(20), s.FinalizedHeight())
}

func TestPoolStorageInsertRoutesIntoBook(t *testing.T) {
	s := NewPoolStorage()
	pool := common.HexToHash("0xaa")
	// TokenOut sorts before TokenIn => bid side, per isBidSide convention.
	bid := testOrder("0x1", common.HexToAddress("0xa1"), pool)
	bid.TokenIn = common.HexToAddress("0x2")
	bid.TokenOut = common.HexToAddress("0x1")
	s.Insert(bid)

	book := s.Books().Get(pool)
	require.Len(t, book.Bids, 1)
	require.Empty(t, book.Asks)
}
