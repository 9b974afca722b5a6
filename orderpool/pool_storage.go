package orderpool

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/angstrom-node/angstrom/types"
)

// PoolStorage is the in-memory, hash-indexed source of truth for every
// order the Indexer knows about, plus a secondary address index used for
// re-validating a signer's resting orders on balance changes (spec.md
// section 4.1 step 2). It is owned exclusively by the Indexer — spec.md
// section 4.1: "single point of mutation for the order pool".
type PoolStorage struct {
	mu sync.RWMutex

	byHash    map[types.OrderHash]*types.Order
	byAddress map[common.Address]map[types.OrderHash]struct{}

	books        *Books
	finalizedAt  uint64
}

func NewPoolStorage() *PoolStorage {
	return &PoolStorage{
		byHash:    make(map[types.OrderHash]*types.Order),
		byAddress: make(map[common.Address]map[types.OrderHash]struct{}),
		books:     NewBooks(),
	}
}

// Contains reports whether hash is already known (spec.md section 8,
// testable property 1: ingestion is idempotent on hash).
func (s *PoolStorage) Contains(hash types.OrderHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byHash[hash]
	return ok
}

// Insert adds o to storage and its book, a no-op if the hash already
// exists (idempotent ingestion, spec.md section 8 property 1).
func (s *PoolStorage) Insert(o *types.Order) (inserted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHash[o.Hash]; exists {
		return false
	}
	s.byHash[o.Hash] = o
	addrSet, ok := s.byAddress[o.Signer]
	if !ok {
		addrSet = make(map[types.OrderHash]struct{})
		s.byAddress[o.Signer] = addrSet
	}
	addrSet[o.Hash] = struct{}{}

	book := s.books.GetOrCreate(o.Pool)
	switch {
	case o.IsTopOfBlock():
		book.SetTopOfBlock(o)
	default:
		if isBidSide(o) {
			book.AddBid(o)
		} else {
			book.AddAsk(o)
		}
	}
	return true
}

// isBidSide is a pool-local convention: an order is a bid if its TokenIn
// address sorts after its TokenOut address (buying the lower-sorting
// token), ask otherwise. The indexer's RPC/peer ingestion path assigns
// this at admission time based on the pool's canonical token ordering;
// storage itself only needs a stable, deterministic split.
func isBidSide(o *types.Order) bool {
	return o.TokenOut.Cmp(o.TokenIn) < 0
}

// Get returns the order for hash, if known.
func (s *PoolStorage) Get(hash types.OrderHash) (*types.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byHash[hash]
	return o, ok
}

// Remove deletes an order from storage, from its owner's address index and
// from its pool's book (bid or ask side, or the top-of-block slot), so a
// removed or filled order is not offered to the matcher again. The other
// book entries keep their relative order.
func (s *PoolStorage) Remove(hash types.OrderHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byHash[hash]
	if !ok {
		return
	}
	delete(s.byHash, hash)
	if addrSet, ok := s.byAddress[o.Signer]; ok {
		delete(addrSet, hash)
		if len(addrSet) == 0 {
			delete(s.byAddress, o.Signer)
		}
	}
	if book := s.books.Get(o.Pool); book != nil {
		for _, side := range []*[]*types.Order{&book.Bids, &book.Asks} {
			for i, bo := range *side {
				if bo.Hash == hash {
					*side = append((*side)[:i:i], (*side)[i+1:]...)
					break
				}
			}
		}
		if book.TopOfBlock == o {
			book.TopOfBlock = nil
		}
	}
}

// OrdersFor returns every resting order hash belonging to addr, used to
// re-evaluate balances on a block transition (spec.md section 4.1 step 2).
func (s *PoolStorage) OrdersFor(addr common.Address) []types.OrderHash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.byAddress[addr]
	if !ok {
		return nil
	}
	out := make([]types.OrderHash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// Books exposes the pool's book-assembly surface to the matching engine.
func (s *PoolStorage) Books() *Books { return s.books }

// CompactFinalized records the finalized height; hashes at and below it
// become immutable to future reorgs (spec.md section 4.1 "Finalization").
// Storage itself does not discard state at this point — finalization only
// changes whether Reorg below height is honored, checked by the Indexer.
func (s *PoolStorage) CompactFinalized(height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if height > s.finalizedAt {
		s.finalizedAt = height
	}
}

// FinalizedHeight returns the highest height below which order state is
// immutable to reorgs.
func (s *PoolStorage) FinalizedHeight() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalizedAt
}
