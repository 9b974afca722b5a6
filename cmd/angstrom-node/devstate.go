package main

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// devChainState is a minimal in-memory StateReader/PoolResolver for
// running this node without a live EVM state database attached — the real
// implementation is a clone-on-handle over the embedding node's state (an
// external collaborator per spec.md section 5), grounded in shape on
// ethclient/simulated's self-contained backend used for standalone runs
// and tests in the teacher's own ethclient/simulated package.
type devChainState struct {
	mu           sync.RWMutex
	block        uint64
	balances     map[common.Address]map[common.Address]*uint256.Int
	allowances   map[common.Address]map[common.Address]map[common.Address]*uint256.Int
	usedNonces   map[common.Address]map[uint64]bool
	pools        map[common.Hash][2]common.Address
}

func newDevChainState() *devChainState {
	return &devChainState{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int),
		usedNonces: make(map[common.Address]map[uint64]bool),
		pools:      make(map[common.Hash][2]common.Address),
	}
}

func (s *devChainState) BalanceOf(_ context.Context, token, owner common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bal, ok := s.balances[token][owner]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return new(uint256.Int), nil
}

func (s *devChainState) AllowanceOf(_ context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.allowances[token][owner][spender]; ok {
		return new(uint256.Int).Set(a), nil
	}
	return new(uint256.Int), nil
}

func (s *devChainState) NonceUsed(_ context.Context, owner common.Address, nonce uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedNonces[owner][nonce], nil
}

func (s *devChainState) CurrentBlock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.block
}

func (s *devChainState) Pool(id common.Hash) (tokenIn, tokenOut common.Address, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, found := s.pools[id]
	if !found {
		return common.Address{}, common.Address{}, false
	}
	return pair[0], pair[1], true
}

// Advance sets the current block, the hook a real driver would call on
// every canonical-state update.
func (s *devChainState) Advance(height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = height
}
