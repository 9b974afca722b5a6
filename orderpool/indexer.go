package orderpool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	alog "github.com/angstrom-node/angstrom/log"
	"github.com/angstrom-node/angstrom/metrics"
	"github.com/angstrom-node/angstrom/types"
)

// OrderOrigin distinguishes how an order arrived, used to decide whether a
// validation failure should also dent a peer's reputation.
type OrderOrigin int

const (
	OriginRPC OrderOrigin = iota
	OriginNetwork
)

// PoolManagerUpdate is broadcast on every newly-valid order, the
// subscription surface of spec.md section 4.1.
type PoolManagerUpdate struct {
	Order *types.Order
}

// NewBlockTransitions is the reactive sink fired once per new block,
// carrying exactly the fields spec.md section 4.1 names.
type NewBlockTransitions struct {
	Height           uint64
	FilledOrders     []types.OrderHash
	AddressChangeset []common.Address
}

// ReorgedOrders is the single update emitted after processing a reorg
// (spec.md section 4.1 "Reorg protocol").
type ReorgedOrders struct {
	Restored []types.OrderHash
	Dropped  []types.OrderHash
}

type rpcRequest struct {
	ctx    context.Context
	order  *types.Order
	result chan ValidationResult
}

type networkRequest struct {
	peer  PeerID
	order *types.Order
}

// ValidityPredicate re-checks an order against current chain state,
// without a full revalidation pass; used by the reorg protocol (spec.md
// section 4.1: "if the order still meets its validity predicate").
type ValidityPredicate func(ctx context.Context, o *types.Order) bool

// Indexer is the order-pool indexer / pool manager: the single point of
// mutation for PoolStorage (spec.md section 4.1). Grounded on
// core/txpool/txpool.go's New/loop structure: one goroutine owns the pool,
// driven by channel receives in the fixed priority order spec.md section 5
// mandates (block transitions -> network events -> RPC commands -> order
// events -> indexer output).
type Indexer struct {
	log   alog.Logger
	store *PoolStorage
	val   *OrderValidator
	peers *PeerSet

	blockCh   chan NewBlockTransitions
	reorgCh   chan ReorgRequest
	finalCh   chan uint64
	rpcCh     chan rpcRequest
	networkCh chan networkRequest

	updates chan PoolManagerUpdate
	reorgs  chan ReorgedOrders

	currentBlock uint64
	predicate    ValidityPredicate

	done chan struct{}
}

// ReorgRequest carries a set of reverted order hashes to re-evaluate
// (spec.md section 4.1 "Reorg protocol").
type ReorgRequest struct {
	RevertedHashes []types.OrderHash
}

// NewIndexer builds an Indexer ready to Run.
func NewIndexer(store *PoolStorage, val *OrderValidator, peers *PeerSet, predicate ValidityPredicate) *Indexer {
	return &Indexer{
		log:       alog.New("orderpool.indexer"),
		store:     store,
		val:       val,
		peers:     peers,
		blockCh:   make(chan NewBlockTransitions, 1),
		reorgCh:   make(chan ReorgRequest, 1),
		finalCh:   make(chan uint64, 1),
		rpcCh:     make(chan rpcRequest, 256),
		networkCh: make(chan networkRequest, 1024),
		updates:   make(chan PoolManagerUpdate, 100), // bounded, lossy (spec.md section 5)
		reorgs:    make(chan ReorgedOrders, 8),
		predicate: predicate,
		done:      make(chan struct{}),
	}
}

// NewRPCOrder validates then stores order, responding once with the
// outcome (spec.md section 4.1).
func (idx *Indexer) NewRPCOrder(ctx context.Context, order *types.Order) <-chan ValidationResult {
	result := make(chan ValidationResult, 1)
	select {
	case idx.rpcCh <- rpcRequest{ctx: ctx, order: order, result: result}:
	case <-ctx.Done():
		result <- ValidationResult{Kind: ResultInvalid, Order: order, Err: ctx.Err()}
	}
	return result
}

// NewNetworkOrder validates then stores order received from peer; a
// failure emits a reputation change against peer (spec.md section 4.1).
func (idx *Indexer) NewNetworkOrder(peer PeerID, order *types.Order) {
	select {
	case idx.networkCh <- networkRequest{peer: peer, order: order}:
	default:
		idx.log.Warn("dropping network order, channel full", "peer", peer, "hash", order.Hash)
	}
}

// SubscribeUpdates returns the broadcast stream of newly-valid orders.
func (idx *Indexer) SubscribeUpdates() <-chan PoolManagerUpdate { return idx.updates }

// SubscribeReorgs returns the broadcast stream of reorg outcomes.
func (idx *Indexer) SubscribeReorgs() <-chan ReorgedOrders { return idx.reorgs }

// OnBlockTransition feeds a new-block notification to the indexer.
func (idx *Indexer) OnBlockTransition(t NewBlockTransitions) { idx.blockCh <- t }

// OnReorg feeds a reorg notification to the indexer.
func (idx *Indexer) OnReorg(r ReorgRequest) { idx.reorgCh <- r }

// OnFinalization feeds a finalized-height notification to the indexer.
func (idx *Indexer) OnFinalization(height uint64) { idx.finalCh <- height }

// Storage exposes the underlying storage for the matching engine's
// round-start snapshot.
func (idx *Indexer) Storage() *PoolStorage { return idx.store }

// Run drives the indexer until ctx is cancelled. It drains its inbound
// channels in the fixed priority order spec.md section 5 mandates; this
// priority is part of the contract and must not be reordered.
func (idx *Indexer) Run(ctx context.Context) {
	defer close(idx.done)
	for {
		// 1. block transitions
		select {
		case t := <-idx.blockCh:
			idx.handleBlockTransition(ctx, t)
			continue
		default:
		}
		// also drain reorg/finalization at the same priority tier, since
		// they are all block-stream-driven notifications.
		select {
		case r := <-idx.reorgCh:
			idx.handleReorg(ctx, r)
			continue
		default:
		}
		select {
		case h := <-idx.finalCh:
			idx.handleFinalization(h)
			continue
		default:
		}
		// 2. network events
		select {
		case req := <-idx.networkCh:
			idx.handleNetworkOrder(ctx, req)
			continue
		default:
		}
		// 3. RPC commands
		select {
		case req := <-idx.rpcCh:
			idx.handleRPCOrder(req)
			continue
		default:
		}
		// Nothing ready: block on everything, including ctx cancellation.
		select {
		case <-ctx.Done():
			return
		case t := <-idx.blockCh:
			idx.handleBlockTransition(ctx, t)
		case r := <-idx.reorgCh:
			idx.handleReorg(ctx, r)
		case h := <-idx.finalCh:
			idx.handleFinalization(h)
		case req := <-idx.networkCh:
			idx.handleNetworkOrder(ctx, req)
		case req := <-idx.rpcCh:
			idx.handleRPCOrder(req)
		}
	}
}

func (idx *Indexer) handleRPCOrder(req rpcRequest) {
	res := idx.admit(req.ctx, req.order, OriginRPC, "")
	select {
	case req.result <- res:
	default:
		idx.log.Debug("rpc caller disconnected, dropping result", "hash", req.order.Hash)
	}
}

func (idx *Indexer) handleNetworkOrder(ctx context.Context, req networkRequest) {
	res := idx.admit(ctx, req.order, OriginNetwork, req.peer)
	if session, ok := idx.peers.Get(req.peer); ok {
		session.RecordSeen(req.order.Hash)
	}
	if res.Kind == ResultInvalid {
		idx.peers.ReportInvalidOrder(req.peer)
	}
}

// admit is the shared validate-then-store path for both origins.
func (idx *Indexer) admit(ctx context.Context, o *types.Order, origin OrderOrigin, peer PeerID) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			// A validator panic is recovered here, logged, and converted
			// into a typed invalid result for this order so the pool
			// itself keeps running; it does not fail the consensus round.
			idx.log.Error("validator panic", "hash", o.Hash, "recover", r)
			result = ValidationResult{Kind: ResultInvalid, Order: o, Err: fmt.Errorf("validator panic: %v", r)}
		}
	}()

	if idx.store.Contains(o.Hash) {
		metrics.OrdersDuplicate.Inc()
		return ValidationResult{Kind: ResultValid, Order: o}
	}

	res := idx.val.Validate(ctx, o, idx.currentBlock)
	switch res.Kind {
	case ResultValid:
		if idx.store.Insert(o) {
			metrics.OrdersAccepted.Inc()
			select {
			case idx.updates <- PoolManagerUpdate{Order: o}:
			default:
				idx.log.Debug("update channel full, dropping broadcast", "hash", o.Hash)
			}
		}
	case ResultInvalid:
		metrics.OrdersRejected.Inc()
	case ResultTransitioned:
		metrics.OrdersTransitioned.Inc()
	}
	return res
}

func (idx *Indexer) handleBlockTransition(ctx context.Context, t NewBlockTransitions) {
	// Step 1: remove every order whose hash is in filled_orders.
	filled := FilledSet(t.FilledOrders)
	for h := range filled.Iter() {
		if o, ok := idx.store.Get(h); ok {
			o.State = types.StateFilled
		}
		idx.store.Remove(h)
	}

	// Step 2: re-evaluate every changed address's resting orders.
	for _, addr := range t.AddressChangeset {
		for _, h := range idx.store.OrdersFor(addr) {
			o, ok := idx.store.Get(h)
			if !ok {
				continue
			}
			res := idx.val.Validate(ctx, o, t.Height)
			if res.Kind == ResultInvalid {
				o.State = types.StateInvalid
				idx.store.Remove(h)
				metrics.OrdersRejected.Inc()
			}
		}
	}

	// Step 3: advance current block, promote parked orders.
	idx.currentBlock = t.Height
	idx.promoteParked(t.Height)
}

func (idx *Indexer) promoteParked(height uint64) {
	for pool, book := range idx.store.Books().Snapshot() {
		for _, o := range append(append([]*types.Order{}, book.Bids...), book.Asks...) {
			if o.State == types.StateParked && o.ValidBlock == height {
				o.State = types.StateValid
			}
		}
		_ = pool
	}
}

func (idx *Indexer) handleReorg(ctx context.Context, r ReorgRequest) {
	finalized := idx.store.FinalizedHeight()
	var out ReorgedOrders
	for _, h := range r.RevertedHashes {
		o, ok := idx.store.Get(h)
		if !ok {
			// Already gone, or below the finalized range: immutable to
			// this reorg per spec.md section 4.1 "Finalization".
			continue
		}
		if idx.currentBlock <= finalized {
			continue
		}
		if idx.predicate != nil && idx.predicate(ctx, o) && !(o.Deadline != 0 && o.Deadline <= idx.currentBlock) {
			o.State = types.StateValid
			out.Restored = append(out.Restored, h)
		} else {
			idx.store.Remove(h)
			out.Dropped = append(out.Dropped, h)
		}
	}
	select {
	case idx.reorgs <- out:
	default:
		idx.log.Debug("reorg broadcast channel full, dropping")
	}
}

func (idx *Indexer) handleFinalization(height uint64) {
	idx.store.CompactFinalized(height)
}
