package simulate

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	alog "github.com/angstrom-node/angstrom/log"
	"github.com/angstrom-node/angstrom/types"
)

// BundleGasDetails is the outcome of a successful simulation (spec.md
// section 4.7): the per-token conversion table used to price gas against
// each involved asset, and the gas actually consumed.
type BundleGasDetails struct {
	ConversionTable map[common.Address]*uint256.Int
	GasUsed         uint64
}

// RevertError carries a forked-state call's revert reason, distinct from
// infrastructure errors (RPC failure, encoding failure) that Simulate may
// also return.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return fmt.Sprintf("bundle reverted: %s", e.Reason) }

// SettlementCaller runs one CallMsg against a forked state at height with
// balance checks disabled (spec.md section 4.7), returning the gas used or
// a revert reason. It is injected rather than implemented against a live
// EVM here, mirroring how interfaces.AcceptedContractCaller in the
// teacher's own interfaces/interfaces.go exposes CallContract as a thin
// ethereum.CallMsg-shaped seam over whatever backend (live chain, forked
// sim) sits behind it.
type SettlementCaller interface {
	CallExecute(ctx context.Context, call ethereum.CallMsg, height uint64) (gasUsed uint64, revertReason string, err error)
}

type simulationJob struct {
	ctx      context.Context
	contract common.Address
	bundle   *types.Bundle
	height   uint64
	result   chan simulationResult
}

type simulationResult struct {
	details BundleGasDetails
	err     error
}

// contractWorker owns one settlement contract's simulation queue,
// serializing calls against it so no two simulations read the same forked
// state root concurrently (spec.md section 4.7: "scheduled on a key-split
// thread pool keyed by settlement-contract address").
type contractWorker struct {
	jobs chan simulationJob
}

// Simulator is the Bundle Simulator: a key-split worker pool keyed by
// settlement-contract address, grounded on the teacher's
// core/txpool/txpool.go reservations map (one subpool exclusively owns an
// address at a time) generalized from "subpool ownership" to "one worker
// goroutine owns a contract address's simulation queue".
type Simulator struct {
	log     alog.Logger
	encoder BundleEncoder
	caller  SettlementCaller

	mu      sync.Mutex
	workers map[common.Address]*contractWorker

	queueDepth int
}

// NewSimulator builds a Simulator with workers created lazily per
// settlement-contract address on first use.
func NewSimulator(encoder BundleEncoder, caller SettlementCaller, queueDepth int) *Simulator {
	return &Simulator{
		log:        alog.New("simulate.simulator"),
		encoder:    encoder,
		caller:     caller,
		workers:    make(map[common.Address]*contractWorker),
		queueDepth: queueDepth,
	}
}

// Simulate encodes bundle and calls executeCall on contract at height+1
// against forked state, serialized per contract address. Returns
// BundleGasDetails on success, or an error — a *RevertError for an on-chain
// revert, any other error for an infrastructure failure (spec.md section
// 4.7).
func (s *Simulator) Simulate(ctx context.Context, contract common.Address, bundle *types.Bundle, height uint64) (BundleGasDetails, error) {
	worker := s.workerFor(contract)
	result := make(chan simulationResult, 1)
	job := simulationJob{ctx: ctx, contract: contract, bundle: bundle, height: height, result: result}

	select {
	case worker.jobs <- job:
	case <-ctx.Done():
		return BundleGasDetails{}, ctx.Err()
	}

	select {
	case res := <-result:
		return res.details, res.err
	case <-ctx.Done():
		return BundleGasDetails{}, ctx.Err()
	}
}

// Shutdown stops every worker goroutine. No further Simulate calls may be
// made once Shutdown returns.
func (s *Simulator) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		close(w.jobs)
	}
}

func (s *Simulator) workerFor(contract common.Address) *contractWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[contract]
	if !ok {
		w = &contractWorker{jobs: make(chan simulationJob, s.queueDepth)}
		s.workers[contract] = w
		go s.run(contract, w)
	}
	return w
}

func (s *Simulator) run(contract common.Address, w *contractWorker) {
	for job := range w.jobs {
		job.result <- s.execute(job)
	}
	_ = contract
}

func (s *Simulator) execute(job simulationJob) simulationResult {
	calldata, err := s.encoder.Encode(job.bundle)
	if err != nil {
		return simulationResult{err: fmt.Errorf("encode bundle: %w", err)}
	}
	call := ethereum.CallMsg{To: &job.contract, Data: calldata}
	gasUsed, revertReason, err := s.caller.CallExecute(job.ctx, call, job.height+1)
	if err != nil {
		return simulationResult{err: fmt.Errorf("simulate bundle: %w", err)}
	}
	if revertReason != "" {
		return simulationResult{err: &RevertError{Reason: revertReason}}
	}
	return simulationResult{details: BundleGasDetails{GasUsed: gasUsed, ConversionTable: make(map[common.Address]*uint256.Int)}}
}
