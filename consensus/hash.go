package consensus

import (
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/angstrom-node/angstrom/orderpool"
	"github.com/angstrom-node/angstrom/types"
	"github.com/angstrom-node/angstrom/wire"
)

// PreProposalHash computes keccak256(bincode(sorted preproposals)) —
// here, keccak256(rlp(sorted preproposals)), RLP standing in for bincode
// per SPEC_FULL.md's domain-stack wiring. Sorting by source address gives
// a canonical order stable under permutation of inputs (spec.md section 8
// round-trip property).
func PreProposalHash(preproposals []wire.PreProposal) (common.Hash, error) {
	sorted := append([]wire.PreProposal(nil), preproposals...)
	sortPreProposals(sorted)
	b, err := rlp.EncodeToBytes(sorted)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(b), nil
}

func sortPreProposals(pp []wire.PreProposal) {
	for i := 1; i < len(pp); i++ {
		for j := i; j > 0 && bytesLess(pp[j].Source[:], pp[j-1].Source[:]); j-- {
			pp[j-1], pp[j] = pp[j], pp[j-1]
		}
	}
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// SolutionHash computes keccak256(bincode(solutions)), the second half of
// the Commit preimage (spec.md section 6). Solutions are hashed in the
// order the leader assembled them in the Proposal: unlike PreProposalHash,
// no independent canonical sort applies here since a Proposal's solution
// order is itself part of what validators are agreeing to.
func SolutionHash(solutions []types.PoolSolution) (common.Hash, error) {
	b, err := rlp.EncodeToBytes(solutions)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(b), nil
}

// orderDigestEntry is the canonical per-order record hashed into a
// PreProposal's orders_digest: just enough to make two nodes' views of the
// same order set hash identically, and nothing that depends on local-only
// bookkeeping like sort position.
type orderDigestEntry struct {
	Pool common.Hash
	Hash common.Hash
}

// OrdersDigest computes keccak256(bincode(sorted order hashes)) over a
// snapshot of assembled books, the PreProposal payload of spec.md section
// 4.5 state B ("this node's local view of orders for the upcoming block").
// Sorted by (pool, hash) so two nodes holding the same order set — built up
// through arbitrary, order-dependent gossip arrival — digest identically.
func OrdersDigest(books map[types.PoolID]*orderpool.OrderBook) (common.Hash, error) {
	var entries []orderDigestEntry
	for pool, book := range books {
		for _, o := range book.Bids {
			entries = append(entries, orderDigestEntry{Pool: pool, Hash: o.Hash})
		}
		for _, o := range book.Asks {
			entries = append(entries, orderDigestEntry{Pool: pool, Hash: o.Hash})
		}
		if book.TopOfBlock != nil {
			entries = append(entries, orderDigestEntry{Pool: pool, Hash: book.TopOfBlock.Hash})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Pool != entries[j].Pool {
			return bytesLess(entries[i].Pool[:], entries[j].Pool[:])
		}
		return bytesLess(entries[i].Hash[:], entries[j].Hash[:])
	})
	b, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(b), nil
}

// CommitPreimage computes the Commit signing preimage, per spec.md
// section 6: keccak256(be_u64(height) ‖ preproposal_hash ‖ solution_hash),
// matching original_source/crates/types/src/consensus/commit.rs verbatim.
func CommitPreimage(height uint64, preproposalHash, solutionHash common.Hash) common.Hash {
	var heightBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], height)
	return crypto.Keccak256Hash(heightBytes[:], preproposalHash[:], solutionHash[:])
}
