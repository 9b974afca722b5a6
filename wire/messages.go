// Package wire defines the peer-to-peer message types of spec.md section
// 6, framed via RLP — the teacher's own wire-framing codec for gossiped
// transactions (plugin/evm/gossip_eth_tx.go's MarshalGossip/UnmarshalGossip
// use the same github.com/ethereum/go-ethereum/rlp package). The transport
// itself (peer connections, request/response framing) is an external
// collaborator per spec.md section 1 and is not modeled here.
package wire

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/angstrom-node/angstrom/types"
)

// AllOrders is the RLP-friendly wire encoding of one pooled order, used by
// PropagatePooledOrders.
type AllOrders struct {
	Kind      uint8
	Hash      common.Hash
	Signer    common.Address
	Pool      common.Hash
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  []byte // big-endian uint256
	MinAmount []byte
	Deadline  uint64
	ValidBlock uint64
	Nonce     uint64
	HasNonce  bool
	Block     uint64
	HasBlock  bool
	Signature []byte
}

// PropagatePooledOrders is gossiped to announce newly-valid orders.
type PropagatePooledOrders struct {
	Orders []AllOrders
}

// PreProposal is a validator's signed view of the orders eligible for the
// next block (spec.md section 4.5 state B, section 6).
type PreProposal struct {
	Height      uint64
	Source      common.Address
	OrdersDigest common.Hash
	Signature   []byte
}

// PreProposalAggregation is a quorum of PreProposals. MembersBitmap marks
// the validators whose PreProposals it covers; AggSignature holds the
// keccak digest of the quorum's PreProposals (consensus.PreProposalHash),
// not a BLS aggregate signature.
type PreProposalAggregation struct {
	Height        uint64
	Source        common.Address
	MembersBitmap []byte
	AggSignature  []byte
}

// Proposal is the leader's final list of per-pool solutions for a block.
type Proposal struct {
	Height            uint64
	Source            common.Address
	PreProposalsDigest common.Hash
	Solutions         []types.PoolSolution
	Signature         []byte
}

// Commit is a validator's BLS signature endorsing a Proposal. When it
// carries the round's finalized aggregate (spec.md section 4.5
// Finalization, section 6), BLSSig holds the combined signature and
// MembersBitmap the union of every validator index folded into it; a
// single validator's own Commit broadcast during the round leaves
// MembersBitmap empty and BLSSig as its own signature.
type Commit struct {
	Height          uint64
	Source          common.Address
	PreProposalHash common.Hash
	SolutionHash    common.Hash
	ValidatorID     uint64
	BLSSig          []byte
	MembersBitmap   []byte
}

// EncodeAllOrders canonicalizes o for hashing/gossip (stands in for the
// spec's "bincode", per SPEC_FULL.md domain-stack wiring).
func EncodeAllOrders(o AllOrders) ([]byte, error) { return rlp.EncodeToBytes(o) }

// DecodeAllOrders parses the canonical encoding back into an AllOrders.
func DecodeAllOrders(b []byte) (AllOrders, error) {
	var o AllOrders
	err := rlp.DecodeBytes(b, &o)
	return o, err
}
