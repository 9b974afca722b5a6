// Package simulate implements the Bundle Simulator (spec.md section 4.7):
// given a finalized Proposal, encode its solutions into the on-chain bundle
// format, call the settlement contract against forked state, and report
// gas usage or a revert reason. Grounded on
// github.com/luxfi/evm's core/txpool/txpool.go address-reservation pattern
// for the per-address worker pool (spec.md section 5: "pools of worker
// tasks keyed by address to serialize state reads per-address").
package simulate

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/angstrom-node/angstrom/types"
)

// BundleEncoder turns a finalized Bundle into the settlement contract's
// calldata format. The real encoding is PADE (spec.md section 6: "ordered
// sections for asset registry, pools touched, top-of-block orders, user
// orders, AMM swap deltas; bit-exact with the settlement contract's
// executeCall ABI"), an Open Question per spec.md section 9 since the exact
// grammar must come from the settlement contract's own spec, not be
// inferred here.
type BundleEncoder interface {
	Encode(bundle *types.Bundle) ([]byte, error)
}

// RLPBundleEncoder is a placeholder BundleEncoder using RLP, the same
// stand-in codec used for hashing and wire framing elsewhere in this
// module (see DESIGN.md's "PADE encoding" Open Question decision). It is
// NOT bit-compatible with a real AngstromBundle ABI encoder and exists so
// the rest of the simulation pipeline (worker pool, gas accounting,
// revert-reason surfacing) can be built and tested against a real,
// deterministic byte encoding before the actual PADE codec is sourced.
type RLPBundleEncoder struct{}

func (RLPBundleEncoder) Encode(bundle *types.Bundle) ([]byte, error) {
	return rlp.EncodeToBytes(bundle)
}
