package consensus

import "github.com/ethereum/go-ethereum/common"

// Validator is one member of the committee: an ECDSA signer address for
// PreProposal/Proposal, a BLS public key for Commit aggregation, and a
// voting weight.
type Validator struct {
	Address   common.Address
	BLSPubKey *BLSPublicKey
	Weight    uint64
	Index     int // position in the committee, used for the commit bitmap
}

// ValidatorSet is the known committee for a round. Parameterized rather
// than hardcoded to 2f+1-of-3f+1, per spec.md section 9's Open Question
// ("Quorum fraction ... is referenced but the exact validator-set
// cardinality mechanism is not fully shown").
type ValidatorSet struct {
	Members         []Validator
	QuorumNumerator uint64
}

// QuorumDenominator is the fixed denominator quorum fractions are
// expressed over, mirroring the teacher's params.WarpQuorumDenominator.
const QuorumDenominator = 100

// TotalWeight sums every member's weight.
func (vs *ValidatorSet) TotalWeight() uint64 {
	var total uint64
	for _, m := range vs.Members {
		total += m.Weight
	}
	return total
}

// Leader returns the deterministic leader for height: leader(height) =
// validators[height mod |validators|] (spec.md section 4.5, verbatim).
func (vs *ValidatorSet) Leader(height uint64) Validator {
	return vs.Members[height%uint64(len(vs.Members))]
}

// ByAddress finds a member by its ECDSA address.
func (vs *ValidatorSet) ByAddress(addr common.Address) (Validator, bool) {
	for _, m := range vs.Members {
		if m.Address == addr {
			return m, true
		}
	}
	return Validator{}, false
}

// HasQuorum reports whether weight meets this set's quorum fraction.
func (vs *ValidatorSet) HasQuorum(weight uint64) bool {
	return VerifyWeight(weight, vs.TotalWeight(), vs.QuorumNumerator, QuorumDenominator) == nil
}
