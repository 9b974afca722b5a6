// BLS signing and aggregation for Commit messages (spec.md section 4.5
// Finalization). Grounded in control flow on
// github.com/luxfi/evm's warp/aggregator/aggregator.go (concurrent
// per-validator signature fetch, weight accumulation, early-cancel on
// quorum threshold, then AggregateSignatures), generalized from Warp
// message aggregation to Commit aggregation. BLS12-381 primitives come
// from github.com/supranational/blst, a teacher indirect dependency
// promoted to direct use here since this core has no home for the
// teacher's sibling luxfi/crypto / luxfi/warp modules (see SPEC_FULL.md
// dropped-dependency list) which wrap the same library.
package consensus

import (
	"errors"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

var dst = []byte("ANGSTROM_BLS_COMMIT_V1")

// ErrInsufficientWeight is returned when the available signatures never
// reach the requested quorum fraction.
var ErrInsufficientWeight = errors.New("insufficient signature weight for quorum")

// BLSSecretKey signs Commit preimages for one validator.
type BLSSecretKey struct {
	sk *blst.SecretKey
}

// GenBLSSecretKey derives a secret key from 32+ bytes of key material,
// matching blst's standard KeyGen entrypoint.
func GenBLSSecretKey(ikm []byte) (*BLSSecretKey, error) {
	if len(ikm) < 32 {
		return nil, fmt.Errorf("ikm must be at least 32 bytes, got %d", len(ikm))
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, errors.New("blst: key generation failed")
	}
	return &BLSSecretKey{sk: sk}, nil
}

// PublicKey returns the corresponding BLS public key.
func (k *BLSSecretKey) PublicKey() *BLSPublicKey {
	return &BLSPublicKey{pk: new(blst.P1Affine).From(k.sk)}
}

// Sign produces a BLS signature over msg.
func (k *BLSSecretKey) Sign(msg []byte) *BLSSignature {
	sig := new(blst.P2Affine).Sign(k.sk, msg, dst)
	return &BLSSignature{sig: sig}
}

// BLSPublicKey is a validator's BLS12-381 public key (G1 point).
type BLSPublicKey struct {
	pk *blst.P1Affine
}

// BLSSignature is a single validator's BLS signature (G2 point).
type BLSSignature struct {
	sig *blst.P2Affine
}

// BLSPublicKeyFromBytes parses a compressed G1 public key, the form
// validator-set config files store (cmd/angstrom-node's --validator-set).
func BLSPublicKeyFromBytes(b []byte) (*BLSPublicKey, error) {
	pk := new(blst.P1Affine).Uncompress(b)
	if pk == nil {
		return nil, errors.New("blst: invalid public key encoding")
	}
	return &BLSPublicKey{pk: pk}, nil
}

// Bytes serializes the public key for storage/transport.
func (k *BLSPublicKey) Bytes() []byte { return k.pk.Compress() }

// Verify checks sig against msg under pk.
func (s *BLSSignature) Verify(pk *BLSPublicKey, msg []byte) bool {
	return s.sig.Verify(true, pk.pk, true, msg, dst)
}

// Bytes serializes the signature for wire transport.
func (s *BLSSignature) Bytes() []byte { return s.sig.Compress() }

// BLSSignatureFromBytes parses a compressed signature.
func BLSSignatureFromBytes(b []byte) (*BLSSignature, error) {
	sig := new(blst.P2Affine).Uncompress(b)
	if sig == nil {
		return nil, errors.New("blst: invalid signature encoding")
	}
	return &BLSSignature{sig: sig}, nil
}

// AggregateSignatures combines multiple validator signatures into one,
// per spec.md section 8 testable property ("A BLS Commit signed by
// validator id 0 then merged with one signed by validator id 7 ...
// verifies under the ordered public-key library").
func AggregateSignatures(sigs []*BLSSignature) (*BLSSignature, error) {
	if len(sigs) == 0 {
		return nil, errors.New("no signatures to aggregate")
	}
	agg := new(blst.P2Aggregate)
	for _, s := range sigs {
		if !agg.Add(s.sig, false) {
			return nil, errors.New("blst: failed to add signature to aggregate")
		}
	}
	return &BLSSignature{sig: agg.ToAffine()}, nil
}

// VerifyWeight reports whether weight/total meets or exceeds num/denom,
// the quorum-fraction check spec.md section 9 leaves as an Open Question
// (decision recorded in SPEC_FULL.md: parameterize num/denom, mirroring
// the teacher's warp/aggregator.go VerifyWeight(weight, total, quorumNum,
// params.WarpQuorumDenominator) call).
func VerifyWeight(weight, total, num, denom uint64) error {
	if denom == 0 {
		return errors.New("quorum denominator must be non-zero")
	}
	// weight * denom >= total * num, avoiding floating point.
	if weight*denom >= total*num {
		return nil
	}
	return ErrInsufficientWeight
}
