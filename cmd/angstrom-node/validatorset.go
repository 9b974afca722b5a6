package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/angstrom-node/angstrom/consensus"
)

// validatorFile is the on-disk shape of --validator-set: one entry per
// committee member with its ECDSA signer address, hex-encoded compressed
// BLS12-381 public key, and voting weight. The exact validator-set
// cardinality mechanism is left to the deployment per spec.md section 9's
// Open Question; this file is the simplest source that satisfies it.
type validatorFile struct {
	Validators []struct {
		Address   string `json:"address"`
		BLSPubKey string `json:"bls_pub_key"`
		Weight    uint64 `json:"weight"`
	} `json:"validators"`
}

func loadValidatorSet(path string, quorumNumerator uint64) (*consensus.ValidatorSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f validatorFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Validators) == 0 {
		return nil, fmt.Errorf("%s: no validators defined", path)
	}

	vs := &consensus.ValidatorSet{QuorumNumerator: quorumNumerator}
	for i, v := range f.Validators {
		pubBytes, err := hex.DecodeString(v.BLSPubKey)
		if err != nil {
			return nil, fmt.Errorf("validator %d: decode bls_pub_key: %w", i, err)
		}
		pub, err := consensus.BLSPublicKeyFromBytes(pubBytes)
		if err != nil {
			return nil, fmt.Errorf("validator %d: parse bls_pub_key: %w", i, err)
		}
		vs.Members = append(vs.Members, consensus.Validator{
			Address:   common.HexToAddress(v.Address),
			BLSPubKey: pub,
			Weight:    v.Weight,
			Index:     i,
		})
	}
	return vs, nil
}
