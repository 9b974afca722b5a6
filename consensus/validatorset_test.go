package consensus

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func vset(weights ...uint64) *ValidatorSet {
	vs := &ValidatorSet{QuorumNumerator: 67}
	for i, w := range weights {
		vs.Members = append(vs.Members, Validator{
			Address: common.BytesToAddress([]byte{byte(i + 1)}),
			Weight:  w,
			Index:   i,
		})
	}
	return vs
}

func TestValidatorSetLeaderDeterministic(t *testing.T) {
	vs := vset(1, 1, 1, 1)
	require.Equal(t, vs.Members[0], vs.Leader(0))
	require.Equal(t, vs.Members[1], vs.Leader(1))
	require.Equal(t, vs.Members[0], vs.Leader(4))
}

func TestValidatorSetHasQuorum(t *testing.T) {
	vs := vset(25, 25, 25, 25) // total 100, quorum 67
	require.False(t, vs.HasQuorum(66))
	require.True(t, vs.HasQuorum(75))
}

func TestValidatorSetByAddress(t *testing.T) {
	vs := vset(1, 1)
	got, ok := vs.ByAddress(vs.Members[1].Address)
	require.True(t, ok)
	require.Equal(t, vs.Members[1], got)

	_, ok = vs.ByAddress(common.BytesToAddress([]byte{0xff}))
	require.False(t, ok)
}
