package orderpool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestPeerSessionHasSeenAfterRecord(t *testing.T) {
	p := NewPeerSession("peer1", 8)
	hash := common.HexToHash("0x1")
	require.False(t, p.HasSeen(hash))
	p.RecordSeen(hash)
	require.True(t, p.HasSeen(hash))
}

func TestPeerSessionLRUEvictsOldestBeyondCapacity(t *testing.T) {
	p := NewPeerSession("peer1", 2)
	h1, h2, h3 := common.HexToHash("0x1"), common.HexToHash("0x2"), common.HexToHash("0x3")
	p.RecordSeen(h1)
	p.RecordSeen(h2)
	p.RecordSeen(h3) // evicts h1, capacity is 2

	require.False(t, p.HasSeen(h1))
	require.True(t, p.HasSeen(h2))
	require.True(t, p.HasSeen(h3))
}

func TestPeerSetAddedAndRemoved(t *testing.T) {
	s := NewPeerSet(8)
	session := s.Added("peer1")
	require.NotNil(t, session)

	got, ok := s.Get("peer1")
	require.True(t, ok)
	require.Same(t, session, got)

	s.Removed("peer1")
	_, ok = s.Get("peer1")
	require.False(t, ok)
}

func TestPeerSetGossipTargetsSkipsPeersWhoSawIt(t *testing.T) {
	s := NewPeerSet(8)
	s.Added("peer1")
	s.Added("peer2")
	hash := common.HexToHash("0x1")

	session, _ := s.Get("peer1")
	session.RecordSeen(hash)

	targets := s.GossipTargets(hash)
	require.ElementsMatch(t, []PeerID{"peer2"}, targets)
}

func TestPeerSetReportInvalidOrderEmitsChange(t *testing.T) {
	s := NewPeerSet(8)
	s.Added("peer1")
	s.ReportInvalidOrder("peer1")

	change := <-s.Changes()
	require.Equal(t, PeerID("peer1"), change.Peer)
	require.Equal(t, ReputationInvalidOrder, change.Kind)
}
