package simulate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/angstrom-node/angstrom/types"
)

type fakeCaller struct {
	mu        sync.Mutex
	concurrent int32
	maxSeen    int32
	revertFor  common.Address
}

func (f *fakeCaller) CallExecute(ctx context.Context, call ethereum.CallMsg, height uint64) (uint64, string, error) {
	n := atomic.AddInt32(&f.concurrent, 1)
	defer atomic.AddInt32(&f.concurrent, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if call.To != nil && *call.To == f.revertFor {
		return 0, "insufficient output", nil
	}
	return 21000, "", nil
}

func TestSimulateSerializesPerContract(t *testing.T) {
	caller := &fakeCaller{}
	sim := NewSimulator(RLPBundleEncoder{}, caller, 8)
	defer sim.Shutdown()

	contract := common.BytesToAddress([]byte{1})
	bundle := &types.Bundle{BlockHeight: 5}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			details, err := sim.Simulate(context.Background(), contract, bundle, 5)
			require.NoError(t, err)
			require.Equal(t, uint64(21000), details.GasUsed)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&caller.maxSeen))
}

func TestSimulateRevertSurfacesReason(t *testing.T) {
	contract := common.BytesToAddress([]byte{2})
	caller := &fakeCaller{revertFor: contract}
	sim := NewSimulator(RLPBundleEncoder{}, caller, 1)
	defer sim.Shutdown()

	_, err := sim.Simulate(context.Background(), contract, &types.Bundle{}, 0)
	require.Error(t, err)
	var revert *RevertError
	require.ErrorAs(t, err, &revert)
	require.Equal(t, "insufficient output", revert.Reason)
}
