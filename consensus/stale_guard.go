package consensus

import (
	"context"
	"time"

	alog "github.com/angstrom-node/angstrom/log"
)

// StaleGuard is a passive, non-voting monitor mode: it watches round
// progress without a validator seat and flags when a round fails to reach
// Finalization within its expected wall-clock budget. Grounded on
// original_source/bin/stale-guard/src/cli/mod.rs, an alternate node
// executable wired into the same network/RPC surface as a full validator
// but configured without signing material — supplemented here as a
// programmatic watchdog rather than a separate CLI binary, since the
// node's observable surface (spec.md section 6 consensus_status()) is
// already a Go type this package owns.
type StaleGuard struct {
	log     alog.Logger
	budget  time.Duration
	stalled chan uint64
}

// NewStaleGuard returns a guard that reports height as stalled if
// Finalization has not arrived within budget of the height's round start.
func NewStaleGuard(budget time.Duration) *StaleGuard {
	return &StaleGuard{
		log:     alog.New("consensus.stale_guard"),
		budget:  budget,
		stalled: make(chan uint64, 16),
	}
}

// Stalled is the stream of heights that missed their finalization budget
// or whose round reported failure before the budget elapsed.
func (g *StaleGuard) Stalled() <-chan uint64 { return g.stalled }

// Watch arms a timer for height and reports it stalled if ctx outlives the
// budget without result ever firing; result should be closed or sent to
// exactly once by the round driver on completion.
func (g *StaleGuard) Watch(ctx context.Context, height uint64, result <-chan Result) {
	timer := time.NewTimer(g.budget)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		g.log.Warn("round missed finalization budget", "height", height, "budget", g.budget)
		select {
		case g.stalled <- height:
		default:
		}
	case res := <-result:
		if res.Failed {
			g.log.Warn("round failed before budget elapsed", "height", height, "err", res.Err)
			select {
			case g.stalled <- height:
			default:
			}
		}
	}
}
