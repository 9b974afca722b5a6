package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaleGuardFiresOnBudgetTimeout(t *testing.T) {
	g := NewStaleGuard(5 * time.Millisecond)
	result := make(chan Result) // never sent to

	g.Watch(context.Background(), 7, result)

	select {
	case h := <-g.Stalled():
		require.EqualValues(t, 7, h)
	case <-time.After(time.Second):
		t.Fatal("expected stalled height to be reported")
	}
}

func TestStaleGuardReportsEarlyFailure(t *testing.T) {
	g := NewStaleGuard(time.Second)
	result := make(chan Result, 1)
	result <- Result{Height: 3, Failed: true}

	g.Watch(context.Background(), 3, result)

	select {
	case h := <-g.Stalled():
		require.EqualValues(t, 3, h)
	default:
		t.Fatal("expected a failed result to be reported as stalled")
	}
}

func TestStaleGuardSilentOnSuccess(t *testing.T) {
	g := NewStaleGuard(time.Second)
	result := make(chan Result, 1)
	result <- Result{Height: 4, Failed: false}

	g.Watch(context.Background(), 4, result)

	select {
	case h := <-g.Stalled():
		t.Fatalf("did not expect a stalled report, got height %d", h)
	default:
	}
}

func TestStaleGuardStopsOnContextCancel(t *testing.T) {
	g := NewStaleGuard(time.Second)
	result := make(chan Result)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		g.Watch(ctx, 1, result)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return promptly after context cancellation")
	}
	select {
	case h := <-g.Stalled():
		t.Fatalf("did not expect a stalled report, got height %d", h)
	default:
	}
}
