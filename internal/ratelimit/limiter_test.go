package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *time.Duration) {
	t.Helper()
	l := New(Config{Floor: 250 * time.Millisecond, Ceiling: 60 * time.Second})
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	var slept time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		return nil
	}
	return l, &slept
}

func TestWaitNewDomainDoesNotBlock(t *testing.T) {
	l, slept := newTestLimiter(t)
	require.NoError(t, l.Wait(context.Background(), "example.com"))
	assert.Zero(t, *slept)
}

func TestWaitSecondCallPaced(t *testing.T) {
	l, slept := newTestLimiter(t)
	require.NoError(t, l.Wait(context.Background(), "example.com"))
	require.NoError(t, l.Wait(context.Background(), "example.com"))
	// second wait is the floor interval with ±20% jitter
	assert.GreaterOrEqual(t, *slept, 200*time.Millisecond)
	assert.LessOrEqual(t, *slept, 300*time.Millisecond)
}

func TestFailureDoublingMonotonic(t *testing.T) {
	l, _ := newTestLimiter(t)
	for k := 1; k <= 10; k++ {
		l.RecordFailure("example.com")
		snap := l.SnapshotFor("example.com")
		want := 250 * time.Millisecond << k
		if want > 60*time.Second {
			want = 60 * time.Second
		}
		assert.GreaterOrEqual(t, snap.CurrentInterval, want, "after %d failures", k)
		assert.LessOrEqual(t, snap.CurrentInterval, 60*time.Second)
	}
}

func TestThree429sThenRecovery(t *testing.T) {
	l, _ := newTestLimiter(t)
	for i := 0; i < 3; i++ {
		l.RecordFailure("example.com")
	}
	snap := l.SnapshotFor("example.com")
	assert.GreaterOrEqual(t, snap.CurrentInterval, 8*250*time.Millisecond)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	// cooldown of 30-60s pushed out the next allowed instant
	assert.GreaterOrEqual(t, snap.NextAllowedAt.Sub(l.now()), 30*time.Second)
	assert.LessOrEqual(t, snap.NextAllowedAt.Sub(l.now()), 60*time.Second)

	before := snap.CurrentInterval
	l.RecordSuccess("example.com")
	snap = l.SnapshotFor("example.com")
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.InDelta(t, float64(before)*0.9, float64(snap.CurrentInterval), float64(time.Millisecond))
}

func TestSuccessFloorsAtMinimum(t *testing.T) {
	l, _ := newTestLimiter(t)
	for i := 0; i < 50; i++ {
		l.RecordSuccess("example.com")
	}
	assert.Equal(t, 250*time.Millisecond, l.SnapshotFor("example.com").CurrentInterval)
}

func TestDomainsIsolated(t *testing.T) {
	l, _ := newTestLimiter(t)
	l.RecordFailure("slow.example.com")
	l.RecordFailure("slow.example.com")
	assert.Equal(t, 250*time.Millisecond, l.SnapshotFor("fast.example.com").CurrentInterval)
	assert.Equal(t, time.Second, l.SnapshotFor("slow.example.com").CurrentInterval)
}

func TestWaitCancelled(t *testing.T) {
	l := New(DefaultConfig())
	// force a pending interval so the second wait actually sleeps
	require.NoError(t, l.Wait(context.Background(), "example.com"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// a cancelled context surfaces from the sleep
	err := l.Wait(ctx, "example.com")
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := New(Config{Floor: time.Millisecond, Ceiling: 10 * time.Millisecond})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = l.Wait(context.Background(), "example.com")
				if j%2 == 0 {
					l.RecordSuccess("example.com")
				} else {
					l.RecordFailure("example.com")
				}
			}
		}()
	}
	wg.Wait()
	snap := l.SnapshotFor("example.com")
	assert.LessOrEqual(t, snap.CurrentInterval, 10*time.Millisecond)
}
