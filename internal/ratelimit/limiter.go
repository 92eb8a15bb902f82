// Package ratelimit implements per-domain adaptive request pacing.
//
// Every outbound request waits on its host's interval before proceeding.
// Successes shrink the interval toward a floor, failures double it toward a
// ceiling, and a streak of failures forces a randomized cooldown.
package ratelimit

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"
)

const numShards = 32

// Config bounds the adaptive interval.
type Config struct {
	Floor   time.Duration
	Ceiling time.Duration
}

// DefaultConfig matches the production pacing bounds.
func DefaultConfig() Config {
	return Config{Floor: 250 * time.Millisecond, Ceiling: 60 * time.Second}
}

// Limiter paces requests per domain. Safe for concurrent use across many
// adapters; per-domain state sits under a striped lock keyed by domain.
type Limiter struct {
	cfg    Config
	shards [numShards]*shard

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type shard struct {
	mu      sync.Mutex
	domains map[string]*state
}

type state struct {
	nextAllowedAt time.Time
	interval      time.Duration
	consecFails   int
}

// Snapshot is a read-only view of one domain's pacing state.
type Snapshot struct {
	NextAllowedAt       time.Time
	CurrentInterval     time.Duration
	ConsecutiveFailures int
}

// New constructs a Limiter. Zero config fields fall back to defaults.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Floor <= 0 {
		cfg.Floor = def.Floor
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = def.Ceiling
	}
	l := &Limiter{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
	for i := range l.shards {
		l.shards[i] = &shard{domains: make(map[string]*state)}
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) shardFor(domain string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(domain))
	return l.shards[h.Sum32()%numShards]
}

func (l *Limiter) stateFor(s *shard, domain string) *state {
	st, ok := s.domains[domain]
	if !ok {
		st = &state{interval: l.cfg.Floor}
		s.domains[domain] = st
	}
	return st
}

// Wait blocks until a request to domain may proceed, honoring the domain's
// current interval with a ±20% jitter. Concurrent waiters on the same
// domain are serialized: each reserves the next allowed instant before
// sleeping, so the lock is never held across the sleep.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	s := l.shardFor(domain)
	s.mu.Lock()
	st := l.stateFor(s, domain)
	now := l.now()
	start := st.nextAllowedAt
	if start.Before(now) {
		start = now
	}
	wait := start.Sub(now)
	if wait > 0 {
		// jitter ±20%
		wait = time.Duration(float64(wait) * (0.8 + 0.4*rand.Float64()))
	}
	st.nextAllowedAt = now.Add(wait).Add(st.interval)
	s.mu.Unlock()

	return l.sleep(ctx, wait)
}

// RecordSuccess shrinks the domain's interval by 10%, floored.
func (l *Limiter) RecordSuccess(domain string) {
	s := l.shardFor(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	st := l.stateFor(s, domain)
	st.consecFails = 0
	st.interval = time.Duration(float64(st.interval) * 0.9)
	if st.interval < l.cfg.Floor {
		st.interval = l.cfg.Floor
	}
}

// RecordFailure doubles the domain's interval, capped at the ceiling. A
// streak of three or more failures forces a randomized 30-60s cooldown
// before the next request.
func (l *Limiter) RecordFailure(domain string) {
	s := l.shardFor(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	st := l.stateFor(s, domain)
	st.consecFails++
	st.interval *= 2
	if st.interval > l.cfg.Ceiling {
		st.interval = l.cfg.Ceiling
	}
	if st.consecFails >= 3 {
		cooldown := 30*time.Second + time.Duration(rand.Int64N(int64(30*time.Second)))
		until := l.now().Add(cooldown)
		if until.After(st.nextAllowedAt) {
			st.nextAllowedAt = until
		}
	}
}

// SnapshotFor returns the current pacing state for a domain.
func (l *Limiter) SnapshotFor(domain string) Snapshot {
	s := l.shardFor(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	st := l.stateFor(s, domain)
	return Snapshot{
		NextAllowedAt:       st.nextAllowedAt,
		CurrentInterval:     st.interval,
		ConsecutiveFailures: st.consecFails,
	}
}
