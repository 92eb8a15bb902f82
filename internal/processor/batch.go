package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// batcher accumulates same-endpoint requests into groups keyed by BatchKey
// and releases a group when it reaches the batch size or its timeout fires.
type batcher struct {
	p        *Processor
	endpoint string
	h        BatchHandler

	mu      sync.Mutex
	groups  map[string]*batchGroup
	stopped bool
}

type batchGroup struct {
	reqs  []Request
	timer *time.Timer
}

func newBatcher(p *Processor, endpoint string, h BatchHandler) *batcher {
	return &batcher{p: p, endpoint: endpoint, h: h, groups: make(map[string]*batchGroup)}
}

func (b *batcher) add(req Request) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		b.p.fail(req, fmt.Errorf("op=processor.batch: %w", domain.ErrInternal))
		return
	}
	g, ok := b.groups[req.BatchKey]
	if !ok {
		g = &batchGroup{}
		b.groups[req.BatchKey] = g
		key := req.BatchKey
		g.timer = time.AfterFunc(b.p.cfg.BatchTimeout, func() { b.release(key) })
	}
	g.reqs = append(g.reqs, req)
	full := len(g.reqs) >= b.p.cfg.BatchSize
	b.mu.Unlock()
	if full {
		b.release(req.BatchKey)
	}
}

// release detaches a group and runs its handler on a worker-independent
// goroutine; batch completion is reported only through callbacks.
func (b *batcher) release(key string) {
	b.mu.Lock()
	g, ok := b.groups[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.groups, key)
	g.timer.Stop()
	reqs := g.reqs
	b.mu.Unlock()
	if len(reqs) == 0 {
		return
	}
	go b.run(reqs)
}

func (b *batcher) run(reqs []Request) {
	start := time.Now()
	timeout := b.p.cfg.DefaultTimeout
	for _, r := range reqs {
		if r.Timeout > timeout {
			timeout = r.Timeout
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	results, err := b.h(ctx, reqs)
	elapsed := time.Since(start)
	for i, req := range reqs {
		res := Result{ID: req.ID, ProcessingTime: elapsed}
		switch {
		case err != nil:
			res.Status = StatusFailed
			res.Err = fmt.Errorf("op=processor.batch: %w", err)
		case i < len(results):
			res.Status = StatusCompleted
			res.Data = results[i]
		default:
			res.Status = StatusFailed
			res.Err = fmt.Errorf("op=processor.batch: short result set: %w", domain.ErrInternal)
		}
		if res.Status == StatusCompleted && req.CacheKey != "" && b.p.cache != nil {
			b.p.cache.Put(req.CacheKey, res.Data, req.CacheTTL)
		}
		if req.Callback != nil {
			req.Callback(res)
		}
	}
}

// stop releases every pending group and refuses further adds.
func (b *batcher) stop() {
	b.mu.Lock()
	b.stopped = true
	keys := make([]string, 0, len(b.groups))
	for k := range b.groups {
		keys = append(keys, k)
	}
	b.mu.Unlock()
	for _, k := range keys {
		b.release(k)
	}
}
