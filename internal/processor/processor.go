// Package processor is the request-processing fabric every adapter goes
// through: a bounded priority queue with batching, result caching, and a
// fixed worker pool for outbound work.
package processor

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
	"github.com/fairyhunter13/jobharvest/internal/cache"
	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// Status is the terminal or intermediate state reported for a request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusCached    Status = "cached"
	StatusBatched   Status = "batched"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Handler executes one request's payload against its endpoint.
type Handler func(ctx context.Context, req Request) (any, error)

// BatchHandler executes a released batch in one call. It must return one
// result per request, positionally.
type BatchHandler func(ctx context.Context, reqs []Request) ([]any, error)

// Request is a unit of outbound work.
type Request struct {
	ID         string
	Endpoint   string
	Payload    any
	Priority   int // lower = more urgent
	CacheKey   string
	CacheTTL   time.Duration
	BatchKey   string
	Timeout    time.Duration
	MaxRetries int
	Callback   func(Result)
}

// Result reports the outcome of a request.
type Result struct {
	ID             string
	Status         Status
	Data           any
	Err            error
	ProcessingTime time.Duration
}

// Config tunes the fabric.
type Config struct {
	Workers        int
	QueueBound     int
	SubmitWait     time.Duration
	BatchSize      int
	BatchTimeout   time.Duration
	DefaultTimeout time.Duration
	RetryInitial   time.Duration
	RetryMax       time.Duration
}

// DefaultConfig matches the documented fabric defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        8,
		QueueBound:     10000,
		SubmitWait:     5 * time.Second,
		BatchSize:      10,
		BatchTimeout:   100 * time.Millisecond,
		DefaultTimeout: 30 * time.Second,
		RetryInitial:   2 * time.Second,
		RetryMax:       30 * time.Second,
	}
}

// Processor owns the queue, the batchers, and the worker pool.
type Processor struct {
	cfg   Config
	cache *cache.Cache

	mu       sync.Mutex
	cond     *sync.Cond
	queue    priorityQueue
	seq      uint64
	closed   bool
	handlers map[string]Handler
	batchers map[string]*batcher

	slots chan struct{}
	wg    sync.WaitGroup
}

// New constructs a Processor backed by the given result cache and starts
// its workers. Zero config fields fall back to defaults.
func New(cfg Config, c *cache.Cache) *Processor {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueBound <= 0 {
		cfg.QueueBound = def.QueueBound
	}
	if cfg.SubmitWait <= 0 {
		cfg.SubmitWait = def.SubmitWait
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	p := &Processor{
		cfg:      cfg,
		cache:    c,
		handlers: make(map[string]Handler),
		batchers: make(map[string]*batcher),
		slots:    make(chan struct{}, cfg.QueueBound),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// RegisterHandler binds an endpoint to its handler.
func (p *Processor) RegisterHandler(endpoint string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[endpoint] = h
}

// RegisterBatchHandler binds an endpoint to a batch handler. Requests with
// a BatchKey for this endpoint are accumulated and released together.
func (p *Processor) RegisterBatchHandler(endpoint string, h BatchHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batchers[endpoint] = newBatcher(p, endpoint, h)
}

// Submit runs the pipeline for one request: cache short-circuit, batch
// accumulation, or priority enqueue. The returned Result reports the
// immediate status; terminal completion for queued and batched requests is
// delivered through the request's callback.
func (p *Processor) Submit(ctx context.Context, req Request) Result {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Timeout <= 0 {
		req.Timeout = p.cfg.DefaultTimeout
	}

	if req.CacheKey != "" && p.cache != nil {
		if v, ok := p.cache.Get(req.CacheKey); ok {
			observability.RequestsTotal.WithLabelValues(req.Endpoint, string(StatusCached)).Inc()
			res := Result{ID: req.ID, Status: StatusCached, Data: v}
			if req.Callback != nil {
				req.Callback(res)
			}
			return res
		}
	}

	p.mu.Lock()
	b, hasBatcher := p.batchers[req.Endpoint]
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return p.fail(req, fmt.Errorf("op=processor.submit: %w", domain.ErrInternal))
	}
	if req.BatchKey != "" && hasBatcher {
		b.add(req)
		observability.RequestsTotal.WithLabelValues(req.Endpoint, string(StatusBatched)).Inc()
		return Result{ID: req.ID, Status: StatusBatched}
	}

	// Bounded enqueue: block for at most SubmitWait, then fail with a
	// backpressure error the scheduler treats as a transient adapter failure.
	timer := time.NewTimer(p.cfg.SubmitWait)
	defer timer.Stop()
	select {
	case p.slots <- struct{}{}:
	case <-timer.C:
		return p.fail(req, fmt.Errorf("op=processor.submit: %w", domain.ErrBackpressure))
	case <-ctx.Done():
		return p.fail(req, fmt.Errorf("op=processor.submit: %w", ctx.Err()))
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return p.fail(req, fmt.Errorf("op=processor.submit: %w", domain.ErrInternal))
	}
	p.seq++
	heap.Push(&p.queue, &item{req: &req, seq: p.seq})
	observability.RequestQueueDepth.Set(float64(p.queue.Len()))
	p.cond.Signal()
	p.mu.Unlock()

	observability.RequestsTotal.WithLabelValues(req.Endpoint, string(StatusQueued)).Inc()
	return Result{ID: req.ID, Status: StatusQueued}
}

// Do submits a request and blocks until its terminal result, overriding any
// configured callback.
func (p *Processor) Do(ctx context.Context, req Request) Result {
	done := make(chan Result, 1)
	req.Callback = func(r Result) { done <- r }
	res := p.Submit(ctx, req)
	switch res.Status {
	case StatusQueued, StatusBatched:
		select {
		case r := <-done:
			return r
		case <-ctx.Done():
			return Result{ID: req.ID, Status: StatusFailed, Err: ctx.Err()}
		}
	default:
		return res
	}
}

func (p *Processor) fail(req Request, err error) Result {
	observability.RequestsTotal.WithLabelValues(req.Endpoint, string(StatusFailed)).Inc()
	res := Result{ID: req.ID, Status: StatusFailed, Err: err}
	if req.Callback != nil {
		req.Callback(res)
	}
	return res
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed && p.queue.Len() == 0 {
			p.mu.Unlock()
			return
		}
		it := heap.Pop(&p.queue).(*item)
		observability.RequestQueueDepth.Set(float64(p.queue.Len()))
		h := p.handlers[it.req.Endpoint]
		p.mu.Unlock()
		<-p.slots

		p.execute(it.req, h)
	}
}

// execute runs one dequeued request with timeout and retry.
func (p *Processor) execute(req *Request, h Handler) {
	start := time.Now()
	if h == nil {
		p.finish(req, Result{
			ID:     req.ID,
			Status: StatusFailed,
			Err:    fmt.Errorf("op=processor.execute: no handler for %q: %w", req.Endpoint, domain.ErrInvalidArgument),
		}, start)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), req.Timeout)
	defer cancel()

	var data any
	op := func() error {
		v, err := h(ctx, *req)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		data = v
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryInitial
	bo.MaxInterval = p.cfg.RetryMax
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(req.MaxRetries)), ctx))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("op=processor.execute: %w: %w", domain.ErrUpstreamTimeout, err)
		}
		p.finish(req, Result{ID: req.ID, Status: StatusFailed, Err: err}, start)
		return
	}
	if req.CacheKey != "" && p.cache != nil {
		p.cache.Put(req.CacheKey, data, req.CacheTTL)
	}
	p.finish(req, Result{ID: req.ID, Status: StatusCompleted, Data: data}, start)
}

func (p *Processor) finish(req *Request, res Result, start time.Time) {
	res.ProcessingTime = time.Since(start)
	observability.RequestsTotal.WithLabelValues(req.Endpoint, string(res.Status)).Inc()
	if req.Callback != nil {
		req.Callback(res)
	}
}

// retryable reports whether an error is worth another attempt. Invariant
// violations, quota denials, disabled sources, and upstream rate limits
// never are; a 429 means skip the source for this slot, not hammer it.
func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrSchemaInvalid),
		errors.Is(err, domain.ErrQuotaExhausted),
		errors.Is(err, domain.ErrSourceDisabled),
		errors.Is(err, domain.ErrUpstreamRateLimit),
		errors.Is(err, domain.ErrLedgerUnavailable):
		return false
	}
	return true
}

// Close stops the workers after the queue drains and flushes all batchers.
func (p *Processor) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, b := range p.batchers {
		b.stop()
	}
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
