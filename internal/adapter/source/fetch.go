// Package source holds the four source adapters and the shared fetch
// fabric they go through. Every outbound request passes the rate limiter,
// the result cache, and the request processor; adapters never touch the
// network directly.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/processor"
	"github.com/fairyhunter13/jobharvest/internal/ratelimit"
)

const (
	fetchEndpoint = "http.fetch"
	userAgent     = "jobharvest/1.0 (+https://github.com/fairyhunter13/jobharvest)"
	maxBodyBytes  = 5 << 20

	// defaultFetchRetries is the attempt budget for transient upstream
	// failures. Paid calls never go through Get, so retries here can
	// never double spend.
	defaultFetchRetries = 2
)

// Fetcher is the one gateway to upstream HTTP. It registers itself as the
// processor's fetch handler so every page load is rate limited per host,
// cached by URL, retried with backoff, and bounded by the worker pool.
type Fetcher struct {
	proc    *processor.Processor
	limiter *ratelimit.Limiter
	client  *http.Client
	log     *slog.Logger
}

// FetchOpts tunes a single page load.
type FetchOpts struct {
	Priority   int
	CacheTTL   time.Duration
	Timeout    time.Duration
	MaxRetries int
}

// NewFetcher wires the fetch handler into the processor. The HTTP client
// carries otel instrumentation; per-request timeouts come from the
// processor, not the client.
func NewFetcher(proc *processor.Processor, limiter *ratelimit.Limiter, log *slog.Logger) *Fetcher {
	f := &Fetcher{
		proc:    proc,
		limiter: limiter,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}
	proc.RegisterHandler(fetchEndpoint, f.handle)
	return f
}

// Get fetches one URL through the fabric and returns the body. A cached
// body short-circuits without touching the limiter. Zero MaxRetries
// means the default budget; non-retryable failures return immediately
// either way.
func (f *Fetcher) Get(ctx context.Context, rawURL string, opts FetchOpts) ([]byte, error) {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultFetchRetries
	}
	res := f.proc.Do(ctx, processor.Request{
		Endpoint:   fetchEndpoint,
		Payload:    rawURL,
		Priority:   opts.Priority,
		CacheKey:   "fetch:" + rawURL,
		CacheTTL:   opts.CacheTTL,
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
	})
	if res.Err != nil {
		return nil, res.Err
	}
	body, ok := res.Data.([]byte)
	if !ok {
		return nil, fmt.Errorf("op=fetch.get: unexpected payload type: %w", domain.ErrInternal)
	}
	return body, nil
}

func (f *Fetcher) handle(ctx context.Context, req processor.Request) (any, error) {
	rawURL, ok := req.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("op=fetch.handle: payload is not a url: %w", domain.ErrInvalidArgument)
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("op=fetch.handle: bad url %q: %w", rawURL, domain.ErrInvalidArgument)
	}

	if err := f.limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("op=fetch.handle: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("op=fetch.handle: %w: %w", domain.ErrInvalidArgument, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		f.limiter.RecordFailure(u.Host)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("op=fetch.handle: %w: %w", domain.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("op=fetch.handle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		f.limiter.RecordFailure(u.Host)
		return nil, fmt.Errorf("op=fetch.handle: host=%s status=429: %w", u.Host, domain.ErrUpstreamRateLimit)
	case resp.StatusCode >= 500:
		f.limiter.RecordFailure(u.Host)
		return nil, fmt.Errorf("op=fetch.handle: host=%s status=%d: %w", u.Host, resp.StatusCode, domain.ErrInternal)
	case resp.StatusCode >= 400:
		f.limiter.RecordFailure(u.Host)
		return nil, fmt.Errorf("op=fetch.handle: host=%s status=%d: %w", u.Host, resp.StatusCode, domain.ErrInvalidArgument)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		f.limiter.RecordFailure(u.Host)
		return nil, fmt.Errorf("op=fetch.handle: read body: %w", err)
	}
	f.limiter.RecordSuccess(u.Host)
	f.log.Debug("fetched page",
		slog.String("host", u.Host),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)))
	return body, nil
}
