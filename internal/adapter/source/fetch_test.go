package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobharvest/internal/cache"
	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/processor"
	"github.com/fairyhunter13/jobharvest/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFabric(t *testing.T) (*Fetcher, *processor.Processor) {
	t.Helper()
	c := cache.New(100)
	proc := processor.New(processor.Config{
		Workers:      4,
		SubmitWait:   time.Second,
		RetryInitial: time.Millisecond,
		RetryMax:     5 * time.Millisecond,
	}, c)
	t.Cleanup(proc.Close)
	limiter := ratelimit.New(ratelimit.Config{
		Floor:   time.Millisecond,
		Ceiling: 50 * time.Millisecond,
	})
	return NewFetcher(proc, limiter, testLogger()), proc
}

func TestFetcherGet(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f, _ := testFabric(t)
	body, err := f.Get(context.Background(), srv.URL, FetchOpts{})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)
}

func TestFetcherCachesBody(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("once"))
	}))
	defer srv.Close()

	f, _ := testFabric(t)
	for i := 0; i < 3; i++ {
		body, err := f.Get(context.Background(), srv.URL, FetchOpts{CacheTTL: time.Hour})
		require.NoError(t, err)
		assert.Equal(t, []byte("once"), body)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetcherRateLimitedUpstream(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f, _ := testFabric(t)
	_, err := f.Get(context.Background(), srv.URL, FetchOpts{})
	require.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
}

func TestFetcherClientError(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, _ := testFabric(t)
	_, err := f.Get(context.Background(), srv.URL, FetchOpts{MaxRetries: 3})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, int32(1), hits.Load(), "4xx must not retry")
}

func TestFetcherRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f, _ := testFabric(t)
	body, err := f.Get(context.Background(), srv.URL, FetchOpts{})
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), body)
	assert.Equal(t, int32(3), hits.Load(), "two retries then success")
}

func TestFetcherBadURL(t *testing.T) {
	t.Parallel()
	f, _ := testFabric(t)
	_, err := f.Get(context.Background(), "not a url", FetchOpts{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
