package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/jobharvest/internal/adapter/httpserver"
	"github.com/fairyhunter13/jobharvest/internal/app"
	"github.com/fairyhunter13/jobharvest/internal/config"
	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/quota"
	"github.com/fairyhunter13/jobharvest/internal/scheduler"
)

type fakeOrch struct {
	mu        sync.Mutex
	slotCalls []int
	sweeps    atomic.Int32
	slotErr   error
}

func (f *fakeOrch) RunSlot(_ context.Context, hour int) (scheduler.SlotSummary, error) {
	f.mu.Lock()
	f.slotCalls = append(f.slotCalls, hour)
	f.mu.Unlock()
	if f.slotErr != nil {
		return scheduler.SlotSummary{}, f.slotErr
	}
	return scheduler.SlotSummary{Hour: hour, Jobs: 42, PerSource: map[string]int{domain.SourceRSS: 42}}, nil
}

func (f *fakeOrch) FullSweep(context.Context) (scheduler.DailySummary, error) {
	f.sweeps.Add(1)
	return scheduler.DailySummary{Jobs: 950}, nil
}

func (f *fakeOrch) Status(context.Context) scheduler.Status {
	return scheduler.Status{State: scheduler.StateIdle, JobsToday: 120}
}

func newTestHandler(t *testing.T, orch *fakeOrch, checks map[string]httpserver.ReadinessCheck) http.Handler {
	t.Helper()
	ledger := quota.NewMemoryLedger(quota.Config{MonthlyLimit: 250, DailyLimit: 8})
	srv := httpserver.NewServer(orch, ledger, checks, nil)
	cfg := config.Config{CORSAllowOrigins: "*", RateLimitPerMin: 60}
	return app.BuildRouter(cfg, srv)
}

func TestStatusEndpoint(t *testing.T) {
	h := newTestHandler(t, &fakeOrch{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, scheduler.StateIdle, got.State)
	assert.Equal(t, 120, got.JobsToday)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestQuotaEndpoint(t *testing.T) {
	h := newTestHandler(t, &fakeOrch{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/quota", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.QuotaStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 250, got.MonthlyLimit)
	assert.Equal(t, 8, got.DailyLimit)
	assert.Zero(t, got.DailyUsed)
}

func TestTriggerSlot(t *testing.T) {
	orch := &fakeOrch{}
	h := newTestHandler(t, orch, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/trigger/slot/9", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got scheduler.SlotSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 9, got.Hour)
	assert.Equal(t, 42, got.Jobs)
	assert.Equal(t, []int{9}, orch.slotCalls)
}

func TestTriggerSlot_BadHour(t *testing.T) {
	orch := &fakeOrch{}
	h := newTestHandler(t, orch, nil)
	for _, path := range []string{"/v1/trigger/slot/notanhour", "/v1/trigger/slot/24"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
	}
	assert.Empty(t, orch.slotCalls)
}

func TestTriggerSlot_SchedulerError(t *testing.T) {
	orch := &fakeOrch{slotErr: domain.ErrInvalidArgument}
	h := newTestHandler(t, orch, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/trigger/slot/5", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerSweep_Async(t *testing.T) {
	orch := &fakeOrch{}
	h := newTestHandler(t, orch, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/trigger/sweep", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return orch.sweeps.Load() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, &fakeOrch{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	checks := map[string]httpserver.ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	}
	h := newTestHandler(t, &fakeOrch{}, checks)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":true`)
}

func TestReadyz_DependencyDown(t *testing.T) {
	checks := map[string]httpserver.ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"kafka":    func(context.Context) error { return assert.AnError },
	}
	h := newTestHandler(t, &fakeOrch{}, checks)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":false`)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, &fakeOrch{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
