package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/scheduler"
)

// Orchestrator is the slice of the scheduler the HTTP surface needs.
type Orchestrator interface {
	RunSlot(ctx context.Context, hour int) (scheduler.SlotSummary, error)
	FullSweep(ctx context.Context) (scheduler.DailySummary, error)
	Status(ctx context.Context) scheduler.Status
}

// ReadinessCheck probes one downstream dependency.
type ReadinessCheck func(ctx context.Context) error

// Server wires the scheduler and quota ledger to HTTP handlers.
type Server struct {
	Sched  Orchestrator
	Ledger domain.Ledger
	Checks map[string]ReadinessCheck
	Log    *slog.Logger
}

// NewServer constructs a Server. checks may be nil when the process has
// no downstream dependencies to probe.
func NewServer(sched Orchestrator, ledger domain.Ledger, checks map[string]ReadinessCheck, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{Sched: sched, Ledger: ledger, Checks: checks, Log: log}
}

// StatusHandler reports the scheduler state machine, per-source health,
// quota usage, and the day's running totals.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Sched.Status(r.Context()))
	}
}

// QuotaHandler reports the paid-API ledger counters.
func (s *Server) QuotaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Ledger.Status(r.Context())
		if err != nil {
			writeError(w, r, fmt.Errorf("quota status: %w", domain.ErrLedgerUnavailable))
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// TriggerSlotHandler runs one slot synchronously and returns its summary.
// This is an operator tool; the cron schedule remains the normal driver.
func (s *Server) TriggerSlotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hour, err := strconv.Atoi(chi.URLParam(r, "hour"))
		if err != nil || hour < 0 || hour > 23 {
			writeError(w, r, fmt.Errorf("hour must be 0..23: %w", domain.ErrInvalidArgument))
			return
		}
		sum, err := s.Sched.RunSlot(r.Context(), hour)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// TriggerSweepHandler kicks off a full-day sweep in the background and
// returns immediately; a sweep can run for hours.
func (s *Server) TriggerSweepHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lg := LoggerFrom(r)
		go func() {
			sum, err := s.Sched.FullSweep(context.Background())
			if err != nil {
				lg.Error("full sweep failed", slog.Any("error", err))
				return
			}
			lg.Info("full sweep completed",
				slog.Int("jobs", sum.Jobs),
				slog.Int("quota_spent", sum.QuotaSpent))
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

// ReadyzHandler probes every configured dependency with a short timeout.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := make(map[string]string, len(s.Checks))
		ready := true
		for name, check := range s.Checks {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			if err := check(ctx); err != nil {
				result[name] = err.Error()
				ready = false
			} else {
				result[name] = "ok"
			}
			cancel()
		}
		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "checks": result})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ready": true, "checks": result})
	}
}
