// Package quota implements the paid-API spend ledger.
//
// The ledger is the single authority for "may I spend?" decisions: monthly
// and daily counters are checked atomically and callers never consult a
// cached copy. Two implementations exist; the Redis-backed one is
// authoritative in production so counters survive restarts, the in-memory
// one serves tests and single-process runs.
package quota

import (
	"sync"
	"time"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// Config holds the budget limits and the reset time zone.
type Config struct {
	MonthlyLimit int
	DailyLimit   int
	Location     *time.Location
}

// MemoryLedger tracks spend in process memory. All operations are point
// operations under one mutex.
type MemoryLedger struct {
	mu  sync.Mutex
	cfg Config

	monthlyUsed int
	dailyUsed   int
	curDay      string
	curMonth    string

	now func() time.Time
}

// NewMemoryLedger constructs a MemoryLedger. A nil location means UTC.
func NewMemoryLedger(cfg Config) *MemoryLedger {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &MemoryLedger{cfg: cfg, now: time.Now}
}

// rolloverLocked resets the daily counter at midnight and the monthly
// counter on the first of the month, in the configured zone.
func (l *MemoryLedger) rolloverLocked() {
	now := l.now().In(l.cfg.Location)
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	if l.curDay != day {
		l.curDay = day
		l.dailyUsed = 0
	}
	if l.curMonth != month {
		l.curMonth = month
		l.monthlyUsed = 0
	}
}

// TrySpend atomically checks both limits. If either would be exceeded it
// returns the corresponding denial and mutates nothing.
func (l *MemoryLedger) TrySpend(_ domain.Context, n int) (domain.SpendDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	if l.monthlyUsed+n > l.cfg.MonthlyLimit {
		observability.QuotaSpendTotal.WithLabelValues(string(domain.SpendDeniedMonthly)).Inc()
		return domain.SpendDeniedMonthly, nil
	}
	if l.dailyUsed+n > l.cfg.DailyLimit {
		observability.QuotaSpendTotal.WithLabelValues(string(domain.SpendDeniedDaily)).Inc()
		return domain.SpendDeniedDaily, nil
	}
	l.monthlyUsed += n
	l.dailyUsed += n
	observability.QuotaSpendTotal.WithLabelValues(string(domain.SpendGranted)).Inc()
	return domain.SpendGranted, nil
}

// Refund returns spend after a failed request, floored at zero.
func (l *MemoryLedger) Refund(_ domain.Context, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	l.monthlyUsed -= n
	if l.monthlyUsed < 0 {
		l.monthlyUsed = 0
	}
	l.dailyUsed -= n
	if l.dailyUsed < 0 {
		l.dailyUsed = 0
	}
	return nil
}

// Status reports current usage and the next daily reset instant.
func (l *MemoryLedger) Status(_ domain.Context) (domain.QuotaStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return domain.QuotaStatus{
		MonthlyUsed:  l.monthlyUsed,
		MonthlyLimit: l.cfg.MonthlyLimit,
		DailyUsed:    l.dailyUsed,
		DailyLimit:   l.cfg.DailyLimit,
		ResetAt:      nextDailyReset(l.now(), l.cfg.Location),
	}, nil
}

func nextDailyReset(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

var _ domain.Ledger = (*MemoryLedger)(nil)
