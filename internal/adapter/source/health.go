package source

import (
	"sync"
	"time"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// health is the per-adapter run ledger behind Status(). An adapter is
// healthy until a run finishes with errors and no jobs at all.
type health struct {
	mu     sync.Mutex
	status domain.SourceStatus

	now func() time.Time
}

func newHealth() *health {
	return &health{
		status: domain.SourceStatus{Healthy: true},
		now:    time.Now,
	}
}

func (h *health) markRun(jobs, errs int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.LastRun = h.now()
	h.status.JobsLastRun = jobs
	h.status.ErrorsLastRun = errs
	h.status.Healthy = jobs > 0 || errs == 0
}

func (h *health) snapshot() domain.SourceStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}
