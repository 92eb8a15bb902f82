package normalize

import (
	"sync"
	"time"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
)

// DedupSet tracks job identities seen during the current collection day.
// It rolls over at local midnight so yesterday's identities do not
// suppress today's reposts, and it is bounded so a pathological source
// cannot grow it without limit.
type DedupSet struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	day     string
	max     int
	dropped uint64

	now func() time.Time
}

const defaultDedupMax = 50000

// NewDedupSet builds a daily identity set bounded at max entries
// (defaultDedupMax when max <= 0).
func NewDedupSet(max int) *DedupSet {
	if max <= 0 {
		max = defaultDedupMax
	}
	return &DedupSet{
		seen: make(map[string]struct{}),
		max:  max,
		now:  time.Now,
	}
}

// Seen records id and reports whether it was already present today.
// The first sighting of an id returns false.
func (d *DedupSet) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rolloverLocked()
	if _, ok := d.seen[id]; ok {
		d.dropped++
		observability.DuplicatesAvoidedTotal.Inc()
		return true
	}
	if len(d.seen) >= d.max {
		// at capacity we stop remembering rather than evicting, so a
		// full set degrades to letting duplicates through
		return false
	}
	d.seen[id] = struct{}{}
	return false
}

// Dropped returns the number of duplicates suppressed today.
func (d *DedupSet) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	return d.dropped
}

// Len returns the number of identities remembered today.
func (d *DedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked()
	return len(d.seen)
}

func (d *DedupSet) rolloverLocked() {
	day := d.now().Format("2006-01-02")
	if day != d.day {
		d.day = day
		d.seen = make(map[string]struct{})
		d.dropped = 0
	}
}
