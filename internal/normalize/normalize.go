package normalize

import (
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// Normalizer turns raw adapter output into canonical, deduplicated job
// records. A single Normalizer is shared by all adapters; Process is the
// only entry point and is safe for concurrent use through the dedup set.
type Normalizer struct {
	dedup *DedupSet
	log   *slog.Logger

	now func() time.Time
}

// Stats summarizes one Process call.
type Stats struct {
	Accepted   int
	Rejected   int
	Duplicates int
	Filtered   int
}

func New(dedup *DedupSet, log *slog.Logger) *Normalizer {
	if dedup == nil {
		dedup = NewDedupSet(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{dedup: dedup, log: log, now: time.Now}
}

// Normalize canonicalizes a single raw record. It trims text fields,
// assigns the deterministic identity, fills defaults (scraped_at, ZAR
// currency, posted date clamped to now) and validates the result.
func (n *Normalizer) Normalize(raw domain.Job) (domain.Job, error) {
	j := raw
	j.Title = strings.TrimSpace(j.Title)
	j.Description = strings.TrimSpace(j.Description)
	j.Company.Name = strings.TrimSpace(j.Company.Name)
	j.Location = strings.ToLower(strings.TrimSpace(j.Location))

	now := n.now()
	if j.ScrapedAt.IsZero() {
		j.ScrapedAt = now
	}
	// future posted dates are clock skew from the source, clamp them
	if j.PostedDate.After(now) {
		j.PostedDate = now
	}
	if j.PostedDate.IsZero() {
		j.PostedDate = now
	}
	if (j.SalaryMin != nil || j.SalaryMax != nil) && j.SalaryCurrency == "" {
		j.SalaryCurrency = "ZAR"
	}
	if j.SalaryMin != nil && j.SalaryMax != nil && *j.SalaryMin > *j.SalaryMax {
		j.SalaryMin, j.SalaryMax = j.SalaryMax, j.SalaryMin
	}
	if j.JobLevel == "" {
		j.JobLevel = DetectLevel(j.Title)
	}
	if j.RemoteType == "" {
		j.RemoteType = DetectRemote(j.Title + " " + j.Description)
	}
	if j.Company.Type == "" {
		j.Company.Type = domain.CompanyPrivate
	}

	j.ID = Identity(j)
	if err := j.Validate(); err != nil {
		return domain.Job{}, err
	}
	return j, nil
}

// Process normalizes a batch of raw records, applies the filter, scores
// the survivors and deduplicates them. Duplicates within the batch merge
// into the already-accepted record; identities seen earlier today are
// dropped outright.
func (n *Normalizer) Process(raws []domain.Job, f domain.Filter) ([]domain.Job, Stats) {
	var stats Stats
	out := make([]domain.Job, 0, len(raws))
	index := make(map[string]int, len(raws))

	for _, raw := range raws {
		j, err := n.Normalize(raw)
		if err != nil {
			stats.Rejected++
			observability.RecordsRejectedTotal.WithLabelValues(raw.Source).Inc()
			n.log.Debug("record rejected",
				slog.String("source", raw.Source),
				slog.String("title", raw.Title))
			continue
		}
		if !PassesFilter(j, f) {
			stats.Filtered++
			continue
		}
		// match_score is meaningful only against a real filter
		if !f.IsZero() {
			score := MatchScore(j, f)
			j.MatchScore = &score
		}

		if i, ok := index[j.ID]; ok {
			out[i] = Merge(out[i], j)
			stats.Duplicates++
			observability.DuplicatesAvoidedTotal.Inc()
			continue
		}
		if n.dedup.Seen(j.ID) {
			stats.Duplicates++
			continue
		}
		index[j.ID] = len(out)
		out = append(out, j)
		stats.Accepted++
		observability.JobsCollectedTotal.WithLabelValues(j.Source).Inc()
	}
	return out, stats
}
