// Package scheduler plans and runs the hourly collection slots: it picks
// adapters per slot, enforces the paid quota and the gap-fill rule, and
// aggregates raw records through the normalizer into the downstream sink.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/jobharvest/internal/adapter/observability"
	"github.com/fairyhunter13/jobharvest/internal/config"
	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/normalize"
	"github.com/fairyhunter13/jobharvest/internal/registry"
)

// State is the per-slot lifecycle phase.
type State string

const (
	StateIdle        State = "idle"
	StatePlanning    State = "planning"
	StateExecuting   State = "executing"
	StateAggregating State = "aggregating"
)

// aggregateBudget bounds the aggregation and delivery phase. It is
// deliberately independent of the slot ceiling, which only caps the
// executing phase.
const aggregateBudget = 5 * time.Minute

// unhealthyProbeAfter is how many consecutive slots an unhealthy adapter
// sits out before it is probed again.
const unhealthyProbeAfter = 1

// rssSource is the RSS adapter's band-selective surface.
type rssSource interface {
	domain.SourceAdapter
	ScrapePriorities(ctx context.Context, f domain.Filter, bands ...string) (domain.SourceResult, error)
}

// paidSource is the paid-search adapter's strategy surface.
type paidSource interface {
	domain.SourceAdapter
	Search(ctx context.Context, f domain.Filter, st domain.SearchType, priorityHint string) (domain.SourceResult, error)
}

// Config tunes the daily run.
type Config struct {
	DailyTarget  int
	GapFillFloor int
	SlotCeiling  time.Duration
	BaseFilter   domain.Filter
	// Extra ids disabled by configuration, on top of the static registry.
	DisabledSources []string
}

// Deps wires the scheduler's collaborators. A nil adapter is simply not
// planned; a disabled one is refused at construction.
type Deps struct {
	RSS        rssSource
	Government domain.SourceAdapter
	Company    domain.SourceAdapter
	Serp       paidSource
	Ledger     domain.Ledger
	Normalizer *normalize.Normalizer
	Sink       domain.JobSink
	Log        *slog.Logger
}

// SlotSummary reports one slot's outcome.
type SlotSummary struct {
	Hour       int            `json:"hour"`
	Jobs       int            `json:"jobs"`
	Duplicates int            `json:"duplicates"`
	Rejected   int            `json:"rejected"`
	Filtered   int            `json:"filtered"`
	PerSource  map[string]int `json:"per_source"`
	QuotaSpent int            `json:"quota_spent"`
	Errors     []string       `json:"errors,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// DailySummary aggregates a whole day's slots.
type DailySummary struct {
	Date       string         `json:"date"`
	Slots      []SlotSummary  `json:"slots"`
	Jobs       int            `json:"jobs"`
	Duplicates int            `json:"duplicates"`
	PerSource  map[string]int `json:"per_source"`
	QuotaSpent int            `json:"quota_spent"`
}

// Status is the scheduler's observability surface.
type Status struct {
	State        State                          `json:"state"`
	CurrentSlot  int                            `json:"current_slot"`
	Quota        domain.QuotaStatus             `json:"quota"`
	Sources      map[string]domain.SourceStatus `json:"sources"`
	Disabled     map[string]string              `json:"disabled"`
	JobsToday    int                            `json:"jobs_today"`
	DailyTarget  int                            `json:"daily_target"`
	DupesToday   int                            `json:"duplicates_today"`
	PerSource    map[string]int                 `json:"per_source_today"`
	RecentErrors []string                       `json:"recent_errors,omitempty"`
}

// Scheduler owns the adapters and the slot state machine. Slots are
// strictly sequential; RunSlot holds the run lock for its whole span.
type Scheduler struct {
	cfg  Config
	deps Deps
	plan []SlotPlan

	runMu sync.Mutex // serializes slots

	mu          sync.Mutex // guards everything below
	state       State
	currentSlot int
	day         string
	jobsToday   int
	dupesToday  int
	perSource   map[string]int
	gapFillUsed bool
	disabled    map[string]string
	skips       map[string]int
	errs        *errorRing

	onSlotComplete func(SlotSummary)
	onError        func(source, msg string)
	now            func() time.Time
	cron           *cron.Cron
}

// New builds a Scheduler. Adapters named by the disabled registry or by
// configuration are disconnected here and reported through Status; they
// can never be invoked afterwards.
func New(cfg Config, deps Deps, overrides []config.SlotOverride) (*Scheduler, error) {
	if cfg.DailyTarget <= 0 {
		cfg.DailyTarget = 1000
	}
	if cfg.GapFillFloor <= 0 {
		cfg.GapFillFloor = 900
	}
	if cfg.SlotCeiling <= 0 {
		cfg.SlotCeiling = 30 * time.Minute
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	plan, err := buildPlan(overrides)
	if err != nil {
		return nil, err
	}

	disabled := make(map[string]string)
	for _, e := range registry.All() {
		disabled[e.SourceID] = e.Reason
	}
	for _, id := range cfg.DisabledSources {
		if _, ok := disabled[id]; !ok {
			disabled[id] = "disabled by configuration"
		}
	}
	// disconnect any wired adapter whose id is disabled
	if deps.RSS != nil && disabledHas(disabled, deps.RSS.Name()) {
		deps.RSS = nil
	}
	if deps.Government != nil && disabledHas(disabled, deps.Government.Name()) {
		deps.Government = nil
	}
	if deps.Company != nil && disabledHas(disabled, deps.Company.Name()) {
		deps.Company = nil
	}
	if deps.Serp != nil && disabledHas(disabled, deps.Serp.Name()) {
		deps.Serp = nil
	}

	return &Scheduler{
		cfg:         cfg,
		deps:        deps,
		plan:        plan,
		state:       StateIdle,
		currentSlot: -1,
		perSource:   make(map[string]int),
		disabled:    disabled,
		skips:       make(map[string]int),
		errs:        newErrorRing(32),
		now:         time.Now,
	}, nil
}

func disabledHas(m map[string]string, id string) bool {
	_, ok := m[id]
	return ok
}

// OnSlotComplete registers the single slot-completion hook.
func (s *Scheduler) OnSlotComplete(fn func(SlotSummary)) { s.onSlotComplete = fn }

// OnError registers the single error hook, called once per recorded
// adapter error with the source label and message.
func (s *Scheduler) OnError(fn func(source, msg string)) { s.onError = fn }

// Plan returns the effective slot table.
func (s *Scheduler) Plan() []SlotPlan {
	out := make([]SlotPlan, len(s.plan))
	copy(out, s.plan)
	return out
}

// RunSlot executes the plan for one hour. Errors inside the slot are
// aggregated, never raised; the returned error covers only an unknown
// hour.
func (s *Scheduler) RunSlot(ctx context.Context, hour int) (SlotSummary, error) {
	var plan *SlotPlan
	for i := range s.plan {
		if s.plan[i].Hour == hour {
			plan = &s.plan[i]
			break
		}
	}
	if plan == nil {
		return SlotSummary{}, fmt.Errorf("op=scheduler.RunSlot: no plan for hour %d: %w", hour, domain.ErrInvalidArgument)
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := s.now()
	s.setState(StatePlanning, hour)
	s.rollover()

	execCtx, cancel := context.WithTimeout(ctx, s.cfg.SlotCeiling)
	defer cancel()

	actions := s.planActions(execCtx, *plan)

	s.setState(StateExecuting, hour)
	raws, spent, errStrs := s.execute(execCtx, actions, plan.QuotaBudget)

	// any exception inside executing still aggregates the partial batch;
	// delivery runs on its own budget so a ceiling hit during executing
	// cannot void what was already collected
	s.setState(StateAggregating, hour)
	sinkCtx, sinkCancel := context.WithTimeout(context.WithoutCancel(ctx), aggregateBudget)
	defer sinkCancel()
	jobs, stats := s.deps.Normalizer.Process(raws, s.cfg.BaseFilter)
	for _, j := range jobs {
		if err := s.deps.Sink.Upsert(sinkCtx, j); err != nil {
			// late sink failures are logged, never fatal
			s.deps.Log.Error("sink upsert failed",
				slog.String("job_id", j.ID),
				slog.Any("error", err))
			observability.SinkUpsertsTotal.WithLabelValues("sink", "error").Inc()
			continue
		}
		observability.SinkUpsertsTotal.WithLabelValues("sink", "ok").Inc()
	}

	summary := SlotSummary{
		Hour:       hour,
		Jobs:       stats.Accepted,
		Duplicates: stats.Duplicates,
		Rejected:   stats.Rejected,
		Filtered:   stats.Filtered,
		PerSource:  make(map[string]int),
		QuotaSpent: spent,
		Errors:     errStrs,
		Duration:   s.now().Sub(start),
	}
	for _, j := range jobs {
		summary.PerSource[j.Source]++
	}

	s.mu.Lock()
	s.jobsToday += stats.Accepted
	s.dupesToday += stats.Duplicates
	for src, n := range summary.PerSource {
		s.perSource[src] += n
	}
	for _, e := range errStrs {
		s.errs.add(e)
	}
	s.mu.Unlock()

	observability.SlotDuration.WithLabelValues(strconv.Itoa(hour)).Observe(summary.Duration.Seconds())
	s.setState(StateIdle, -1)

	if s.onSlotComplete != nil {
		s.onSlotComplete(summary)
	}
	s.deps.Log.Info("slot complete",
		slog.Int("hour", hour),
		slog.Int("jobs", summary.Jobs),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("quota_spent", summary.QuotaSpent),
		slog.Int("errors", len(summary.Errors)))
	return summary, nil
}

// planActions resolves a slot's actions against wired adapters and the
// gap-fill rule. Conditional paid actions are planned only when the day's
// running total is under the floor, quota remains, and gap fill has not
// run today.
func (s *Scheduler) planActions(ctx context.Context, plan SlotPlan) []SlotAction {
	s.mu.Lock()
	total := s.jobsToday
	gapUsed := s.gapFillUsed
	s.mu.Unlock()

	actions := make([]SlotAction, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		if !a.Conditional {
			actions = append(actions, a)
			continue
		}
		if gapUsed || total >= s.cfg.GapFillFloor {
			continue
		}
		st, err := s.deps.Ledger.Status(ctx)
		if err != nil || st.DailyUsed >= st.DailyLimit {
			continue
		}
		actions = append(actions, a)
	}
	return actions
}

// execute runs a slot's actions in parallel and collects raw records.
// One adapter's failure costs an error entry, never the slot.
func (s *Scheduler) execute(ctx context.Context, actions []SlotAction, quotaBudget int) ([]domain.Job, int, []string) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		raws    []domain.Job
		spent   int
		errStrs []string
	)
	record := func(res domain.SourceResult, err error, label string) {
		mu.Lock()
		defer mu.Unlock()
		spent += res.APICallsSpent
		if err != nil {
			errStrs = append(errStrs, label+": "+err.Error())
			if s.onError != nil {
				s.onError(label, err.Error())
			}
			return
		}
		raws = append(raws, res.Jobs...)
	}

	for _, a := range actions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch a.Kind {
			case actionRSS:
				if skip, reason := s.adapterSkip(s.deps.RSS); skip {
					if reason != "" {
						record(domain.SourceResult{}, errors.New(reason), "rss")
					}
					return
				}
				start := s.now()
				res, err := s.deps.RSS.ScrapePriorities(ctx, s.cfg.BaseFilter, a.Bands...)
				observability.AdapterScrapeDuration.WithLabelValues(domain.SourceRSS).Observe(s.now().Sub(start).Seconds())
				record(res, err, "rss")
			case actionGovernment:
				s.runPlain(ctx, s.deps.Government, "government", record)
			case actionCompany:
				s.runPlain(ctx, s.deps.Company, "company", record)
			case actionSerp:
				s.executeSerp(ctx, a, quotaBudget, record)
			}
		}()
	}
	wg.Wait()
	return raws, spent, errStrs
}

// runPlain runs a whole-catalogue adapter with skip and timing applied.
func (s *Scheduler) runPlain(ctx context.Context, a domain.SourceAdapter, label string, record func(domain.SourceResult, error, string)) {
	if skip, reason := s.adapterSkip(a); skip {
		if reason != "" {
			record(domain.SourceResult{}, errors.New(reason), label)
		}
		return
	}
	start := s.now()
	res, err := a.Scrape(ctx, s.cfg.BaseFilter)
	observability.AdapterScrapeDuration.WithLabelValues(a.Name()).Observe(s.now().Sub(start).Seconds())
	record(res, err, label)
}

// executeSerp runs one paid query inside a slot. A quota denial is logged
// once and skipped; it is not an error of the slot.
func (s *Scheduler) executeSerp(ctx context.Context, a SlotAction, quotaBudget int, record func(domain.SourceResult, error, string)) {
	if s.deps.Serp == nil {
		return
	}
	if quotaBudget < 1 {
		return
	}
	if skip, reason := s.adapterSkip(s.deps.Serp); skip {
		if reason != "" {
			record(domain.SourceResult{}, fmt.Errorf("%s: %w", reason, domain.ErrInternal), "serp")
		}
		return
	}

	hint := ""
	if a.Search == domain.SearchGapFill {
		hint = "youth"
	}
	start := s.now()
	res, err := s.deps.Serp.Search(ctx, s.cfg.BaseFilter, a.Search, hint)
	observability.AdapterScrapeDuration.WithLabelValues(domain.SourceSerpAPI).Observe(s.now().Sub(start).Seconds())
	if errors.Is(err, domain.ErrQuotaExhausted) {
		s.deps.Log.Info("paid search skipped, quota exhausted",
			slog.String("search_type", string(a.Search)))
		return
	}
	if err == nil && a.Search == domain.SearchGapFill {
		s.mu.Lock()
		s.gapFillUsed = true
		s.mu.Unlock()
	}
	record(res, err, "serp")
}

// adapterSkip reports whether an adapter must be skipped: absent adapters
// skip silently, unhealthy ones skip with a recorded reason. An unhealthy
// adapter is not benched forever; after sitting out unhealthyProbeAfter
// slots it gets a probe run, whose outcome refreshes its health.
func (s *Scheduler) adapterSkip(a domain.SourceAdapter) (bool, string) {
	if a == nil {
		return true, ""
	}
	st := a.Status()
	if st.Healthy || st.LastRun.IsZero() {
		s.mu.Lock()
		delete(s.skips, a.Name())
		s.mu.Unlock()
		return false, ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skips[a.Name()] >= unhealthyProbeAfter {
		delete(s.skips, a.Name())
		return false, ""
	}
	s.skips[a.Name()]++
	return true, "skipped, unhealthy since last run"
}

// RunDaily runs every planned slot in order.
func (s *Scheduler) RunDaily(ctx context.Context) (DailySummary, error) {
	day := DailySummary{
		Date:      s.now().UTC().Format("2006-01-02"),
		PerSource: make(map[string]int),
	}
	for _, p := range s.plan {
		sum, err := s.RunSlot(ctx, p.Hour)
		if err != nil {
			return day, err
		}
		day.Slots = append(day.Slots, sum)
		day.Jobs += sum.Jobs
		day.Duplicates += sum.Duplicates
		day.QuotaSpent += sum.QuotaSpent
		for src, n := range sum.PerSource {
			day.PerSource[src] += n
		}
	}
	return day, nil
}

// FullSweep runs the whole day's plan in one pass, for operators catching
// up after downtime. Quota rules still bind through the ledger.
func (s *Scheduler) FullSweep(ctx context.Context) (DailySummary, error) {
	return s.RunDaily(ctx)
}

// Status snapshots the scheduler and its adapters.
func (s *Scheduler) Status(ctx context.Context) Status {
	s.mu.Lock()
	out := Status{
		State:        s.state,
		CurrentSlot:  s.currentSlot,
		Sources:      make(map[string]domain.SourceStatus),
		Disabled:     make(map[string]string, len(s.disabled)),
		JobsToday:    s.jobsToday,
		DailyTarget:  s.cfg.DailyTarget,
		DupesToday:   s.dupesToday,
		PerSource:    make(map[string]int, len(s.perSource)),
		RecentErrors: s.errs.snapshot(),
	}
	for k, v := range s.disabled {
		out.Disabled[k] = v
	}
	for k, v := range s.perSource {
		out.PerSource[k] = v
	}
	s.mu.Unlock()

	for _, a := range []domain.SourceAdapter{s.deps.RSS, s.deps.Government, s.deps.Company, s.deps.Serp} {
		if a == nil {
			continue
		}
		out.Sources[a.Name()] = a.Status()
	}
	if s.deps.Ledger != nil {
		if q, err := s.deps.Ledger.Status(ctx); err == nil {
			out.Quota = q
		}
	}
	return out
}

// Start schedules the plan with cron and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron = cron.New()
	for _, p := range s.plan {
		_, err := s.cron.AddFunc(fmt.Sprintf("0 %d * * *", p.Hour), func() {
			if _, err := s.RunSlot(context.Background(), p.Hour); err != nil {
				s.deps.Log.Error("slot run failed", slog.Int("hour", p.Hour), slog.Any("error", err))
			}
		})
		if err != nil {
			s.deps.Log.Error("cron registration failed", slog.Int("hour", p.Hour), slog.Any("error", err))
		}
	}
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func (s *Scheduler) setState(st State, slot int) {
	s.mu.Lock()
	s.state = st
	s.currentSlot = slot
	s.mu.Unlock()
}

// rollover resets the daily running totals at the first slot of a new day.
func (s *Scheduler) rollover() {
	day := s.now().UTC().Format("2006-01-02")
	s.mu.Lock()
	if s.day != day {
		s.day = day
		s.jobsToday = 0
		s.dupesToday = 0
		s.perSource = make(map[string]int)
		s.gapFillUsed = false
	}
	s.mu.Unlock()
}
