package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/normalize"
	"github.com/fairyhunter13/jobharvest/internal/processor"
	"github.com/fairyhunter13/jobharvest/internal/ratelimit"
	"github.com/fairyhunter13/jobharvest/internal/registry"
)

const (
	serpEndpoint      = "serp.search"
	serpDefaultBatch  = 10
	serpPriorityBatch = 8
	serpCacheTTL      = 30 * time.Minute
)

// executiveKeywords back the executive search strategy.
var executiveKeywords = []string{"CEO", "CFO", "CTO", "director", "executive"}

// SerpConfig is the paid provider's endpoint and credential.
type SerpConfig struct {
	Endpoint string
	APIKey   string
}

// SerpAdapter fronts the paid search provider. Every live call is paid
// for through the quota ledger first; a cached response costs nothing.
// If the ledger cannot be consulted the adapter refuses to operate.
type SerpAdapter struct {
	cfg     SerpConfig
	ledger  domain.Ledger
	proc    *processor.Processor
	limiter *ratelimit.Limiter
	client  *http.Client
	log     *slog.Logger
	health  *health
}

func NewSerp(cfg SerpConfig, ledger domain.Ledger, proc *processor.Processor, limiter *ratelimit.Limiter, log *slog.Logger) (*SerpAdapter, error) {
	if err := registry.Guard(domain.SourceSerpAPI); err != nil {
		return nil, err
	}
	a := &SerpAdapter{
		cfg:     cfg,
		ledger:  ledger,
		proc:    proc,
		limiter: limiter,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log:    log,
		health: newHealth(),
	}
	proc.RegisterHandler(serpEndpoint, a.handle)
	return a, nil
}

func (a *SerpAdapter) Name() string { return domain.SourceSerpAPI }

func (a *SerpAdapter) Status() domain.SourceStatus { return a.health.snapshot() }

// Scrape satisfies the adapter contract with the fresh strategy. The
// scheduler calls Search directly to pick a strategy.
func (a *SerpAdapter) Scrape(ctx context.Context, f domain.Filter) (domain.SourceResult, error) {
	return a.Search(ctx, f, domain.SearchFresh, "")
}

// Search runs one strategic paid query. The search type is chosen by the
// scheduler, never here. A priority hint shrinks the requested batch.
func (a *SerpAdapter) Search(ctx context.Context, f domain.Filter, st domain.SearchType, priorityHint string) (domain.SourceResult, error) {
	queryURL, err := a.buildQuery(f, st, priorityHint)
	if err != nil {
		return domain.SourceResult{}, err
	}

	res := a.proc.Do(ctx, processor.Request{
		Endpoint: serpEndpoint,
		Payload:  queryURL,
		Priority: 0,
		CacheKey: "serp:" + queryURL,
		CacheTTL: serpCacheTTL,
	})
	if res.Err != nil {
		a.health.markRun(0, 1)
		return domain.SourceResult{}, res.Err
	}
	body, ok := res.Data.([]byte)
	if !ok {
		a.health.markRun(0, 1)
		return domain.SourceResult{}, fmt.Errorf("op=serp.search: unexpected payload type: %w", domain.ErrInternal)
	}

	spent := 1
	if res.Status == processor.StatusCached {
		spent = 0
	}
	jobs, parseErrs := a.parseResponse(body, f, st)
	a.health.markRun(len(jobs), parseErrs)
	return domain.SourceResult{
		Jobs:          jobs,
		SourceName:    domain.SourceSerpAPI,
		APICallsSpent: spent,
	}, nil
}

func (a *SerpAdapter) buildQuery(f domain.Filter, st domain.SearchType, priorityHint string) (string, error) {
	base, err := url.Parse(a.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("op=serp.buildQuery: %w: %w", domain.ErrInvalidArgument, err)
	}

	terms := append([]string(nil), f.Keywords...)
	switch st {
	case domain.SearchFresh:
		terms = append(terms, "jobs posted today")
	case domain.SearchExecutive:
		terms = append(terms, executiveKeywords...)
	case domain.SearchGapFill:
		terms = append(terms, "jobs")
	}
	loc := f.Location
	if loc == "" {
		loc = "South Africa"
	}

	batch := serpDefaultBatch
	if priorityHint != "" {
		batch = serpPriorityBatch
	}

	q := base.Query()
	q.Set("engine", "google_jobs")
	q.Set("q", strings.Join(terms, " "))
	q.Set("location", loc)
	q.Set("num", strconv.Itoa(batch))
	q.Set("api_key", a.cfg.APIKey)
	if st == domain.SearchFresh {
		q.Set("chips", "date_posted:today")
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// handle performs one paid call. The spend precedes the request; an HTTP
// failure refunds it so a flaky provider does not burn the day's budget.
func (a *SerpAdapter) handle(ctx context.Context, req processor.Request) (any, error) {
	queryURL, ok := req.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("op=serp.handle: payload is not a url: %w", domain.ErrInvalidArgument)
	}
	u, err := url.Parse(queryURL)
	if err != nil {
		return nil, fmt.Errorf("op=serp.handle: %w: %w", domain.ErrInvalidArgument, err)
	}

	decision, err := a.ledger.TrySpend(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("op=serp.handle: %w", err)
	}
	if decision != domain.SpendGranted {
		return nil, fmt.Errorf("op=serp.handle: spend %s: %w", decision, domain.ErrQuotaExhausted)
	}

	body, err := a.issue(ctx, u)
	if err != nil {
		if rerr := a.ledger.Refund(ctx, 1); rerr != nil {
			a.log.Error("quota refund failed", slog.Any("error", rerr))
		}
		return nil, err
	}
	return body, nil
}

func (a *SerpAdapter) issue(ctx context.Context, u *url.URL) ([]byte, error) {
	if err := a.limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("op=serp.issue: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("op=serp.issue: %w: %w", domain.ErrInvalidArgument, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.limiter.RecordFailure(u.Host)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("op=serp.issue: %w: %w", domain.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("op=serp.issue: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		a.limiter.RecordFailure(u.Host)
		return nil, fmt.Errorf("op=serp.issue: status=429: %w", domain.ErrUpstreamRateLimit)
	case resp.StatusCode >= 400:
		a.limiter.RecordFailure(u.Host)
		return nil, fmt.Errorf("op=serp.issue: status=%d: %w", resp.StatusCode, domain.ErrInternal)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		a.limiter.RecordFailure(u.Host)
		return nil, fmt.Errorf("op=serp.issue: read body: %w", err)
	}
	a.limiter.RecordSuccess(u.Host)
	return body, nil
}

// provider response shape, unknown fields ignored
type serpResponse struct {
	JobsResults []serpJob `json:"jobs_results"`
}

type serpJob struct {
	Title              string `json:"title"`
	CompanyName        string `json:"company_name"`
	Location           string `json:"location"`
	Description        string `json:"description"`
	ShareLink          string `json:"share_link"`
	DetectedExtensions struct {
		PostedAt     string `json:"posted_at"`
		Salary       string `json:"salary"`
		ScheduleType string `json:"schedule_type"`
		WorkFromHome bool   `json:"work_from_home"`
	} `json:"detected_extensions"`
}

func (a *SerpAdapter) parseResponse(body []byte, f domain.Filter, st domain.SearchType) ([]domain.Job, int) {
	var resp serpResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		a.log.Warn("provider response unparseable", slog.Any("error", err))
		return nil, 1
	}

	var (
		jobs []domain.Job
		errs int
	)
	for _, sj := range resp.JobsResults {
		j, err := projectSerpJob(sj, st)
		if err != nil {
			errs++
			continue
		}
		if !normalize.PassesFilter(j, f) {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, errs
}

func projectSerpJob(sj serpJob, st domain.SearchType) (domain.Job, error) {
	title := strings.TrimSpace(sj.Title)
	company := strings.TrimSpace(sj.CompanyName)
	if title == "" || company == "" {
		return domain.Job{}, fmt.Errorf("op=serp.project: missing title or company: %w", domain.ErrParseFailure)
	}

	j := domain.Job{
		Title:       title,
		Description: truncateRunes(strings.TrimSpace(sj.Description), maxDescriptionRunes),
		Company:     domain.Company{Name: company},
		Location:    sj.Location,
		Source:      domain.SourceSerpAPI,
		SourceURL:   sj.ShareLink,
		JobLevel:    normalize.DetectLevel(title),
		RemoteType:  normalize.DetectRemote(title + " " + sj.Description),
	}
	if j.Location == "" {
		j.Location = detectLocation(title + " " + sj.Description)
	}
	if sj.DetectedExtensions.WorkFromHome {
		j.RemoteType = domain.RemoteFull
	}
	if st == domain.SearchExecutive && j.JobLevel == domain.LevelMid {
		j.JobLevel = domain.LevelDirector
	}
	j.SalaryMin, j.SalaryMax = normalize.ParseSalary(sj.DetectedExtensions.Salary)
	j.PostedDate = parsePostedAt(sj.DetectedExtensions.PostedAt, time.Now())
	return j, nil
}

var postedAgoRe = regexp.MustCompile(`(?i)(\d+)\s+(hour|day|week|month)s?\s+ago`)

// parsePostedAt turns the provider's relative "3 days ago" stamps into
// absolute times. Unknown forms fall back to the zero time and get
// defaulted downstream.
func parsePostedAt(s string, now time.Time) time.Time {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return time.Time{}
	case "today", "just posted":
		return now
	case "yesterday":
		return now.AddDate(0, 0, -1)
	}
	m := postedAgoRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}
	}
	switch m[2] {
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	}
	return time.Time{}
}
