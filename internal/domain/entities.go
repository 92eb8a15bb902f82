// Package domain holds the canonical job model, the error taxonomy, and the
// ports implemented by adapters.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrQuotaExhausted    = errors.New("quota exhausted")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrBackpressure      = errors.New("backpressure")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrSourceDisabled    = errors.New("source disabled")
	ErrParseFailure      = errors.New("parse failure")
	ErrInternal          = errors.New("internal error")
)

// Source tags for the four in-scope adapter classes.
const (
	SourceRSS        = "rss"
	SourceGovernment = "government"
	SourceSerpAPI    = "serpapi"
	SourceCompany    = "company"
)

// CompanyType classifies the employer behind a posting.
type CompanyType string

const (
	CompanyPrivate    CompanyType = "private"
	CompanyGovernment CompanyType = "government"
	CompanyAcademic   CompanyType = "academic"
)

// JobType enumerates employment arrangements.
type JobType string

const (
	JobTypeFullTime   JobType = "full-time"
	JobTypePartTime   JobType = "part-time"
	JobTypeContract   JobType = "contract"
	JobTypeInternship JobType = "internship"
	JobTypeTemporary  JobType = "temporary"
)

// JobLevel enumerates seniority bands.
type JobLevel string

const (
	LevelEntry    JobLevel = "entry"
	LevelMid      JobLevel = "mid"
	LevelSenior   JobLevel = "senior"
	LevelManager  JobLevel = "manager"
	LevelDirector JobLevel = "director"
	LevelCSuite   JobLevel = "c_suite"
)

// RemoteType enumerates work-location arrangements.
type RemoteType string

const (
	RemoteFull   RemoteType = "remote"
	RemoteHybrid RemoteType = "hybrid"
	RemoteOnsite RemoteType = "onsite"
)

// Company identifies the employer on a posting.
type Company struct {
	Name string      `json:"name"`
	Type CompanyType `json:"type,omitempty"`
}

// Job is the canonical normalized record emitted by the core.
// ID is assigned by the normalizer and is deterministic over
// (title, company, location); records are immutable after emission.
type Job struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Company        Company    `json:"company"`
	Location       string     `json:"location"`
	PostedDate     time.Time  `json:"posted_date"`
	ScrapedAt      time.Time  `json:"scraped_at"`
	SalaryMin      *float64   `json:"salary_min,omitempty"`
	SalaryMax      *float64   `json:"salary_max,omitempty"`
	SalaryCurrency string     `json:"salary_currency,omitempty"`
	JobType        JobType    `json:"job_type,omitempty"`
	JobLevel       JobLevel   `json:"job_level,omitempty"`
	RemoteType     RemoteType `json:"remote_type,omitempty"`
	Source         string     `json:"source"`
	SourceURL      string     `json:"source_url,omitempty"`
	Skills         []string   `json:"skills,omitempty"`
	Benefits       []string   `json:"benefits,omitempty"`
	MatchScore     *float64   `json:"match_score,omitempty"`
}

// Validate enforces the record invariants. A job failing validation is
// dropped by the normalizer, never emitted.
func (j Job) Validate() error {
	if j.Title == "" {
		return ErrSchemaInvalid
	}
	if j.Company.Name == "" {
		return ErrSchemaInvalid
	}
	if j.Source == "" {
		return ErrSchemaInvalid
	}
	if !j.PostedDate.IsZero() && !j.ScrapedAt.IsZero() && j.PostedDate.After(j.ScrapedAt) {
		return ErrSchemaInvalid
	}
	if j.SalaryMin != nil && j.SalaryMax != nil && *j.SalaryMin > *j.SalaryMax {
		return ErrSchemaInvalid
	}
	return nil
}

// Filter is the predicate set applied to a batch. Zero values mean the
// predicate is absent.
type Filter struct {
	Keywords       []string `json:"keywords,omitempty"`
	Location       string   `json:"location,omitempty"`
	JobLevel       JobLevel `json:"job_level,omitempty"`
	MinSalary      float64  `json:"min_salary,omitempty"`
	Industry       string   `json:"industry,omitempty"`
	GovernmentOnly bool     `json:"government_only,omitempty"`
	AcademicOnly   bool     `json:"academic_only,omitempty"`
}

// IsZero reports whether no predicate is set.
func (f Filter) IsZero() bool {
	return len(f.Keywords) == 0 && f.Location == "" && f.JobLevel == "" &&
		f.MinSalary == 0 && f.Industry == "" && !f.GovernmentOnly && !f.AcademicOnly
}

// SearchType selects the paid-search strategy. Chosen by the scheduler,
// never by the adapter itself.
type SearchType string

const (
	SearchFresh     SearchType = "fresh"
	SearchExecutive SearchType = "executive"
	SearchGapFill   SearchType = "gap_fill"
)

// SourceResult is what one adapter invocation yields. Partial success is
// expected: Jobs may be non-empty even when some items failed to parse.
type SourceResult struct {
	Jobs          []Job
	SourceName    string
	LegalNote     string
	APICallsSpent int
}

// SourceStatus is the per-adapter health surface.
type SourceStatus struct {
	Healthy       bool      `json:"healthy"`
	LastRun       time.Time `json:"last_run"`
	JobsLastRun   int       `json:"jobs_last_run"`
	ErrorsLastRun int       `json:"errors_last_run"`
	Disabled      bool      `json:"disabled,omitempty"`
	DisabledWhy   string    `json:"disabled_reason,omitempty"`
}

// SourceAdapter is the uniform contract every source class implements.
//
// Scrape must not emit jobs with an empty title or company, must attribute
// every job with its source tag, and must surface per-item errors without
// aborting the whole run.
type SourceAdapter interface {
	Name() string
	Scrape(ctx Context, f Filter) (SourceResult, error)
	Status() SourceStatus
}

// SpendDecision is the outcome of a quota spend attempt.
type SpendDecision string

const (
	SpendGranted       SpendDecision = "granted"
	SpendDeniedDaily   SpendDecision = "denied_daily"
	SpendDeniedMonthly SpendDecision = "denied_monthly"
)

// QuotaStatus is the observability view of the ledger.
type QuotaStatus struct {
	MonthlyUsed  int       `json:"monthly_used"`
	MonthlyLimit int       `json:"monthly_limit"`
	DailyUsed    int       `json:"daily_used"`
	DailyLimit   int       `json:"daily_limit"`
	ResetAt      time.Time `json:"reset_at"`
}

// Ledger is the single authority for paid-API spend decisions. Callers must
// not cache its answers; if the ledger cannot be consulted the paid source
// fails closed.
type Ledger interface {
	TrySpend(ctx Context, n int) (SpendDecision, error)
	Refund(ctx Context, n int) error
	Status(ctx Context) (QuotaStatus, error)
}

// JobSink is the opaque downstream consumer of normalized jobs. Upsert is
// idempotent on Job.ID; late failures are logged, never fatal to the core.
type JobSink interface {
	Upsert(ctx Context, j Job) error
}

// JobRepository persists normalized jobs (worker side of the sink).
type JobRepository interface {
	Upsert(ctx Context, j Job) error
	Get(ctx Context, id string) (Job, error)
	CountBySourceSince(ctx Context, since time.Time) (map[string]int, error)
}

// Context is an alias so port signatures stay terse; adapters pass
// context.Context through unchanged.
type Context = context.Context
