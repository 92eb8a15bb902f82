package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fairyhunter13/jobharvest/internal/config"
	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/normalize"
	"github.com/fairyhunter13/jobharvest/internal/registry"
)

// govBenefits is the standard public-service benefits package attached to
// every government posting.
var govBenefits = []string{
	"medical aid",
	"pension fund",
	"housing allowance",
	"13th cheque",
	"annual leave",
}

// salaryBand maps public-service grade ranges to annual ZAR estimates.
type salaryBand struct {
	loGrade, hiGrade int
	min, max         float64
}

var govSalaryBands = []salaryBand{
	{1, 3, 100_000, 200_000},
	{4, 6, 200_000, 400_000},
	{7, 9, 400_000, 700_000},
	{10, 12, 700_000, 1_200_000},
	{13, 15, 1_200_000, 2_000_000},
	{16, 16, 2_000_000, 3_000_000},
}

var gradeRe = regexp.MustCompile(`\d+`)

// govLevelKeywords maps public-service title conventions onto seniority
// bands. Order matters: "director general" before "director", "manager"
// before "senior" so "Senior Manager" lands on manager.
var govLevelKeywords = []struct {
	level domain.JobLevel
	words []string
}{
	{domain.LevelCSuite, []string{"director general", "director-general"}},
	{domain.LevelDirector, []string{"director", "deputy director"}},
	{domain.LevelManager, []string{"manager"}},
	{domain.LevelSenior, []string{"senior", "principal"}},
	{domain.LevelEntry, []string{"junior", "assistant", "intern"}},
}

// GovAdapter walks configured public portals with declarative selector
// profiles and projects listing rows onto raw government job records.
type GovAdapter struct {
	portals  []config.Portal
	fetch    *Fetcher
	cacheTTL time.Duration
	log      *slog.Logger
	health   *health
}

func NewGovernment(portals []config.Portal, fetch *Fetcher, cacheTTL time.Duration, log *slog.Logger) (*GovAdapter, error) {
	if err := registry.Guard(domain.SourceGovernment); err != nil {
		return nil, err
	}
	kept := make([]config.Portal, 0, len(portals))
	for _, p := range portals {
		if e, ok := registry.Lookup(p.ID); ok {
			log.Warn("dropping disabled portal",
				slog.String("portal", p.ID),
				slog.String("reason", e.Reason))
			continue
		}
		kept = append(kept, p)
	}
	return &GovAdapter{
		portals:  kept,
		fetch:    fetch,
		cacheTTL: cacheTTL,
		log:      log,
		health:   newHealth(),
	}, nil
}

func (a *GovAdapter) Name() string { return domain.SourceGovernment }

func (a *GovAdapter) Status() domain.SourceStatus { return a.health.snapshot() }

// Scrape visits every portal sequentially. Portals are few and slow; the
// rate limiter dominates the wall clock, parallelism buys nothing here.
func (a *GovAdapter) Scrape(ctx context.Context, f domain.Filter) (domain.SourceResult, error) {
	var (
		jobs []domain.Job
		errs int
	)
	for _, portal := range a.portals {
		got, err := a.scrapePortal(ctx, portal, f)
		if err != nil {
			errs++
			a.log.Warn("portal scrape failed",
				slog.String("portal", portal.ID),
				slog.Any("error", err))
			continue
		}
		jobs = append(jobs, got...)
	}
	a.health.markRun(len(jobs), errs)
	return domain.SourceResult{
		Jobs:       jobs,
		SourceName: domain.SourceGovernment,
		LegalNote:  "public-sector vacancy data, published for open access",
	}, nil
}

func (a *GovAdapter) scrapePortal(ctx context.Context, portal config.Portal, f domain.Filter) ([]domain.Job, error) {
	body, err := a.fetch.Get(ctx, portal.ListingsURL, FetchOpts{CacheTTL: a.cacheTTL})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("op=gov.scrapePortal: %w: %w", domain.ErrParseFailure, err)
	}

	var jobs []domain.Job
	doc.Find(portal.Selectors.Listing).Each(func(_ int, row *goquery.Selection) {
		j, err := projectGovRow(portal, row)
		if err != nil {
			return
		}
		if !normalize.PassesFilter(j, f) {
			return
		}
		jobs = append(jobs, j)
	})
	return jobs, nil
}

// projectGovRow maps one listing row onto a raw job record using the
// portal's selector profile. Fields with no selector are skipped.
func projectGovRow(portal config.Portal, row *goquery.Selection) (domain.Job, error) {
	sel := portal.Selectors
	title := strings.TrimSpace(row.Find(sel.Title).Text())
	if title == "" {
		return domain.Job{}, fmt.Errorf("op=gov.projectRow: empty title: %w", domain.ErrParseFailure)
	}

	company := strings.TrimSpace(selText(row, sel.Company))
	if company == "" {
		company = portal.ID
	}

	j := domain.Job{
		Title:       title,
		Description: truncateRunes(strings.TrimSpace(selText(row, sel.Description)), maxDescriptionRunes),
		Company:     domain.Company{Name: company, Type: domain.CompanyGovernment},
		Location:    selText(row, sel.Location),
		Source:      domain.SourceGovernment,
		SourceURL:   resolveLink(portal.BaseURL, row, sel.Link),
		JobLevel:    govLevel(title),
		RemoteType:  domain.RemoteOnsite,
		Benefits:    append([]string(nil), govBenefits...),
	}
	if j.Location == "" {
		j.Location = detectLocation(title + " " + j.Description)
	}
	if grade, ok := parseGrade(selText(row, sel.Level)); ok {
		j.SalaryMin, j.SalaryMax = gradeSalary(grade)
		if j.SalaryMin != nil {
			j.SalaryCurrency = "ZAR"
		}
	}
	return j, nil
}

func selText(row *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(row.Find(selector).First().Text())
}

func resolveLink(baseURL string, row *goquery.Selection, selector string) string {
	if selector == "" {
		return baseURL
	}
	href, ok := row.Find(selector).First().Attr("href")
	if !ok || href == "" {
		return baseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return baseURL
	}
	return base.ResolveReference(ref).String()
}

// parseGrade pulls the numeric grade out of a "level/grade" cell.
func parseGrade(s string) (int, bool) {
	m := gradeRe.FindString(s)
	if m == "" {
		return 0, false
	}
	g, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return g, true
}

// gradeSalary estimates the annual ZAR range for a public-service grade.
func gradeSalary(grade int) (*float64, *float64) {
	for _, b := range govSalaryBands {
		if grade >= b.loGrade && grade <= b.hiGrade {
			min, max := b.min, b.max
			return &min, &max
		}
	}
	return nil, nil
}

// govLevel infers the seniority band from public-service title wording.
func govLevel(title string) domain.JobLevel {
	t := strings.ToLower(title)
	for _, band := range govLevelKeywords {
		for _, w := range band.words {
			if strings.Contains(t, w) {
				return band.level
			}
		}
	}
	// "officer" and anything unrecognized is the mid band
	return domain.LevelMid
}
