package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/jobharvest/internal/config"
	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/normalize"
	"github.com/fairyhunter13/jobharvest/internal/registry"
)

const employerFetchParallel = 4

// CompanyAdapter walks configured employer career pages and projects
// listings onto raw private-sector job records.
type CompanyAdapter struct {
	employers []config.Employer
	fetch     *Fetcher
	cacheTTL  time.Duration
	log       *slog.Logger
	health    *health
}

func NewCompany(employers []config.Employer, fetch *Fetcher, cacheTTL time.Duration, log *slog.Logger) (*CompanyAdapter, error) {
	if err := registry.Guard(domain.SourceCompany); err != nil {
		return nil, err
	}
	kept := make([]config.Employer, 0, len(employers))
	for _, e := range employers {
		if entry, ok := registry.Lookup(e.ID); ok {
			log.Warn("dropping disabled employer",
				slog.String("employer", e.ID),
				slog.String("reason", entry.Reason))
			continue
		}
		kept = append(kept, e)
	}
	return &CompanyAdapter{
		employers: kept,
		fetch:     fetch,
		cacheTTL:  cacheTTL,
		log:       log,
		health:    newHealth(),
	}, nil
}

func (a *CompanyAdapter) Name() string { return domain.SourceCompany }

func (a *CompanyAdapter) Status() domain.SourceStatus { return a.health.snapshot() }

// Scrape visits every employer page in parallel. The rate limiter keys on
// host, so distinct employers do not slow each other down.
func (a *CompanyAdapter) Scrape(ctx context.Context, f domain.Filter) (domain.SourceResult, error) {
	var (
		mu   sync.Mutex
		jobs []domain.Job
		errs int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(employerFetchParallel)

	for _, emp := range a.employers {
		g.Go(func() error {
			got, err := a.scrapeEmployer(gctx, emp, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs++
				a.log.Warn("employer scrape failed",
					slog.String("employer", emp.ID),
					slog.Any("error", err))
				return nil
			}
			jobs = append(jobs, got...)
			return nil
		})
	}
	_ = g.Wait()

	a.health.markRun(len(jobs), errs)
	return domain.SourceResult{
		Jobs:       jobs,
		SourceName: domain.SourceCompany,
	}, nil
}

func (a *CompanyAdapter) scrapeEmployer(ctx context.Context, emp config.Employer, f domain.Filter) ([]domain.Job, error) {
	body, err := a.fetch.Get(ctx, emp.CareerPageURL, FetchOpts{CacheTTL: a.cacheTTL})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("op=company.scrapeEmployer: %w: %w", domain.ErrParseFailure, err)
	}

	var jobs []domain.Job
	doc.Find(emp.Selectors.Listing).Each(func(_ int, row *goquery.Selection) {
		j, err := projectCompanyRow(emp, row)
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

func projectCompanyRow(emp config.Employer, row *goquery.Selection) (domain.Job, error) {
	sel := emp.Selectors
	title := strings.TrimSpace(row.Find(sel.Title).Text())
	if title == "" {
		return domain.Job{}, fmt.Errorf("op=company.projectRow: empty title: %w", domain.ErrParseFailure)
	}

	company := strings.TrimSpace(selText(row, sel.Company))
	if company == "" {
		company = emp.ID
	}
	desc := truncateRunes(strings.TrimSpace(selText(row, sel.Description)), maxDescriptionRunes)

	j := domain.Job{
		Title:       title,
		Description: desc,
		Company:     domain.Company{Name: company, Type: domain.CompanyPrivate},
		Location:    selText(row, sel.Location),
		Source:      domain.SourceCompany,
		SourceURL:   resolveLink(emp.CareerPageURL, row, sel.Link),
		JobLevel:    normalize.DetectLevel(title),
		RemoteType:  normalize.DetectRemote(title + " " + desc),
	}
	if j.Location == "" {
		j.Location = detectLocation(title + " " + desc)
	}
	j.SalaryMin, j.SalaryMax = normalize.ParseSalary(selText(row, sel.Salary) + " " + desc)
	return j, nil
}
