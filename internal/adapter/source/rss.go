package source

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/jobharvest/internal/config"
	"github.com/fairyhunter13/jobharvest/internal/domain"
	"github.com/fairyhunter13/jobharvest/internal/normalize"
	"github.com/fairyhunter13/jobharvest/internal/registry"
)

const (
	maxDescriptionRunes = 2000
	feedFetchParallel   = 4
)

// Company-name heuristics over title+summary, in order of preference.
// Matches outside 4-49 characters are discarded as noise.
var (
	companyAtRe     = regexp.MustCompile(`(?i)\bat\s+([A-Za-z][A-Za-z0-9&.'\- ]{2,60})`)
	companyHiringRe = regexp.MustCompile(`(?i)^\s*([A-Za-z][A-Za-z0-9&.'\- ]{2,60}?)\s+is\s+hiring`)
	companyDashRe   = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9&.'\- ]{2,60}?)\s*[–—-]\s+\S`)
)

// RSSAdapter projects syndication feeds onto raw job records. Feed groups
// and their priority bands come from the catalogue only.
type RSSAdapter struct {
	groups   []config.RSSGroup
	fetch    *Fetcher
	parser   *gofeed.Parser
	strip    *bluemonday.Policy
	cacheTTL time.Duration
	log      *slog.Logger
	health   *health
}

// NewRSS builds the adapter. Groups whose source name is in the disabled
// registry are dropped here so no request is ever made on their behalf.
func NewRSS(groups []config.RSSGroup, fetch *Fetcher, cacheTTL time.Duration, log *slog.Logger) (*RSSAdapter, error) {
	if err := registry.Guard(domain.SourceRSS); err != nil {
		return nil, err
	}
	kept := make([]config.RSSGroup, 0, len(groups))
	for _, g := range groups {
		if e, ok := registry.Lookup(g.SourceName); ok {
			log.Warn("dropping disabled feed group",
				slog.String("source", g.SourceName),
				slog.String("reason", e.Reason))
			continue
		}
		kept = append(kept, g)
	}
	return &RSSAdapter{
		groups:   kept,
		fetch:    fetch,
		parser:   gofeed.NewParser(),
		strip:    bluemonday.StrictPolicy(),
		cacheTTL: cacheTTL,
		log:      log,
		health:   newHealth(),
	}, nil
}

func (a *RSSAdapter) Name() string { return domain.SourceRSS }

func (a *RSSAdapter) Status() domain.SourceStatus { return a.health.snapshot() }

// Scrape covers every priority band.
func (a *RSSAdapter) Scrape(ctx context.Context, f domain.Filter) (domain.SourceResult, error) {
	return a.ScrapePriorities(ctx, f, "high", "medium", "low")
}

// ScrapePriorities fetches only the groups in the given bands. Feeds are
// fetched in parallel; a failing feed costs an error count, never the run.
func (a *RSSAdapter) ScrapePriorities(ctx context.Context, f domain.Filter, bands ...string) (domain.SourceResult, error) {
	want := make(map[string]bool, len(bands))
	for _, b := range bands {
		want[b] = true
	}

	var (
		mu   sync.Mutex
		jobs []domain.Job
		errs int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedFetchParallel)

	for _, group := range a.groups {
		if !want[group.Priority] {
			continue
		}
		for _, feedURL := range group.Feeds {
			g.Go(func() error {
				got, err := a.scrapeFeed(gctx, group, feedURL, f)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs++
					a.log.Warn("feed scrape failed",
						slog.String("feed", feedURL),
						slog.Any("error", err))
					return nil
				}
				jobs = append(jobs, got...)
				return nil
			})
		}
	}
	_ = g.Wait()

	a.health.markRun(len(jobs), errs)
	return domain.SourceResult{
		Jobs:       jobs,
		SourceName: domain.SourceRSS,
	}, nil
}

func (a *RSSAdapter) scrapeFeed(ctx context.Context, group config.RSSGroup, feedURL string, f domain.Filter) ([]domain.Job, error) {
	body, err := a.fetch.Get(ctx, feedURL, FetchOpts{
		Priority: bandPriority(group.Priority),
		CacheTTL: a.cacheTTL,
	})
	if err != nil {
		return nil, err
	}
	feed, err := a.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("op=rss.scrapeFeed: %w: %w", domain.ErrParseFailure, err)
	}

	jobs := make([]domain.Job, 0, len(feed.Items))
	for _, item := range feed.Items {
		j, err := a.projectItem(item)
		if err != nil {
			// one bad item never aborts the feed
			continue
		}
		if !normalize.PassesFilter(j, f) {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// projectItem maps one feed entry onto a raw job record.
func (a *RSSAdapter) projectItem(item *gofeed.Item) (domain.Job, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return domain.Job{}, fmt.Errorf("op=rss.projectItem: empty title: %w", domain.ErrParseFailure)
	}

	rawDesc := item.Content
	if rawDesc == "" {
		rawDesc = item.Description
	}
	desc := stripHTML(a.strip, rawDesc)

	company := itemCompany(item)
	if company == "" {
		company = extractCompany(title, desc)
	}
	if company == "" {
		return domain.Job{}, fmt.Errorf("op=rss.projectItem: no company for %q: %w", title, domain.ErrParseFailure)
	}

	j := domain.Job{
		Title:       title,
		Description: truncateRunes(desc, maxDescriptionRunes),
		Company:     domain.Company{Name: company},
		Location:    detectLocation(title + " " + desc),
		Source:      domain.SourceRSS,
		SourceURL:   item.Link,
		JobLevel:    normalize.DetectLevel(title),
		RemoteType:  normalize.DetectRemote(title + " " + desc),
	}
	if item.PublishedParsed != nil {
		j.PostedDate = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		j.PostedDate = *item.UpdatedParsed
	}
	j.SalaryMin, j.SalaryMax = normalize.ParseSalary(title + " " + desc)
	return j, nil
}

// itemCompany reads the explicit company fields a feed may carry.
func itemCompany(item *gofeed.Item) string {
	if item.Author != nil && validCompany(item.Author.Name) {
		return strings.TrimSpace(item.Author.Name)
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 && validCompany(item.DublinCoreExt.Creator[0]) {
		return strings.TrimSpace(item.DublinCoreExt.Creator[0])
	}
	if c, ok := item.Custom["company"]; ok && validCompany(c) {
		return strings.TrimSpace(c)
	}
	return ""
}

// extractCompany applies the closed heuristic set over title then summary.
func extractCompany(title, summary string) string {
	for _, re := range []*regexp.Regexp{companyHiringRe, companyAtRe, companyDashRe} {
		for _, text := range []string{title, summary} {
			if m := re.FindStringSubmatch(text); m != nil {
				c := strings.TrimSpace(m[1])
				if validCompany(c) {
					return c
				}
			}
		}
	}
	return ""
}

func validCompany(c string) bool {
	c = strings.TrimSpace(c)
	return len(c) >= 4 && len(c) <= 49
}

func bandPriority(band string) int {
	switch band {
	case "high":
		return 1
	case "medium":
		return 2
	default:
		return 3
	}
}

func stripHTML(p *bluemonday.Policy, s string) string {
	return strings.TrimSpace(html.UnescapeString(p.Sanitize(s)))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
