package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

func f64(v float64) *float64 { return &v }

func TestIdentityDeterministic(t *testing.T) {
	t.Parallel()
	a := domain.Job{Title: "Software Engineer", Company: domain.Company{Name: "Acme"}, Location: "cape town"}
	b := domain.Job{Title: "  software engineer ", Company: domain.Company{Name: "ACME"}, Location: "Cape Town "}

	require.Equal(t, Identity(a), Identity(b))
	require.Len(t, Identity(a), 16)
}

func TestIdentityDistinguishesTuples(t *testing.T) {
	t.Parallel()
	a := domain.Job{Title: "Engineer", Company: domain.Company{Name: "Acme"}, Location: "durban"}
	b := domain.Job{Title: "Engineer", Company: domain.Company{Name: "Acme"}, Location: "pretoria"}
	assert.NotEqual(t, Identity(a), Identity(b))
}

func TestDetectLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		text string
		want domain.JobLevel
	}{
		{"Chief Technology Officer", domain.LevelCSuite},
		{"Director of Engineering", domain.LevelDirector},
		{"Engineering Manager", domain.LevelManager},
		{"Senior Software Engineer", domain.LevelSenior},
		{"Junior Developer", domain.LevelEntry},
		{"Graduate Programme 2026", domain.LevelEntry},
		{"Software Developer", domain.LevelMid},
		// director outranks the manager keyword also present
		{"Director and Manager of Operations", domain.LevelDirector},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectLevel(tc.text), tc.text)
	}
}

func TestDetectRemote(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.RemoteHybrid, DetectRemote("Hybrid remote role"))
	assert.Equal(t, domain.RemoteFull, DetectRemote("Fully remote position"))
	assert.Equal(t, domain.RemoteFull, DetectRemote("Work from home, flexible"))
	assert.Equal(t, domain.RemoteOnsite, DetectRemote("Office based in Sandton"))
}

func TestParseSalaryRange(t *testing.T) {
	t.Parallel()
	min, max := ParseSalary("R450k - R600k per annum")
	require.NotNil(t, min)
	require.NotNil(t, max)
	assert.Equal(t, 450000.0, *min)
	assert.Equal(t, 600000.0, *max)
}

func TestParseSalaryMonthlyAnnualized(t *testing.T) {
	t.Parallel()
	min, max := ParseSalary("R25 000 per month")
	require.NotNil(t, min)
	assert.Nil(t, max)
	assert.Equal(t, 300000.0, *min)
}

func TestParseSalaryInvertedRangeSwapped(t *testing.T) {
	t.Parallel()
	min, max := ParseSalary("ZAR 600,000 to R400,000")
	require.NotNil(t, min)
	require.NotNil(t, max)
	assert.Equal(t, 400000.0, *min)
	assert.Equal(t, 600000.0, *max)
}

func TestParseSalaryRejectsNoise(t *testing.T) {
	t.Parallel()
	min, max := ParseSalary("Grade R12 post, apply at reference R7")
	assert.Nil(t, min)
	assert.Nil(t, max)

	min, max = ParseSalary("competitive salary")
	assert.Nil(t, min)
	assert.Nil(t, max)
}

func TestMatchScoreFullMatch(t *testing.T) {
	t.Parallel()
	j := domain.Job{
		Title:       "Senior Go Engineer",
		Description: "Build distributed systems in Go and Kubernetes",
		Location:    "cape town",
		JobLevel:    domain.LevelSenior,
		Company:     domain.Company{Type: domain.CompanyPrivate},
	}
	f := domain.Filter{Keywords: []string{"go", "kubernetes"}, Location: "Cape Town", JobLevel: domain.LevelSenior}
	assert.Equal(t, 100.0, MatchScore(j, f))
}

func TestMatchScoreRemoteLocationCredit(t *testing.T) {
	t.Parallel()
	j := domain.Job{
		Title:      "Go Engineer",
		Location:   "johannesburg",
		RemoteType: domain.RemoteFull,
		JobLevel:   domain.LevelMid,
		Company:    domain.Company{Type: domain.CompanyPrivate},
	}
	f := domain.Filter{Keywords: []string{"go"}, Location: "Cape Town", JobLevel: domain.LevelMid}
	// 40 keywords + 20 remote credit + 30 level
	assert.Equal(t, 90.0, MatchScore(j, f))
}

func TestMatchScorePartialKeywords(t *testing.T) {
	t.Parallel()
	j := domain.Job{Title: "Python Developer", Description: "Django"}
	f := domain.Filter{Keywords: []string{"python", "go"}}
	// half keyword credit, full location and level credit (absent predicates)
	assert.Equal(t, 20.0+30+30, MatchScore(j, f))
}

func TestMatchScoreGovernmentBase(t *testing.T) {
	t.Parallel()
	j := domain.Job{
		Title:   "Administrative Officer",
		Company: domain.Company{Type: domain.CompanyGovernment},
	}
	// base 50, no predicates so full credit everywhere
	assert.Equal(t, 100.0, MatchScore(j, domain.Filter{}))

	f := domain.Filter{Keywords: []string{"nursing"}, Location: "limpopo", JobLevel: domain.LevelSenior}
	// base 50, zero credit on all three predicates
	assert.Equal(t, 50.0, MatchScore(j, f))
}

func TestPassesFilter(t *testing.T) {
	t.Parallel()
	j := domain.Job{
		Title:       "Senior Data Engineer",
		Description: "Spark pipelines for a retail bank",
		Company:     domain.Company{Name: "BankCo", Type: domain.CompanyPrivate},
		Location:    "johannesburg",
		JobLevel:    domain.LevelSenior,
		SalaryMax:   f64(900000),
	}

	assert.True(t, PassesFilter(j, domain.Filter{}))
	assert.True(t, PassesFilter(j, domain.Filter{Keywords: []string{"spark", "nosuchword"}}))
	assert.False(t, PassesFilter(j, domain.Filter{Keywords: []string{"nosuchword"}}))
	assert.True(t, PassesFilter(j, domain.Filter{Location: "Johannesburg"}))
	assert.False(t, PassesFilter(j, domain.Filter{Location: "durban"}))
	assert.True(t, PassesFilter(j, domain.Filter{JobLevel: domain.LevelSenior}))
	assert.False(t, PassesFilter(j, domain.Filter{JobLevel: domain.LevelEntry}))
	assert.True(t, PassesFilter(j, domain.Filter{MinSalary: 800000}))
	assert.False(t, PassesFilter(j, domain.Filter{MinSalary: 1000000}))
	assert.True(t, PassesFilter(j, domain.Filter{Industry: "bank"}))
	assert.False(t, PassesFilter(j, domain.Filter{GovernmentOnly: true}))
}

func TestPassesFilterRemoteSatisfiesLocation(t *testing.T) {
	t.Parallel()
	j := domain.Job{Location: "anywhere", RemoteType: domain.RemoteFull}
	assert.True(t, PassesFilter(j, domain.Filter{Location: "cape town"}))
}

func TestMergePrefersPaidSearchAttribution(t *testing.T) {
	t.Parallel()
	rss := domain.Job{
		Title:       "DevOps Engineer",
		Company:     domain.Company{Name: "Acme"},
		Location:    "cape town",
		Source:      domain.SourceRSS,
		SourceURL:   "https://feeds.example/123",
		Description: "short blurb",
		Skills:      []string{"docker"},
	}
	serp := domain.Job{
		Title:       "DevOps Engineer",
		Company:     domain.Company{Name: "Acme"},
		Location:    "cape town",
		Source:      domain.SourceSerpAPI,
		Description: "a much longer and more detailed description of the role",
		SalaryMin:   f64(600000),
		Skills:      []string{"kubernetes", "docker"},
	}

	m := Merge(rss, serp)
	assert.Equal(t, domain.SourceSerpAPI, m.Source)
	assert.Equal(t, serp.Description, m.Description)
	assert.Equal(t, "https://feeds.example/123", m.SourceURL)
	require.NotNil(t, m.SalaryMin)
	assert.ElementsMatch(t, []string{"kubernetes", "docker"}, m.Skills)
}

func TestMergeConcreteLevelBeatsMidDefault(t *testing.T) {
	t.Parallel()
	a := domain.Job{Source: domain.SourceSerpAPI, JobLevel: domain.LevelMid}
	b := domain.Job{Source: domain.SourceRSS, JobLevel: domain.LevelSenior}
	assert.Equal(t, domain.LevelSenior, Merge(a, b).JobLevel)
}

func TestMergeEarliestPostedDate(t *testing.T) {
	t.Parallel()
	early := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	a := domain.Job{Source: domain.SourceSerpAPI, PostedDate: late}
	b := domain.Job{Source: domain.SourceRSS, PostedDate: early}
	assert.Equal(t, early, Merge(a, b).PostedDate)
}

func TestDedupSetDailyRollover(t *testing.T) {
	t.Parallel()
	d := NewDedupSet(10)
	clock := time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	require.False(t, d.Seen("abc"))
	require.True(t, d.Seen("abc"))
	assert.Equal(t, uint64(1), d.Dropped())

	clock = clock.Add(2 * time.Hour)
	assert.False(t, d.Seen("abc"), "yesterday's identity must not suppress today's repost")
	assert.Equal(t, uint64(0), d.Dropped())
}

func TestDedupSetBounded(t *testing.T) {
	t.Parallel()
	d := NewDedupSet(2)
	require.False(t, d.Seen("a"))
	require.False(t, d.Seen("b"))
	require.False(t, d.Seen("c"))
	// c was not remembered once full
	assert.False(t, d.Seen("c"))
	assert.Equal(t, 2, d.Len())
}

func newTestNormalizer(t *testing.T, at time.Time) *Normalizer {
	t.Helper()
	n := New(NewDedupSet(0), nil)
	n.now = func() time.Time { return at }
	n.dedup.now = n.now
	return n
}

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer(t, at)

	j, err := n.Normalize(domain.Job{
		Title:     "  Senior Backend Engineer  ",
		Company:   domain.Company{Name: " Takealot "},
		Location:  " Cape Town ",
		Source:    domain.SourceRSS,
		SalaryMin: f64(700000),
	})
	require.NoError(t, err)

	assert.Equal(t, "Senior Backend Engineer", j.Title)
	assert.Equal(t, "Takealot", j.Company.Name)
	assert.Equal(t, "cape town", j.Location)
	assert.Equal(t, at, j.ScrapedAt)
	assert.Equal(t, at, j.PostedDate)
	assert.Equal(t, "ZAR", j.SalaryCurrency)
	assert.Equal(t, domain.LevelSenior, j.JobLevel)
	assert.Equal(t, domain.CompanyPrivate, j.Company.Type)
	assert.Len(t, j.ID, 16)
	assert.Equal(t, Identity(j), j.ID)
}

func TestNormalizeClampsFuturePostedDate(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer(t, at)

	j, err := n.Normalize(domain.Job{
		Title:      "Engineer",
		Company:    domain.Company{Name: "Acme"},
		Source:     domain.SourceRSS,
		PostedDate: at.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, at, j.PostedDate)
}

func TestNormalizeSwapsInvertedSalary(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t, time.Now())
	j, err := n.Normalize(domain.Job{
		Title:     "Engineer",
		Company:   domain.Company{Name: "Acme"},
		Source:    domain.SourceRSS,
		SalaryMin: f64(900000),
		SalaryMax: f64(500000),
	})
	require.NoError(t, err)
	assert.Equal(t, 500000.0, *j.SalaryMin)
	assert.Equal(t, 900000.0, *j.SalaryMax)
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t, time.Now())
	_, err := n.Normalize(domain.Job{Title: "No Company", Source: domain.SourceRSS})
	require.ErrorIs(t, err, domain.ErrSchemaInvalid)

	_, err = n.Normalize(domain.Job{Company: domain.Company{Name: "No Title"}, Source: domain.SourceRSS})
	require.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestProcessMergesInBatchDuplicates(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))

	raws := []domain.Job{
		{
			Title:    "DevOps Engineer",
			Company:  domain.Company{Name: "Acme"},
			Location: "Cape Town",
			Source:   domain.SourceRSS,
		},
		{
			Title:     "DevOps Engineer",
			Company:   domain.Company{Name: "acme"},
			Location:  "cape town",
			Source:    domain.SourceSerpAPI,
			SalaryMin: f64(600000),
		},
	}

	jobs, stats := n.Process(raws, domain.Filter{})
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, domain.SourceSerpAPI, jobs[0].Source, "paid search wins attribution on merge")
	require.NotNil(t, jobs[0].SalaryMin)
}

func TestProcessDropsCrossBatchDuplicates(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))

	raw := domain.Job{
		Title:    "Data Analyst",
		Company:  domain.Company{Name: "StatsCo"},
		Location: "pretoria",
		Source:   domain.SourceRSS,
	}

	jobs, stats := n.Process([]domain.Job{raw}, domain.Filter{})
	require.Len(t, jobs, 1)
	require.Equal(t, 1, stats.Accepted)

	jobs, stats = n.Process([]domain.Job{raw}, domain.Filter{})
	assert.Empty(t, jobs)
	assert.Equal(t, 0, stats.Accepted)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestProcessCountsRejectedAndFiltered(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))

	raws := []domain.Job{
		{Title: "", Company: domain.Company{Name: "Acme"}, Source: domain.SourceRSS},
		{Title: "Nurse", Company: domain.Company{Name: "Hospital"}, Location: "durban", Source: domain.SourceRSS},
	}

	jobs, stats := n.Process(raws, domain.Filter{Location: "cape town"})
	assert.Empty(t, jobs)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Filtered)
}

func TestProcessAssignsMatchScore(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))

	jobs, _ := n.Process([]domain.Job{{
		Title:   "Go Developer",
		Company: domain.Company{Name: "Acme"},
		Source:  domain.SourceRSS,
	}}, domain.Filter{Keywords: []string{"go"}})
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].MatchScore)
	assert.Equal(t, 100.0, *jobs[0].MatchScore)
}

func TestProcessSkipsMatchScoreWithoutFilter(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))

	jobs, _ := n.Process([]domain.Job{{
		Title:   "Go Developer",
		Company: domain.Company{Name: "Acme"},
		Source:  domain.SourceRSS,
	}}, domain.Filter{})
	require.Len(t, jobs, 1)
	assert.Nil(t, jobs[0].MatchScore, "no filter means no score")
}
