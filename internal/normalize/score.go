package normalize

import (
	"strings"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// MatchScore rates a job against a filter on a 0-100 rubric:
// 40% keyword coverage, 30% location, 30% level. Remote jobs get partial
// location credit. Government postings use a distinct weighting that
// starts from a base of 50, reflecting their standardized descriptions.
func MatchScore(j domain.Job, f domain.Filter) float64 {
	if j.Company.Type == domain.CompanyGovernment {
		return governmentScore(j, f)
	}

	var score float64
	score += 40 * keywordCoverage(j, f.Keywords)
	score += locationCredit(j, f.Location, 30, 20)
	score += levelCredit(j, f.JobLevel, 30)
	return clampScore(score)
}

func governmentScore(j domain.Job, f domain.Filter) float64 {
	score := 50.0
	score += 20 * keywordCoverage(j, f.Keywords)
	score += locationCredit(j, f.Location, 15, 10)
	score += levelCredit(j, f.JobLevel, 15)
	return clampScore(score)
}

// keywordCoverage is the fraction of filter keywords present in
// title+description, case-insensitive. No keywords means full credit.
func keywordCoverage(j domain.Job, keywords []string) float64 {
	if len(keywords) == 0 {
		return 1
	}
	text := strings.ToLower(j.Title + " " + j.Description)
	hits := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// locationCredit gives full credit on substring match and partial credit
// when the job is fully remote. No location filter means full credit.
func locationCredit(j domain.Job, loc string, full, remote float64) float64 {
	if loc == "" {
		return full
	}
	if strings.Contains(strings.ToLower(j.Location), strings.ToLower(loc)) {
		return full
	}
	if j.RemoteType == domain.RemoteFull {
		return remote
	}
	return 0
}

func levelCredit(j domain.Job, level domain.JobLevel, full float64) float64 {
	if level == "" || j.JobLevel == level {
		return full
	}
	return 0
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
