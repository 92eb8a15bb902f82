package normalize

import (
	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// sourceRank orders source attribution on merge conflicts: paid search
// beats government beats RSS beats company pages.
var sourceRank = map[string]int{
	domain.SourceSerpAPI:    3,
	domain.SourceGovernment: 2,
	domain.SourceRSS:        1,
	domain.SourceCompany:    0,
}

// Merge combines two records with the same identity into one whose fields
// are the most specific non-empty values. The higher-ranked source wins
// conflicts and provides attribution; SourceURL comes from whichever side
// actually has one.
func Merge(a, b domain.Job) domain.Job {
	win, lose := a, b
	if sourceRank[b.Source] > sourceRank[a.Source] {
		win, lose = b, a
	}

	out := win
	out.Title = pickString(win.Title, lose.Title)
	out.Location = pickString(win.Location, lose.Location)
	if out.Company.Name == "" {
		out.Company.Name = lose.Company.Name
	}
	if out.Company.Type == "" {
		out.Company.Type = lose.Company.Type
	}
	// the longer description carries more signal
	if len(lose.Description) > len(out.Description) {
		out.Description = lose.Description
	}
	out.SourceURL = pickString(win.SourceURL, lose.SourceURL)
	if out.SalaryMin == nil {
		out.SalaryMin = lose.SalaryMin
	}
	if out.SalaryMax == nil {
		out.SalaryMax = lose.SalaryMax
	}
	if out.SalaryCurrency == "" {
		out.SalaryCurrency = lose.SalaryCurrency
	}
	if out.JobType == "" {
		out.JobType = lose.JobType
	}
	if out.JobLevel == "" {
		out.JobLevel = lose.JobLevel
	} else if out.JobLevel == domain.LevelMid && lose.JobLevel != "" && lose.JobLevel != domain.LevelMid {
		// a concrete band beats the mid default
		out.JobLevel = lose.JobLevel
	}
	if out.RemoteType == "" {
		out.RemoteType = lose.RemoteType
	}
	if out.PostedDate.IsZero() || (!lose.PostedDate.IsZero() && lose.PostedDate.Before(out.PostedDate)) {
		if !lose.PostedDate.IsZero() {
			out.PostedDate = lose.PostedDate
		}
	}
	out.Skills = unionStrings(win.Skills, lose.Skills)
	out.Benefits = unionStrings(win.Benefits, lose.Benefits)
	return out
}

func pickString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
