package normalize

import (
	"strings"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// PassesFilter evaluates the conjunction of all provided predicates.
// Absent predicates pass. Remote-friendly jobs satisfy the location
// predicate implicitly.
func PassesFilter(j domain.Job, f domain.Filter) bool {
	if len(f.Keywords) > 0 && keywordCoverage(j, f.Keywords) == 0 {
		return false
	}
	if f.Location != "" {
		locMatch := strings.Contains(strings.ToLower(j.Location), strings.ToLower(f.Location))
		if !locMatch && j.RemoteType != domain.RemoteFull {
			return false
		}
	}
	if f.JobLevel != "" && j.JobLevel != f.JobLevel {
		return false
	}
	if f.MinSalary > 0 {
		top := 0.0
		if j.SalaryMax != nil {
			top = *j.SalaryMax
		} else if j.SalaryMin != nil {
			top = *j.SalaryMin
		}
		if top < f.MinSalary {
			return false
		}
	}
	if f.Industry != "" {
		text := strings.ToLower(j.Title + " " + j.Description + " " + j.Company.Name)
		if !strings.Contains(text, strings.ToLower(f.Industry)) {
			return false
		}
	}
	if f.GovernmentOnly && j.Company.Type != domain.CompanyGovernment {
		return false
	}
	if f.AcademicOnly && j.Company.Type != domain.CompanyAcademic {
		return false
	}
	return true
}
