package normalize

import (
	"strings"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// levelKeywords maps title/description keywords to seniority bands.
// Order matters: the first band with a hit wins, so c-suite outranks
// "director of engineering" outranks "senior manager".
var levelKeywords = []struct {
	level domain.JobLevel
	words []string
}{
	{domain.LevelCSuite, []string{"ceo", "cto", "cfo", "chief"}},
	{domain.LevelDirector, []string{"director", "vp", "vice president"}},
	{domain.LevelManager, []string{"manager", "head of", "lead"}},
	{domain.LevelSenior, []string{"senior", "sr.", "principal"}},
	{domain.LevelEntry, []string{"junior", "jr.", "entry", "graduate", "intern"}},
}

// DetectLevel infers the seniority band from free text, defaulting to mid.
func DetectLevel(text string) domain.JobLevel {
	t := strings.ToLower(text)
	for _, band := range levelKeywords {
		for _, w := range band.words {
			if strings.Contains(t, w) {
				return band.level
			}
		}
	}
	return domain.LevelMid
}

// DetectRemote classifies the work arrangement from free text. "hybrid"
// outranks plain remote markers.
func DetectRemote(text string) domain.RemoteType {
	t := strings.ToLower(text)
	if strings.Contains(t, "hybrid") {
		return domain.RemoteHybrid
	}
	for _, w := range []string{"remote", "work from home", "wfh"} {
		if strings.Contains(t, w) {
			return domain.RemoteFull
		}
	}
	return domain.RemoteOnsite
}
