package registry

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// Entry names a source that must never be activated, with the reason and
// a pointer to the sanctioned alternative.
type Entry struct {
	SourceID    string
	Reason      string
	Alternative string
}

// disabled is the static list. These blockers are legal or technical, not
// operational, so they are compiled in rather than configured: a config
// mistake must not be able to re-enable them.
var disabled = []Entry{
	{
		SourceID:    "linkedin",
		Reason:      "terms of service prohibit automated access",
		Alternative: "company career pages and paid search cover the same employers",
	},
	{
		SourceID:    "indeed",
		Reason:      "aggressive bot detection, scraping blocked at the edge",
		Alternative: "rss feeds republish most of the same postings",
	},
	{
		SourceID:    "glassdoor",
		Reason:      "login wall plus terms of service prohibition",
		Alternative: "paid search surfaces glassdoor-listed roles",
	},
	{
		SourceID:    "pnet",
		Reason:      "robots.txt disallows the listings paths",
		Alternative: "rss feeds from the same publisher network",
	},
}

// Lookup returns the registry entry for id, if any. Matching is
// case-insensitive on the trimmed id.
func Lookup(id string) (Entry, bool) {
	key := strings.ToLower(strings.TrimSpace(id))
	for _, e := range disabled {
		if e.SourceID == key {
			return e, true
		}
	}
	return Entry{}, false
}

// IsDisabled reports whether id may never be activated.
func IsDisabled(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// All returns a copy of the registry for the status surface.
func All() []Entry {
	out := make([]Entry, len(disabled))
	copy(out, disabled)
	return out
}

// Guard refuses construction of an adapter for a disabled source. Call it
// from every adapter constructor before any wiring happens.
func Guard(id string) error {
	if e, ok := Lookup(id); ok {
		return fmt.Errorf("source %s is disabled (%s): %w", e.SourceID, e.Reason, domain.ErrSourceDisabled)
	}
	return nil
}
