package normalize

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// Identity computes the stable 16-hex-character name for a job: a 128-bit
// hash over the lowercased (title, company, location) tuple, truncated.
// Identical tuples across sources collapse to the same identity.
func Identity(j domain.Job) string {
	key := canonKey(j.Title) + "_" + canonKey(j.Company.Name) + "_" + canonKey(j.Location)
	h := xxh3.Hash128([]byte(key))
	return fmt.Sprintf("%016x", h.Hi)
}

func canonKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
