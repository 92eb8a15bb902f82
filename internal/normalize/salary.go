package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// ZAR salary extraction. The closed pattern set covers the forms seen on
// South African boards: "R25 000 per month", "R450k - R600k per annum",
// "ZAR 700,000", "R1.2m pa".
var (
	salaryRangeRe  = regexp.MustCompile(`(?i)(?:R|ZAR)\s*([\d][\d\s,.]*[km]?)\s*(?:-|–|to)\s*(?:R|ZAR)?\s*([\d][\d\s,.]*[km]?)`)
	salarySingleRe = regexp.MustCompile(`(?i)(?:R|ZAR)\s*([\d][\d\s,.]*[km]?)`)
	perMonthRe     = regexp.MustCompile(`(?i)per\s+month|p/?m\b|monthly`)
)

// ParseSalary extracts an annual ZAR range from free text. Monthly amounts
// are annualized. Returns nils when no amount parses.
func ParseSalary(text string) (min, max *float64) {
	monthly := perMonthRe.MatchString(text)

	if m := salaryRangeRe.FindStringSubmatch(text); m != nil {
		lo, okLo := parseAmount(m[1])
		hi, okHi := parseAmount(m[2])
		if okLo && okHi {
			if monthly {
				lo *= 12
				hi *= 12
			}
			if lo > hi {
				lo, hi = hi, lo
			}
			return &lo, &hi
		}
	}
	if m := salarySingleRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			if monthly {
				v *= 12
			}
			return &v, nil
		}
	}
	return nil, nil
}

// parseAmount handles digit groups with space/comma separators and k/m
// suffixes. Amounts below 1000 without a suffix are rejected as noise
// (grade numbers, reference codes).
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		mult = 1e3
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult = 1e6
		s = strings.TrimSuffix(s, "m")
	}
	s = strings.NewReplacer(" ", "", ",", "", " ", "").Replace(s)
	s = strings.TrimSuffix(s, ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	v *= mult
	if mult == 1 && v < 1000 {
		return 0, false
	}
	return v, true
}
