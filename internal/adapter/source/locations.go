package source

import "strings"

// saLocations is the closed set of South African cities and provinces the
// location heuristic matches against. Order matters: cities before
// provinces so "Cape Town" wins over "Western Cape" when both appear.
var saLocations = []string{
	"cape town",
	"johannesburg",
	"joburg",
	"sandton",
	"pretoria",
	"durban",
	"port elizabeth",
	"gqeberha",
	"bloemfontein",
	"east london",
	"stellenbosch",
	"centurion",
	"midrand",
	"polokwane",
	"nelspruit",
	"kimberley",
	"pietermaritzburg",
	"gauteng",
	"western cape",
	"eastern cape",
	"northern cape",
	"kwazulu-natal",
	"kwazulu natal",
	"free state",
	"north west",
	"limpopo",
	"mpumalanga",
}

const fallbackLocation = "South Africa"

// detectLocation scans free text for a known city or province, falling
// back to the country when nothing matches.
func detectLocation(text string) string {
	t := strings.ToLower(text)
	for _, loc := range saLocations {
		if strings.Contains(t, loc) {
			return loc
		}
	}
	return fallbackLocation
}
