package mediafile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/robinjoseph08/golib/pointerutil"
)

// Known rating labels mapped to a minimum age. Keys are lowercased. The set
// covers the canonical movie-style ratings plus the labels ComicInfo.xml and
// OPF files use in the wild.
var ageRatingLabels = map[string]int{
	"g":               0,
	"all ages":        0,
	"everyone":        0,
	"early childhood": 3,
	"everyone 10+":    10,
	"pg":              8,
	"pg-13":           13,
	"teen":            13,
	"teen+":           16,
	"ma15+":           15,
	"m":               17,
	"mature":          17,
	"mature 17+":      17,
	"r":               17,
	"r18+":            18,
	"x18+":            18,
	"adults only":     18,
	"adults only 18+": 18,
}

var (
	ageAndUpRE = regexp.MustCompile(`^(\d{1,3})\s*(?:and up|\+)$`)
	ageRangeRE = regexp.MustCompile(`^(\d{1,3})\s*-\s*\d{1,3}$`)
	ageBareRE  = regexp.MustCompile(`^(\d{1,3})$`)
)

// ParseAgeRating normalizes a free-form age rating into a minimum age.
// Label ratings ("Teen", "Mature 17+") resolve through a fixed table; numeric
// forms ("12 and up", "10+", "8-10", "13") take their first number. Returns
// nil for empty or unrecognized input.
func ParseAgeRating(value string) *int {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return nil
	}
	if age, ok := ageRatingLabels[v]; ok {
		return pointerutil.Int(age)
	}
	for _, re := range []*regexp.Regexp{ageAndUpRE, ageRangeRE, ageBareRE} {
		if m := re.FindStringSubmatch(v); m != nil {
			age, err := strconv.Atoi(m[1])
			if err != nil {
				return nil
			}
			return pointerutil.Int(age)
		}
	}
	return nil
}
