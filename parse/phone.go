package parse

import (
	"regexp"
	"sort"
	"strings"
)

// phonePattern matches US numbers with an optional +1 country code and any
// of space, dot or dash as separators.
var phonePattern = regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?(\d{3})\)?[\s.-]?(\d{3})[\s.-]?(\d{4})\b`)

// NormalizePhone finds the first US phone number in s and formats it as
// NNN-NNN-NNNN.
func NormalizePhone(s string) (string, bool) {
	m := phonePattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1] + "-" + m[2] + "-" + m[3], true
}

// DefaultCities are the city names the catering template runs into the
// street line without a comma.
var DefaultCities = []string{
	"North Las Vegas",
	"Las Vegas",
	"Henderson",
	"Boulder City",
}

// InsertCityComma puts ", " before the first known city in addr when the
// source omitted it. Longer names are tried first so that "North Las Vegas"
// is not split.
func InsertCityComma(addr string, cities []string) string {
	ordered := append([]string(nil), cities...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})

	for _, city := range ordered {
		if city == "" {
			continue
		}
		idx := strings.Index(addr, city)
		if idx <= 0 {
			continue
		}
		street := strings.TrimRight(addr[:idx], " ")
		if street == "" || strings.HasSuffix(street, ",") {
			return addr
		}
		return street + ", " + addr[idx:]
	}
	return addr
}
