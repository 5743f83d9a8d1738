package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// numberCleaner drops grouping separators and normalizes the remote
// system's "(-)" negative marker to a leading minus sign.
var numberCleaner = strings.NewReplacer(",", "", "(-)", "-", " ", "")

// ParseNumber converts exported numeric text to float64. The second result
// is false for empty or non-numeric text.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = numberCleaner.Replace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.Trim(s, "()")
	}
	s = strings.Replace(s, "--", "", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLogical treats "1" and "true" (any case) as true, anything else as false.
func ParseLogical(s string) bool {
	s = strings.TrimSpace(s)
	return s == "1" || strings.EqualFold(s, "true")
}

// ParseDate keeps values that start with a YYYY-MM-DD date. Anything after
// the date part is ignored.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
