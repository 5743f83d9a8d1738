package etl

import "strings"

// DefaultRule fills a required text field that arrived empty. Match is a
// lower-case substring of the target field name.
type DefaultRule struct {
	Match string
	Value func(rec DecodedRecord) string
}

// DefaultRules is evaluated in order; the first match wins.
var DefaultRules = []DefaultRule{
	{Match: "unit", Value: func(DecodedRecord) string { return "Nos" }},
	{Match: "name", Value: func(rec DecodedRecord) string {
		if name, ok := rec["name"].(string); ok && name != "" {
			return name
		}
		return "Unnamed"
	}},
	{Match: "parent", Value: func(DecodedRecord) string { return "Primary" }},
}

// HeuristicDefault returns the fallback for a required text field, reading
// already decoded fields of rec where a rule needs them.
func HeuristicDefault(field string, rec DecodedRecord) (string, bool) {
	lower := strings.ToLower(field)
	for _, rule := range DefaultRules {
		if strings.Contains(lower, rule.Match) {
			return rule.Value(rec), true
		}
	}
	return "", false
}
