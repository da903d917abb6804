// Package strings holds small list helpers shared by config parsing and the
// user directory.
package strings

import (
	"strings"
)

// Dedupe applies normalize to each value and drops empty results and repeats.
// Order of first occurrence is preserved. A nil normalize trims whitespace.
func Dedupe(values []string, normalize func(string) string) []string {
	if normalize == nil {
		normalize = strings.TrimSpace
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList parses a comma-separated list such as an environment variable.
//
//	SplitList(" a.com/x, ,b.com ,a.com/x") // []string{"a.com/x", "b.com"}
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return Dedupe(strings.Split(s, ","), nil)
}
