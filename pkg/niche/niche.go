// Package niche scores candidate text against the configured keyword
// set. Pure functions, no state.
package niche

import "strings"

// Match reports whether text contains at least one keyword,
// case-insensitively. Empty or missing text never matches.
func Match(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Matching returns the keywords found in text, for logging.
func Matching(text string, keywords []string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var hits []string
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	return hits
}
