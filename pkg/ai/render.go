package ai

import (
	"regexp"
	"strings"
)

var ordinalPrefix = regexp.MustCompile(`^(\d+[.)]|[-*•])\s*`)

// ReplySuggestions returns the first three non-empty lines of a reply
// artifact.
func ReplySuggestions(content string) []string {
	out := make([]string, 0, 3)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// ActionItems parses an actions artifact into items. Ordinal and bullet
// prefixes are stripped, blank lines and "Header:" lines dropped. Content
// reporting that there are no action items yields nothing.
func ActionItems(content string) []string {
	if strings.Contains(strings.ToLower(content), "no action items") {
		return []string{}
	}
	out := []string{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(ordinalPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		out = append(out, line)
	}
	return out
}
