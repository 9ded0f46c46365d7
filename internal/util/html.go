// Package util has small presentation helpers shared by the CLI and TUI.
package util

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	brRe         = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	blockCloseRe = regexp.MustCompile(`(?i)</(?:p|div|h[1-6]|blockquote|pre|table|tr)\s*>`)
	blockOpenRe  = regexp.MustCompile(`(?i)<(?:p|div|h[1-6]|blockquote|pre|table|tr)(?:\s[^>]*)?\s*>`)
	liOpenRe     = regexp.MustCompile(`(?i)<li(?:\s[^>]*)?\s*>`)
	listTagRe    = regexp.MustCompile(`(?i)</?(?:ul|ol|li)(?:\s[^>]*)?\s*>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe   = regexp.MustCompile(`[^\S\n]+`)
)

// CleanHTML flattens HTML event notes into readable plain text: block
// elements become line breaks, list items become bullets, everything else
// is stripped and entity-decoded. Plain-text input passes through mostly
// untouched.
func CleanHTML(s string) string {
	if s == "" {
		return s
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = brRe.ReplaceAllString(s, "\n")
	s = blockCloseRe.ReplaceAllString(s, "\n\n")
	s = blockOpenRe.ReplaceAllString(s, "\n")
	s = liOpenRe.ReplaceAllString(s, "\n• ")
	s = listTagRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")

	s = html.UnescapeString(s)
	s = spaceRunRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
