package util

import "fmt"

// Hyperlink wraps text in an OSC 8 escape sequence so terminals render it
// as a clickable link. BEL terminators for wider terminal support.
func Hyperlink(url, text string) string {
	return fmt.Sprintf("\033]8;;%s\a%s\033]8;;\a", url, text)
}

// Truncate cuts s to max runes, appending "…" when something was cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}
