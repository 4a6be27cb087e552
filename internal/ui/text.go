package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ellipsis marks truncated text.
const Ellipsis = "…"

// Truncate shortens s to at most width display cells, ending in Ellipsis
// when anything was cut. Newlines are flattened to spaces first.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		w := lipgloss.Width(string(r))
		if used+w > width-1 {
			break
		}
		b.WriteRune(r)
		used += w
	}
	return b.String() + Ellipsis
}
