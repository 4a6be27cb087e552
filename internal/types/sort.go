package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSortPolicy accepts hybrid, priority or oldest (case-insensitive).
// The empty string selects SortPolicyHybrid.
func ParseSortPolicy(raw string) (SortPolicy, error) {
	p := SortPolicy(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" {
		return SortPolicyHybrid, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("invalid sort policy %q (valid: hybrid, priority, oldest)", raw)
	}
	return p, nil
}

// ParsePriority accepts 0-4 or P0-P4.
func ParsePriority(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if len(s) > 1 && (s[0] == 'P' || s[0] == 'p') {
		s = s[1:]
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 4 {
		return 0, fmt.Errorf("invalid priority %q (expected 0-4 or P0-P4)", raw)
	}
	return p, nil
}

// ParseIssueType validates a type name.
func ParseIssueType(raw string) (IssueType, error) {
	t := IssueType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid issue type %q (valid: bug, feature, task, epic, chore)", raw)
	}
	return t, nil
}
