package types

import (
	"fmt"
	"strings"
)

// ExternalRefPrefix starts every cross-project dependency target.
const ExternalRefPrefix = "external:"

// ExternalRef names an issue living in another project's store.
type ExternalRef struct {
	Project string `json:"project"`
	IssueID string `json:"issue_id"`
}

// String renders the ref in its persisted form, external:<project>:<id>.
func (r ExternalRef) String() string {
	return ExternalRefPrefix + r.Project + ":" + r.IssueID
}

// IsExternalRef reports whether a dependency target is an external ref.
func IsExternalRef(s string) bool {
	return strings.HasPrefix(s, ExternalRefPrefix)
}

// ParseExternalRef parses "external:<project>:<issue-id>".
func ParseExternalRef(s string) (ExternalRef, error) {
	if !IsExternalRef(s) {
		return ExternalRef{}, fmt.Errorf("not an external ref: %q", s)
	}
	parts := strings.SplitN(strings.TrimPrefix(s, ExternalRefPrefix), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ExternalRef{}, fmt.Errorf("invalid external ref %q (want external:<project>:<issue-id>)", s)
	}
	return ExternalRef{Project: parts[0], IssueID: parts[1]}, nil
}
