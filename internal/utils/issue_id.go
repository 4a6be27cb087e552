package utils

import "strings"

// SplitIssueID splits "wb-a3f8e9" into ("wb", "a3f8e9").
// Multi-part prefixes keep everything before the last hyphen:
//   - "web-app-a3f8e9" -> ("web-app", "a3f8e9")
//
// An ID without a hyphen is all hash.
func SplitIssueID(issueID string) (prefix, hash string) {
	idx := strings.LastIndex(issueID, "-")
	if idx <= 0 || idx == len(issueID)-1 {
		return "", issueID
	}
	return issueID[:idx], issueID[idx+1:]
}

// ExtractIssuePrefix extracts the prefix from an issue ID like "wb-a3f" -> "wb"
func ExtractIssuePrefix(issueID string) string {
	prefix, _ := SplitIssueID(issueID)
	return prefix
}

// MatchesHashFragment reports whether fragment identifies the issue, either
// as a substring of the ID's hash part or as a prefix of its content hash.
func MatchesHashFragment(issueID, contentHash, fragment string) bool {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return false
	}
	_, hash := SplitIssueID(issueID)
	if strings.Contains(strings.ToLower(hash), fragment) {
		return true
	}
	return contentHash != "" && strings.HasPrefix(strings.ToLower(contentHash), fragment)
}
