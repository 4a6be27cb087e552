package utils

import "testing"

func TestSplitIssueID(t *testing.T) {
	tests := []struct {
		id, prefix, hash string
	}{
		{"wb-a3f8e9", "wb", "a3f8e9"},
		{"web-app-0k2", "web-app", "0k2"},
		{"a3f8e9", "", "a3f8e9"},
		{"-abc", "", "-abc"},
		{"wb-", "", "wb-"},
	}
	for _, tt := range tests {
		p, h := SplitIssueID(tt.id)
		if p != tt.prefix || h != tt.hash {
			t.Errorf("SplitIssueID(%q) = (%q, %q), want (%q, %q)", tt.id, p, h, tt.prefix, tt.hash)
		}
	}
}

func TestMatchesHashFragment(t *testing.T) {
	if !MatchesHashFragment("wb-a3f8e9", "", "3F8") {
		t.Fatal("fragment should match id hash case-insensitively")
	}
	if MatchesHashFragment("wb-a3f8e9", "", "wb") {
		t.Fatal("fragment must not match the prefix")
	}
	if !MatchesHashFragment("wb-1", "deadbeef", "dead") {
		t.Fatal("fragment should match content hash prefix")
	}
	if MatchesHashFragment("wb-1", "deadbeef", "beef") {
		t.Fatal("content hash matches are prefix-only")
	}
	if MatchesHashFragment("wb-1", "deadbeef", " ") {
		t.Fatal("blank fragment matches nothing")
	}
}

func TestLooksLikePrefixedID(t *testing.T) {
	for in, want := range map[string]bool{
		"aap-4ar":      true,
		"wb-a3f8e9":    true,
		"a3f8e9":       false,
		"-x":           false,
		"WB-1":         false,
		"toolongpfx-1": false,
	} {
		if got := looksLikePrefixedID(in); got != want {
			t.Errorf("looksLikePrefixedID(%q) = %v, want %v", in, got, want)
		}
	}
}
