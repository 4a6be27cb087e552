package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/workbeads/wb/internal/lease"
	"github.com/workbeads/wb/internal/lockfile"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
	"github.com/workbeads/wb/internal/utils"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		raw     string
		json    bool
		want    outputFormat
		wantErr bool
	}{
		{"", false, formatText, false},
		{"", true, formatJSON, false},
		{"yaml", true, formatYAML, false}, // explicit --format wins over --json
		{"JSON", false, formatJSON, false},
		{" text ", true, formatText, false},
		{"xml", false, "", true},
	}
	for _, tt := range tests {
		got, err := parseOutputFormat(tt.raw, tt.json)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseOutputFormat(%q, %v) error = %v, wantErr %v", tt.raw, tt.json, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseOutputFormat(%q, %v) = %q, want %q", tt.raw, tt.json, got, tt.want)
		}
	}
}

func TestWriteOutput(t *testing.T) {
	res := &types.ClaimResult{ID: "wb-a1", LeaseID: "abc", LeaseOwner: "alice"}
	text := func(w io.Writer) { _, _ = fmt.Fprint(w, "plain") }

	var buf bytes.Buffer
	if err := writeOutput(&buf, formatJSON, res, text); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(buf.String(), `"lease_owner": "alice"`) {
		t.Errorf("json output = %s", buf.String())
	}

	buf.Reset()
	if err := writeOutput(&buf, formatYAML, res, text); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "lease_owner: alice") {
		t.Errorf("yaml output = %s", buf.String())
	}

	buf.Reset()
	if err := writeOutput(&buf, formatText, res, text); err != nil {
		t.Fatalf("text: %v", err)
	}
	if buf.String() != "plain" {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrap: %w", lease.ErrInvalidArgument), codeInvalidArgument},
		{&utils.ResolveError{Token: "a", Err: utils.ErrAmbiguous}, codeAmbiguous},
		{&utils.ResolveError{Token: "a", Err: utils.ErrNotFound}, codeNotFound},
		{fmt.Errorf("claim wb-1: %w", storage.ErrAlreadyClaimed), codeAlreadyClaimed},
		{storage.ErrLeaseMismatch, codeLeaseMismatch},
		{storage.ErrLeaseExpired, codeLeaseExpired},
		{storage.ErrNotClaimable, codeNotClaimable},
		{storage.ErrCycle, codeCycle},
		{storage.ErrNotInitialized, codeNotInitialized},
		{lockfile.ErrLockBusy, codeLockBusy},
		{errors.New("disk on fire"), codeInternal},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestResolveActor(t *testing.T) {
	noGit := func() string { return "" }

	if got := resolveActor("flagged", func() string { return "git-user" }); got != "flagged" {
		t.Errorf("configured actor should win, got %q", got)
	}
	if got := resolveActor("", func() string { return "git-user" }); got != "git-user" {
		t.Errorf("git user should be next, got %q", got)
	}
	t.Setenv("USER", "shell-user")
	if got := resolveActor("", noGit); got != "shell-user" {
		t.Errorf("$USER fallback, got %q", got)
	}
	t.Setenv("USER", "")
	if got := resolveActor("", noGit); got != "unknown" {
		t.Errorf("final fallback, got %q", got)
	}
}

func TestDefaultPrefix(t *testing.T) {
	tests := map[string]string{
		"my-project":           "myprojec",
		"WB":                   "wb",
		"---":                  "wb",
		"api2":                 "api2",
		"Über Service Package": "berservi",
	}
	for dir, want := range tests {
		if got := defaultPrefix(dir); got != want {
			t.Errorf("defaultPrefix(%q) = %q, want %q", dir, got, want)
		}
	}
}
