package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbeads/wb/internal/lease"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
	"github.com/workbeads/wb/internal/utils"
)

func TestBuildClaimRequestValidation(t *testing.T) {
	s := newTestStore(t)
	a := createIssue(t, s, "first")
	b := createIssue(t, s, "second")
	ctx := context.Background()

	tests := []struct {
		name    string
		tokens  []string
		last    string
		ttl     time.Duration
		leaseID string
		wantErr error
	}{
		{name: "zero ttl", tokens: []string{a.ID}, ttl: 0, wantErr: lease.ErrInvalidArgument},
		{name: "negative ttl", tokens: []string{a.ID}, ttl: -time.Second, wantErr: lease.ErrInvalidArgument},
		{name: "lease id with two targets", tokens: []string{a.ID, b.ID}, ttl: time.Minute, leaseID: "abc", wantErr: lease.ErrInvalidArgument},
		{name: "no targets and nothing touched", ttl: time.Minute, wantErr: lease.ErrInvalidArgument},
		{name: "unknown id", tokens: []string{a.ID, "wb-zzzzzz"}, ttl: time.Minute, wantErr: utils.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildClaimRequest(ctx, s, tt.tokens, tt.last, tt.ttl, tt.leaseID, "alice")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}

	// Nothing was claimed by any failed validation.
	leased, err := s.ListLeasedIssues(ctx)
	require.NoError(t, err)
	assert.Empty(t, leased)
}

func TestBuildClaimRequestFallsBackToLastTouched(t *testing.T) {
	s := newTestStore(t)
	a := createIssue(t, s, "remembered")

	req, err := buildClaimRequest(context.Background(), s, nil, a.ID, time.Minute, "", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, req.IDs)

	// Explicit tokens win over last-touched.
	b := createIssue(t, s, "explicit")
	req, err = buildClaimRequest(context.Background(), s, []string{b.ID}, a.ID, time.Minute, "", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, req.IDs)
}

func TestExecuteClaims(t *testing.T) {
	s := newTestStore(t)
	a := createIssue(t, s, "a")
	b := createIssue(t, s, "b")
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	// bob holds b already.
	_, err := s.ClaimIssue(ctx, b.ID, "bob", "bob-lease", now.Add(time.Hour), now)
	require.NoError(t, err)

	req := &claimRequest{IDs: []string{a.ID, b.ID}, Owner: "alice", TTL: 30 * time.Minute}
	results, err := executeClaims(ctx, s, req, clock)

	require.Len(t, results, 1, "claim on a should succeed despite b failing")
	assert.Equal(t, a.ID, results[0].ID)
	assert.Equal(t, "alice", results[0].LeaseOwner)
	assert.Len(t, results[0].LeaseID, 32)
	assert.True(t, results[0].LeaseExpiresAt.Equal(now.Add(30*time.Minute)))

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrAlreadyClaimed)
	assert.Contains(t, err.Error(), b.ID)
}

func TestExecuteClaimsRenewWithLeaseID(t *testing.T) {
	s := newTestStore(t)
	a := createIssue(t, s, "renew me")
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	req := &claimRequest{IDs: []string{a.ID}, Owner: "alice", LeaseID: "fixed-lease", TTL: time.Minute}
	first, err := executeClaims(ctx, s, req, func() time.Time { return now })
	require.NoError(t, err)

	later := now.Add(30 * time.Second)
	second, err := executeClaims(ctx, s, req, func() time.Time { return later })
	require.NoError(t, err)

	assert.Equal(t, first[0].LeaseID, second[0].LeaseID)
	assert.True(t, second[0].LeaseExpiresAt.Equal(later.Add(time.Minute)))

	issue, err := s.GetIssue(ctx, a.ID)
	require.NoError(t, err)
	l := types.LeaseOf(issue)
	require.NotNil(t, l)
	assert.Equal(t, "fixed-lease", l.LeaseID)
}
