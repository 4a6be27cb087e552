package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/config"
	"github.com/workbeads/wb/internal/lease"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
	"github.com/workbeads/wb/internal/ui"
)

// claimRequest is a fully validated claim, ready to hit the store.
type claimRequest struct {
	IDs     []string
	Owner   string
	LeaseID string // empty: a fresh id per issue
	TTL     time.Duration
}

// buildClaimRequest validates everything about a claim before any issue is
// touched: TTL, lease-id with multiple targets, and the targets themselves.
// With no tokens it falls back to the last-touched issue.
func buildClaimRequest(ctx context.Context, s storage.Storage, tokens []string, lastID string, ttl time.Duration, leaseID, owner string) (*claimRequest, error) {
	if err := lease.ValidateTTL(ttl); err != nil {
		return nil, err
	}
	if len(tokens) == 0 && lastID != "" {
		tokens = []string{lastID}
	}
	if err := lease.ValidateClaimTargets(len(tokens), leaseID); err != nil {
		return nil, err
	}
	ids, err := newIDResolver(ctx, s).ResolveAll(ctx, tokens)
	if err != nil {
		return nil, err
	}
	return &claimRequest{IDs: ids, Owner: owner, LeaseID: leaseID, TTL: ttl}, nil
}

// executeClaims claims each issue in turn. A failure on one issue does not
// stop the others; failures are joined into the returned error.
func executeClaims(ctx context.Context, s storage.LeaseStore, req *claimRequest, now func() time.Time) ([]*types.ClaimResult, error) {
	var (
		results []*types.ClaimResult
		errs    []error
	)
	for _, id := range req.IDs {
		leaseID := req.LeaseID
		if leaseID == "" {
			leaseID = lease.NewLeaseID()
		}
		grantedAt := now().UTC()
		expiresAt, err := lease.ExpiresAt(grantedAt, req.TTL)
		if err != nil {
			return nil, err
		}
		res, err := s.ClaimIssue(ctx, id, req.Owner, leaseID, expiresAt, grantedAt)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim %s: %w", id, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

var claimCmd = &cobra.Command{
	Use:     "claim [id...]",
	GroupID: "leases",
	Short:   "Claim issues with a time-bounded lease",
	Long: `Claim one or more issues for the current actor. The lease lasts --ttl
seconds and must be renewed with 'wb heartbeat' or released with 'wb release'.

With no IDs, the last touched issue is claimed. Passing --lease-id re-claims
(renews) a lease you already hold, and is only allowed for a single issue.
All arguments are validated before any issue is claimed.`,
	Run: func(cmd *cobra.Command, args []string) {
		ttl := config.LeaseTTL()
		if cmd.Flags().Changed("ttl") {
			secs, _ := cmd.Flags().GetInt("ttl")
			ttl = time.Duration(secs) * time.Second
		}
		leaseID, _ := cmd.Flags().GetString("lease-id")

		ctx := rootContext()
		s := getStore()
		req, err := buildClaimRequest(ctx, s, args, lastTouched().Get(), ttl, leaseID, getActor())
		if err != nil {
			fatalErr(err)
		}

		results, claimErr := executeClaims(ctx, s, req, time.Now)
		for _, r := range results {
			touch(r.ID)
		}
		if len(results) > 0 {
			emit(results, func(w io.Writer) { renderClaims(w, results) })
		}
		if claimErr != nil {
			fatalErr(claimErr)
		}
	},
}

func renderClaims(w io.Writer, results []*types.ClaimResult) {
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s Claimed %s\n", ui.RenderPassIcon(), ui.RenderID(r.ID))
		_, _ = fmt.Fprintf(w, "  lease_id: %s\n  owner: %s\n  expires: %s\n",
			r.LeaseID, r.LeaseOwner, r.LeaseExpiresAt.Format(time.RFC3339))
	}
}

type releaseResult struct {
	ID       string `json:"id" yaml:"id"`
	LeaseID  string `json:"lease_id" yaml:"lease_id"`
	Released bool   `json:"released" yaml:"released"`
}

var releaseCmd = &cobra.Command{
	Use:     "release <id>",
	GroupID: "leases",
	Short:   "Release a lease you hold",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		leaseID, _ := cmd.Flags().GetString("lease-id")

		ctx := rootContext()
		s := getStore()
		id := resolveIssueIDs(ctx, s, args)[0]

		if err := s.ReleaseLease(ctx, id, leaseID, getActor()); err != nil {
			fatalErr(err)
		}
		res := releaseResult{ID: id, LeaseID: leaseID, Released: true}
		emit(res, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "%s Released %s\n", ui.RenderPassIcon(), ui.RenderID(id))
		})
	},
}

var heartbeatCmd = &cobra.Command{
	Use:     "heartbeat <id>",
	GroupID: "leases",
	Short:   "Renew the heartbeat of a lease you hold",
	Long: `Record that the lease owner is still alive. The lease id and expiry are
unchanged; a stale mark left by the sweeper is cleared. An expired lease
cannot be revived; claim the issue again instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		leaseID, _ := cmd.Flags().GetString("lease-id")

		ctx := rootContext()
		s := getStore()
		id := resolveIssueIDs(ctx, s, args)[0]

		res, err := s.HeartbeatLease(ctx, id, leaseID, time.Now().UTC())
		if err != nil {
			fatalErr(err)
		}
		emit(res, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "%s Heartbeat %s (expires %s)\n",
				ui.RenderPassIcon(), ui.RenderID(id), res.LeaseExpiresAt.Format(time.RFC3339))
		})
	},
}

func init() {
	claimCmd.Flags().Int("ttl", int(lease.DefaultTTL/time.Second), "Lease duration in seconds (default from lease.ttl config)")
	claimCmd.Flags().String("lease-id", "", "Explicit lease id (single issue only); reuse it to renew")
	rootCmd.AddCommand(claimCmd)

	releaseCmd.Flags().String("lease-id", "", "Lease id returned by claim")
	_ = releaseCmd.MarkFlagRequired("lease-id")
	rootCmd.AddCommand(releaseCmd)

	heartbeatCmd.Flags().String("lease-id", "", "Lease id returned by claim")
	_ = heartbeatCmd.MarkFlagRequired("lease-id")
	rootCmd.AddCommand(heartbeatCmd)
}
