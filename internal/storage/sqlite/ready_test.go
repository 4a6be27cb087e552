package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
)

func candidateIDs(cands []*storage.Candidate) []string {
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.Issue.ID)
	}
	return ids
}

func TestReadyCandidatesLocalBlocker(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	blocker := mustCreate(t, store, "Blocker", 1)
	blocked := mustCreate(t, store, "Blocked", 1)
	require.NoError(t, store.AddDependency(ctx, &types.Dependency{
		IssueID: blocked.ID, DependsOnID: blocker.ID, Type: types.DepBlocks,
	}, "test-actor"))

	cands, err := store.GetReadyCandidates(ctx, types.WorkFilter{}, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{blocker.ID}, candidateIDs(cands))

	require.NoError(t, store.CloseIssue(ctx, blocker.ID, "done", "test-actor"))
	cands, err = store.GetReadyCandidates(ctx, types.WorkFilter{}, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{blocked.ID}, candidateIDs(cands))
}

func TestReadyCandidatesRelatedDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	a := mustCreate(t, store, "A", 2)
	b := mustCreate(t, store, "B", 2)
	require.NoError(t, store.AddDependency(ctx, &types.Dependency{
		IssueID: b.ID, DependsOnID: a.ID, Type: types.DepRelated,
	}, "test-actor"))

	cands, err := store.GetReadyCandidates(ctx, types.WorkFilter{}, clock.Now())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, candidateIDs(cands))
}

func TestReadyCandidatesLeaseVisibility(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	issue := mustCreate(t, store, "Leased", 2)
	now := clock.Now()
	_, err := store.ClaimIssue(ctx, issue.ID, "agent", "", now.Add(10*time.Minute), now)
	require.NoError(t, err)

	cands, err := store.GetReadyCandidates(ctx, types.WorkFilter{}, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, cands, "lease is live through expires_at")

	cands, err = store.GetReadyCandidates(ctx, types.WorkFilter{}, now.Add(10*time.Minute+time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{issue.ID}, candidateIDs(cands), "expired lease is claimable again")
}

func TestReadyCandidatesFlagsAndStatus(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	plain := mustCreate(t, store, "Plain", 2)
	create := func(issue *types.Issue) *types.Issue {
		require.NoError(t, store.CreateIssue(ctx, issue, "test-actor"))
		return issue
	}
	deferred := create(&types.Issue{Title: "Deferred", Priority: 2, Deferred: true})
	create(&types.Issue{Title: "Pinned", Priority: 2, Pinned: true})
	create(&types.Issue{Title: "Ephemeral", Priority: 2, Ephemeral: true})
	create(&types.Issue{Title: "Blocked status", Priority: 2, Status: types.StatusBlocked})
	closed := mustCreate(t, store, "Closed", 2)
	require.NoError(t, store.CloseIssue(ctx, closed.ID, "", "test-actor"))

	cands, err := store.GetReadyCandidates(ctx, types.WorkFilter{}, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{plain.ID}, candidateIDs(cands))

	cands, err = store.GetReadyCandidates(ctx, types.WorkFilter{IncludeDeferred: true}, clock.Now())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{plain.ID, deferred.ID}, candidateIDs(cands))
}

func TestReadyCandidatesFilters(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	create := func(issue *types.Issue) *types.Issue {
		require.NoError(t, store.CreateIssue(ctx, issue, "test-actor"))
		return issue
	}
	bug := create(&types.Issue{Title: "Bug", Priority: 0, IssueType: types.TypeBug, Labels: []string{"backend", "urgent"}})
	feat := create(&types.Issue{Title: "Feature", Priority: 2, IssueType: types.TypeFeature, Labels: []string{"frontend"}, Assignee: "alice"})
	chore := create(&types.Issue{Title: "Chore", Priority: 4, IssueType: types.TypeChore, Labels: []string{"backend"}})

	alice := "alice"
	tests := []struct {
		name   string
		filter types.WorkFilter
		want   []string
	}{
		{"assignee", types.WorkFilter{Assignee: &alice}, []string{feat.ID}},
		{"unassigned", types.WorkFilter{Unassigned: true}, []string{bug.ID, chore.ID}},
		{"unassigned wins over assignee", types.WorkFilter{Unassigned: true, Assignee: &alice}, []string{bug.ID, chore.ID}},
		{"labels all", types.WorkFilter{Labels: []string{"backend", "urgent"}}, []string{bug.ID}},
		{"labels any", types.WorkFilter{LabelsAny: []string{"frontend", "urgent"}}, []string{bug.ID, feat.ID}},
		{"types", types.WorkFilter{Types: []types.IssueType{types.TypeChore, types.TypeFeature}}, []string{feat.ID, chore.ID}},
		{"priorities", types.WorkFilter{Priorities: []int{0, 4}}, []string{bug.ID, chore.ID}},
		{"limit is not applied by the store", types.WorkFilter{Limit: 1}, []string{bug.ID, feat.ID, chore.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands, err := store.GetReadyCandidates(ctx, tt.filter, clock.Now())
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, candidateIDs(cands))
		})
	}

	cands, err := store.GetReadyCandidates(ctx, types.WorkFilter{Labels: []string{"urgent"}}, clock.Now())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, []string{"backend", "urgent"}, cands[0].Issue.Labels)
}

func TestReadyCandidatesExternalBlockers(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	issue := mustCreate(t, store, "Needs upstream", 1)
	require.NoError(t, store.AddDependency(ctx, &types.Dependency{
		IssueID: issue.ID, DependsOnID: "external:infra:inf-42", Type: types.DepBlocks,
	}, "test-actor"))
	require.NoError(t, store.AddDependency(ctx, &types.Dependency{
		IssueID: issue.ID, DependsOnID: "external:infra:inf-7", Type: types.DepRelated,
	}, "test-actor"))

	cands, err := store.GetReadyCandidates(ctx, types.WorkFilter{}, clock.Now())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, []types.ExternalRef{{Project: "infra", IssueID: "inf-42"}}, cands[0].ExternalBlockers)
}

func TestReadyCandidatesMalformedExternalExcluded(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)
	issue := mustCreate(t, store, "Broken ref", 1)
	ok := mustCreate(t, store, "Fine", 1)
	// AddDependency validates refs, so write the bad row directly.
	_, err := store.UnderlyingDB().ExecContext(ctx, `
		INSERT INTO dependencies (issue_id, depends_on_id, type, created_at, created_by)
		VALUES (?, 'external:nowhere', 'blocks', ?, 'test')
	`, issue.ID, types.FormatTimestamp(clock.Now()))
	require.NoError(t, err)

	cands, err := store.GetReadyCandidates(ctx, types.WorkFilter{}, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{ok.ID}, candidateIDs(cands))
}
