package ready

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeCandidates struct {
	cands      []*storage.Candidate
	err        error
	gotFilter  types.WorkFilter
	gotNow     time.Time
	callsCount int
}

func (f *fakeCandidates) GetReadyCandidates(_ context.Context, filter types.WorkFilter, at time.Time) ([]*storage.Candidate, error) {
	f.callsCount++
	f.gotFilter = filter
	f.gotNow = at
	return f.cands, f.err
}

type fakeResolver struct {
	statuses map[types.ExternalRef]types.Status
	asked    [][]types.ExternalRef
}

func (f *fakeResolver) ResolveStatuses(_ context.Context, refs []types.ExternalRef) map[types.ExternalRef]types.Status {
	f.asked = append(f.asked, refs)
	out := make(map[types.ExternalRef]types.Status)
	for _, r := range refs {
		if s, ok := f.statuses[r]; ok {
			out[r] = s
		}
	}
	return out
}

func issue(id string, priority int, age time.Duration) *types.Issue {
	return &types.Issue{ID: id, Title: id, Priority: priority, CreatedAt: now.Add(-age), Status: types.StatusOpen}
}

func ids(issues []*types.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.ID
	}
	return out
}

func TestSortPriorityAndOldest(t *testing.T) {
	mk := func() []*types.Issue {
		return []*types.Issue{
			issue("wb-c", 2, 30*24*time.Hour), // very old
			issue("wb-b", 0, 1*time.Hour),     // newer
			issue("wb-a", 0, 5*time.Hour),     // older
		}
	}

	got := mk()
	SortIssues(got, types.SortPolicyPriority, now)
	if diff := cmp.Diff([]string{"wb-a", "wb-b", "wb-c"}, ids(got)); diff != "" {
		t.Errorf("priority order mismatch (-want +got):\n%s", diff)
	}

	got = mk()
	SortIssues(got, types.SortPolicyOldest, now)
	if diff := cmp.Diff([]string{"wb-c", "wb-a", "wb-b"}, ids(got)); diff != "" {
		t.Errorf("oldest order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortPriorityTieBreaksByID(t *testing.T) {
	got := []*types.Issue{issue("wb-b", 1, time.Hour), issue("wb-a", 1, time.Hour)}
	SortIssues(got, types.SortPolicyPriority, now)
	if diff := cmp.Diff([]string{"wb-a", "wb-b"}, ids(got)); diff != "" {
		t.Errorf("tie-break mismatch (-want +got):\n%s", diff)
	}
}

func TestSortHybrid(t *testing.T) {
	got := []*types.Issue{
		issue("wb-fresh-p2", 2, time.Hour),
		issue("wb-aged-p2", 2, 72*time.Hour),
		issue("wb-fresh-p1", 1, 2*time.Hour),
		issue("wb-newest-p1", 1, time.Minute),
		issue("wb-ancient-p3", 3, 400*24*time.Hour),
		issue("wb-aged-p1", 1, 50*time.Hour),
		issue("wb-older-aged-p1", 1, 90*time.Hour),
		issue("wb-p0", 0, time.Hour),
	}
	SortIssues(got, types.SortPolicyHybrid, now)

	want := []string{
		"wb-older-aged-p1", // band 0 after aging, aged first, oldest first
		"wb-aged-p1",
		"wb-p0",
		"wb-aged-p2",   // band 1 after aging, ahead of fresh P1
		"wb-newest-p1", // fresh newest first
		"wb-fresh-p1",
		"wb-ancient-p3", // aging lifts one band only
		"wb-fresh-p2",
	}
	if diff := cmp.Diff(want, ids(got)); diff != "" {
		t.Errorf("hybrid order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortHybridAgingBoundary(t *testing.T) {
	got := []*types.Issue{
		issue("wb-young-p1", 1, time.Hour),
		issue("wb-almost-p2", 2, HybridAgingThreshold-time.Second),
		issue("wb-exact-p2", 2, HybridAgingThreshold),
	}
	SortIssues(got, types.SortPolicyHybrid, now)
	if diff := cmp.Diff([]string{"wb-exact-p2", "wb-young-p1", "wb-almost-p2"}, ids(got)); diff != "" {
		t.Errorf("boundary mismatch (-want +got):\n%s", diff)
	}
	if got[0].Priority != 2 {
		t.Fatal("sorting must not mutate priorities")
	}
}

func TestSortHybridAgedLowPriorityOvertakesFreshWork(t *testing.T) {
	got := []*types.Issue{
		issue("wb-fresh-p3", 3, time.Minute),
		issue("wb-starved-p4", 4, 30*24*time.Hour),
		issue("wb-fresh-p2", 2, time.Minute),
		issue("wb-old-p4", 4, 60*24*time.Hour),
	}
	SortIssues(got, types.SortPolicyHybrid, now)

	// Two bands apart, priority still wins over age.
	want := []string{"wb-fresh-p2", "wb-old-p4", "wb-starved-p4", "wb-fresh-p3"}
	if diff := cmp.Diff(want, ids(got)); diff != "" {
		t.Errorf("hybrid order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortEmptyPolicyIsHybrid(t *testing.T) {
	a := []*types.Issue{issue("wb-1", 1, time.Hour), issue("wb-2", 2, 100*time.Hour)}
	b := []*types.Issue{a[0], a[1]}
	SortIssues(a, "", now)
	SortIssues(b, types.SortPolicyHybrid, now)
	if diff := cmp.Diff(ids(b), ids(a)); diff != "" {
		t.Errorf("empty policy differs from hybrid (-hybrid +empty):\n%s", diff)
	}
}

func TestGetReadyFiltersExternalBlockers(t *testing.T) {
	closedRef := types.ExternalRef{Project: "infra", IssueID: "inf-1"}
	openRef := types.ExternalRef{Project: "infra", IssueID: "inf-2"}
	unknownRef := types.ExternalRef{Project: "gone", IssueID: "g-1"}

	store := &fakeCandidates{cands: []*storage.Candidate{
		{Issue: issue("wb-free", 2, time.Hour)},
		{Issue: issue("wb-ext-done", 1, time.Hour), ExternalBlockers: []types.ExternalRef{closedRef}},
		{Issue: issue("wb-ext-open", 0, time.Hour), ExternalBlockers: []types.ExternalRef{closedRef, openRef}},
		{Issue: issue("wb-ext-unknown", 0, time.Hour), ExternalBlockers: []types.ExternalRef{unknownRef}},
	}}
	resolver := &fakeResolver{statuses: map[types.ExternalRef]types.Status{
		closedRef: types.StatusClosed,
		openRef:   types.StatusInProgress,
	}}
	s := &Scheduler{Store: store, External: resolver, Now: func() time.Time { return now }}

	got, err := s.GetReady(context.Background(), types.WorkFilter{SortPolicy: types.SortPolicyPriority})
	if err != nil {
		t.Fatalf("GetReady: %v", err)
	}
	if diff := cmp.Diff([]string{"wb-ext-done", "wb-free"}, ids(got)); diff != "" {
		t.Errorf("ready mismatch (-want +got):\n%s", diff)
	}
	if !store.gotNow.Equal(now) {
		t.Errorf("store saw now=%v, want %v", store.gotNow, now)
	}
	if len(resolver.asked) != 1 || len(resolver.asked[0]) != 3 {
		t.Errorf("expected one resolve call with 3 distinct refs, got %v", resolver.asked)
	}
}

func TestGetReadyLimitAppliesAfterFiltering(t *testing.T) {
	blocked := types.ExternalRef{Project: "infra", IssueID: "inf-9"}
	store := &fakeCandidates{cands: []*storage.Candidate{
		{Issue: issue("wb-1", 0, time.Hour), ExternalBlockers: []types.ExternalRef{blocked}},
		{Issue: issue("wb-2", 1, time.Hour)},
		{Issue: issue("wb-3", 2, time.Hour)},
		{Issue: issue("wb-4", 3, time.Hour)},
	}}
	s := &Scheduler{Store: store, External: &fakeResolver{}, Now: func() time.Time { return now }}

	got, err := s.GetReady(context.Background(), types.WorkFilter{Limit: 2, SortPolicy: types.SortPolicyPriority})
	if err != nil {
		t.Fatalf("GetReady: %v", err)
	}
	if diff := cmp.Diff([]string{"wb-2", "wb-3"}, ids(got)); diff != "" {
		t.Errorf("limit mismatch (-want +got):\n%s", diff)
	}
	if store.gotFilter.Limit != 2 {
		t.Errorf("filter not forwarded: %+v", store.gotFilter)
	}
}

func TestGetReadyNilResolverLeavesExternalBlocked(t *testing.T) {
	store := &fakeCandidates{cands: []*storage.Candidate{
		{Issue: issue("wb-1", 0, time.Hour), ExternalBlockers: []types.ExternalRef{{Project: "p", IssueID: "p-1"}}},
		{Issue: issue("wb-2", 1, time.Hour)},
	}}
	s := &Scheduler{Store: store, Now: func() time.Time { return now }}
	got, err := s.GetReady(context.Background(), types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReady: %v", err)
	}
	if diff := cmp.Diff([]string{"wb-2"}, ids(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestGetReadyErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	s := &Scheduler{Store: &fakeCandidates{err: boom}}
	if _, err := s.GetReady(context.Background(), types.WorkFilter{}); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}

	s = &Scheduler{Store: &fakeCandidates{}}
	if _, err := s.GetReady(context.Background(), types.WorkFilter{SortPolicy: "random"}); err == nil {
		t.Fatal("expected invalid sort policy error")
	}
}

func TestGetReadySkipsUnworkableStatuses(t *testing.T) {
	closed := issue("wb-closed", 0, time.Hour)
	closed.Status = types.StatusClosed
	blocked := issue("wb-blocked", 0, time.Hour)
	blocked.Status = types.StatusBlocked
	active := issue("wb-active", 1, time.Hour)
	active.Status = types.StatusInProgress

	store := &fakeCandidates{cands: []*storage.Candidate{
		{Issue: closed},
		{Issue: blocked},
		{Issue: active},
		{Issue: issue("wb-open", 2, time.Hour)},
	}}
	s := &Scheduler{Store: store, Now: func() time.Time { return now }}

	got, err := s.GetReady(context.Background(), types.WorkFilter{SortPolicy: types.SortPolicyPriority})
	if err != nil {
		t.Fatalf("GetReady: %v", err)
	}
	if diff := cmp.Diff([]string{"wb-active", "wb-open"}, ids(got)); diff != "" {
		t.Errorf("ready mismatch (-want +got):\n%s", diff)
	}
}
