package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
)

const storageScopeName = "github.com/workbeads/wb/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in wb.storage.* metrics; lease
// outcomes are also counted in wb.lease.*.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner     storage.Storage
	tracer    trace.Tracer
	ops       metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	conflicts metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return newInstrumented(s, Meter(storageScopeName), Tracer(storageScopeName))
}

func newInstrumented(s storage.Storage, m metric.Meter, tr trace.Tracer) *InstrumentedStorage {
	ops, _ := m.Int64Counter("wb.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("wb.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("wb.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	conflicts, _ := m.Int64Counter("wb.lease.claim.conflicts",
		metric.WithDescription("Claims rejected because another lease was live"),
	)
	return &InstrumentedStorage{
		inner:     s,
		tracer:    tr,
		ops:       ops,
		dur:       dur,
		errs:      errs,
		conflicts: conflicts,
	}
}

// Unwrap returns the decorated store.
func (s *InstrumentedStorage) Unwrap() storage.Storage {
	return s.inner
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Issues ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	attrs := []attribute.KeyValue{
		attribute.String("wb.actor", actor),
		attribute.String("wb.issue.type", string(issue.IssueType)),
	}
	ctx, span, t := s.op(ctx, "CreateIssue", attrs...)
	err := s.inner.CreateIssue(ctx, issue, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	attrs := []attribute.KeyValue{attribute.String("wb.issue.id", id)}
	ctx, span, t := s.op(ctx, "GetIssue", attrs...)
	v, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) CloseIssue(ctx context.Context, id string, reason string, actor string) error {
	attrs := []attribute.KeyValue{
		attribute.String("wb.issue.id", id),
		attribute.String("wb.actor", actor),
	}
	ctx, span, t := s.op(ctx, "CloseIssue", attrs...)
	err := s.inner.CloseIssue(ctx, id, reason, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) IDExists(ctx context.Context, id string) (bool, error) {
	ctx, span, t := s.op(ctx, "IDExists")
	v, err := s.inner.IDExists(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) FindIDsByHash(ctx context.Context, fragment string) ([]string, error) {
	ctx, span, t := s.op(ctx, "FindIDsByHash")
	v, err := s.inner.FindIDsByHash(ctx, fragment)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Dependencies & labels ───────────────────────────────────────────────────

func (s *InstrumentedStorage) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	attrs := []attribute.KeyValue{
		attribute.String("wb.issue.id", dep.IssueID),
		attribute.String("wb.dep.type", string(dep.Type)),
		attribute.Bool("wb.dep.external", dep.IsExternal()),
	}
	ctx, span, t := s.op(ctx, "AddDependency", attrs...)
	err := s.inner.AddDependency(ctx, dep, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	attrs := []attribute.KeyValue{attribute.String("wb.issue.id", issueID)}
	ctx, span, t := s.op(ctx, "GetDependencyRecords", attrs...)
	v, err := s.inner.GetDependencyRecords(ctx, issueID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) AddLabel(ctx context.Context, issueID, label, actor string) error {
	attrs := []attribute.KeyValue{
		attribute.String("wb.issue.id", issueID),
		attribute.String("wb.label", label),
	}
	ctx, span, t := s.op(ctx, "AddLabel", attrs...)
	err := s.inner.AddLabel(ctx, issueID, label, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetLabels(ctx context.Context, issueID string) ([]string, error) {
	attrs := []attribute.KeyValue{attribute.String("wb.issue.id", issueID)}
	ctx, span, t := s.op(ctx, "GetLabels", attrs...)
	v, err := s.inner.GetLabels(ctx, issueID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error) {
	attrs := []attribute.KeyValue{attribute.String("wb.issue.id", issueID)}
	ctx, span, t := s.op(ctx, "GetEvents", attrs...)
	v, err := s.inner.GetEvents(ctx, issueID, limit)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Leases ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) ClaimIssue(ctx context.Context, id, owner, leaseID string, expiresAt, now time.Time) (*types.ClaimResult, error) {
	attrs := []attribute.KeyValue{
		attribute.String("wb.issue.id", id),
		attribute.String("wb.actor", owner),
		attribute.Bool("wb.lease.renewal", leaseID != ""),
	}
	ctx, span, t := s.op(ctx, "ClaimIssue", attrs...)
	v, err := s.inner.ClaimIssue(ctx, id, owner, leaseID, expiresAt, now)
	if errors.Is(err, storage.ErrAlreadyClaimed) {
		s.conflicts.Add(ctx, 1)
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ReleaseLease(ctx context.Context, id, leaseID, actor string) error {
	attrs := []attribute.KeyValue{
		attribute.String("wb.issue.id", id),
		attribute.String("wb.actor", actor),
	}
	ctx, span, t := s.op(ctx, "ReleaseLease", attrs...)
	err := s.inner.ReleaseLease(ctx, id, leaseID, actor)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) HeartbeatLease(ctx context.Context, id, leaseID string, now time.Time) (*types.ClaimResult, error) {
	attrs := []attribute.KeyValue{attribute.String("wb.issue.id", id)}
	ctx, span, t := s.op(ctx, "HeartbeatLease", attrs...)
	v, err := s.inner.HeartbeatLease(ctx, id, leaseID, now)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListLeasedIssues(ctx context.Context) ([]*types.LeasedIssue, error) {
	ctx, span, t := s.op(ctx, "ListLeasedIssues")
	v, err := s.inner.ListLeasedIssues(ctx)
	span.SetAttributes(attribute.Int("wb.lease.count", len(v)))
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) ReclaimLease(ctx context.Context, id string, observed types.Leased, reason types.EventType, now time.Time, actor string) (bool, error) {
	attrs := []attribute.KeyValue{
		attribute.String("wb.issue.id", id),
		attribute.String("wb.lease.reason", string(reason)),
	}
	ctx, span, t := s.op(ctx, "ReclaimLease", attrs...)
	v, err := s.inner.ReclaimLease(ctx, id, observed, reason, now, actor)
	span.SetAttributes(attribute.Bool("wb.lease.applied", v))
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) MarkLeaseStale(ctx context.Context, id string, observed types.Leased, now time.Time, actor string) (bool, error) {
	attrs := []attribute.KeyValue{attribute.String("wb.issue.id", id)}
	ctx, span, t := s.op(ctx, "MarkLeaseStale", attrs...)
	v, err := s.inner.MarkLeaseStale(ctx, id, observed, now, actor)
	span.SetAttributes(attribute.Bool("wb.lease.applied", v))
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Ready work ──────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetReadyCandidates(ctx context.Context, filter types.WorkFilter, now time.Time) ([]*storage.Candidate, error) {
	ctx, span, t := s.op(ctx, "GetReadyCandidates")
	v, err := s.inner.GetReadyCandidates(ctx, filter, now)
	span.SetAttributes(attribute.Int("wb.ready.candidates", len(v)))
	s.done(ctx, span, t, err)
	return v, err
}

// ── Config / transactions / lifecycle ──────────────────────────────────────

func (s *InstrumentedStorage) SetConfig(ctx context.Context, key, value string) error {
	attrs := []attribute.KeyValue{attribute.String("wb.config.key", key)}
	ctx, span, t := s.op(ctx, "SetConfig", attrs...)
	err := s.inner.SetConfig(ctx, key, value)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetConfig(ctx context.Context, key string) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("wb.config.key", key)}
	ctx, span, t := s.op(ctx, "GetConfig", attrs...)
	v, err := s.inner.GetConfig(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) Path() string {
	return s.inner.Path()
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
