// Package types defines core data structures for the wb work-claiming engine.
package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Issue represents a trackable work item
type Issue struct {
	ID                 string        `json:"id" yaml:"id"`
	ContentHash        string        `json:"-" yaml:"-"` // SHA256 of canonical content; matched by hash-fragment lookup
	Title              string        `json:"title" yaml:"title"`
	Description        string        `json:"description,omitempty" yaml:"description,omitempty"`
	AcceptanceCriteria string        `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria,omitempty"`
	Status             Status        `json:"status,omitempty" yaml:"status,omitempty"`
	Priority           int           `json:"priority" yaml:"priority"` // No omitempty: 0 is valid (P0/critical)
	IssueType          IssueType     `json:"issue_type,omitempty" yaml:"issue_type,omitempty"`
	Assignee           string        `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	CreatedAt          time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" yaml:"updated_at"`
	ClosedAt           *time.Time    `json:"closed_at,omitempty" yaml:"closed_at,omitempty"`
	CloseReason        string        `json:"close_reason,omitempty" yaml:"close_reason,omitempty"`
	Labels             []string      `json:"labels,omitempty" yaml:"labels,omitempty"`
	Dependencies       []*Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Flags that keep an issue out of the ready queue regardless of blockers.
	Deferred  bool `json:"deferred,omitempty" yaml:"deferred,omitempty"`
	Pinned    bool `json:"pinned,omitempty" yaml:"pinned,omitempty"`
	Ephemeral bool `json:"ephemeral,omitempty" yaml:"ephemeral,omitempty"`

	// Lease is never nil once loaded from a store; NoLease means unclaimed.
	Lease Lease `json:"-" yaml:"-"`
}

// ComputeContentHash creates a deterministic hash of the issue's content.
// ID, timestamps and lease fields are excluded so identical content hashes
// the same on every store.
func (i *Issue) ComputeContentHash() string {
	h := sha256.New()

	h.Write([]byte(i.Title))
	h.Write([]byte{0})
	h.Write([]byte(i.Description))
	h.Write([]byte{0})
	h.Write([]byte(i.AcceptanceCriteria))
	h.Write([]byte{0})
	h.Write([]byte(i.IssueType))
	h.Write([]byte{0})
	h.Write([]byte(fmt.Sprintf("%d", i.Priority)))
	h.Write([]byte{0})
	for _, l := range i.Labels {
		h.Write([]byte(l))
		h.Write([]byte{0})
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if len(i.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}
	if i.Priority < 0 || i.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", i.Priority)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.IssueType.IsValid() {
		return fmt.Errorf("invalid issue type: %s", i.IssueType)
	}
	// closed_at is set if and only if status is closed
	if i.Status == StatusClosed && i.ClosedAt == nil {
		return fmt.Errorf("closed issues must have closed_at timestamp")
	}
	if i.Status != StatusClosed && i.ClosedAt != nil {
		return fmt.Errorf("non-closed issues cannot have closed_at timestamp")
	}
	return nil
}

// SetDefaults fills in status and type when they were left empty.
func (i *Issue) SetDefaults() {
	if i.Status == "" {
		i.Status = StatusOpen
	}
	if i.IssueType == "" {
		i.IssueType = TypeTask
	}
	if i.Lease == nil {
		i.Lease = NoLease{}
	}
}

// Status represents the current state of an issue
type Status string

// Issue status constants
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusClosed:
		return true
	}
	return false
}

// IsResolved reports whether a blocker in this status no longer blocks.
func (s Status) IsResolved() bool {
	return s == StatusClosed
}

// IsWorkable reports whether an issue in this status may appear in the ready queue.
func (s Status) IsWorkable() bool {
	return s == StatusOpen || s == StatusInProgress
}

// IssueType categorizes the kind of work
type IssueType string

// Issue type constants
const (
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeTask    IssueType = "task"
	TypeEpic    IssueType = "epic"
	TypeChore   IssueType = "chore"
)

// IsValid checks if the issue type value is valid
func (t IssueType) IsValid() bool {
	switch t {
	case TypeBug, TypeFeature, TypeTask, TypeEpic, TypeChore:
		return true
	}
	return false
}

// Dependency represents a relationship between issues
type Dependency struct {
	IssueID     string         `json:"issue_id" yaml:"issue_id"`
	DependsOnID string         `json:"depends_on_id" yaml:"depends_on_id"`
	Type        DependencyType `json:"type" yaml:"type"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	CreatedBy   string         `json:"created_by" yaml:"created_by"`
}

// IsExternal reports whether the edge points into another project's store.
func (d *Dependency) IsExternal() bool {
	return IsExternalRef(d.DependsOnID)
}

// DependencyType categorizes the relationship
type DependencyType string

// Dependency type constants
const (
	DepBlocks  DependencyType = "blocks"
	DepRelated DependencyType = "related"
)

// IsValid checks if the dependency type value is valid
func (d DependencyType) IsValid() bool {
	return d == DepBlocks || d == DepRelated
}

// AffectsReadyWork returns true if this dependency type blocks work.
func (d DependencyType) AffectsReadyWork() bool {
	return d == DepBlocks
}

// Event represents an audit trail entry
type Event struct {
	ID        int64     `json:"id" yaml:"id"`
	IssueID   string    `json:"issue_id" yaml:"issue_id"`
	EventType EventType `json:"event_type" yaml:"event_type"`
	Actor     string    `json:"actor" yaml:"actor"`
	OldValue  *string   `json:"old_value,omitempty" yaml:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty" yaml:"new_value,omitempty"`
	Comment   *string   `json:"comment,omitempty" yaml:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// EventType categorizes audit trail events
type EventType string

// Event type constants for audit trail
const (
	EventCreated         EventType = "created"
	EventClosed          EventType = "closed"
	EventDependencyAdded EventType = "dependency_added"
	EventLabelAdded      EventType = "label_added"
	EventLeaseClaimed    EventType = "lease_claimed"
	EventLeaseRenewed    EventType = "lease_renewed"
	EventLeaseReleased   EventType = "lease_released"
	EventLeaseStale      EventType = "lease_stale"
	EventLeaseOrphaned   EventType = "lease_orphaned"
	EventLeaseExpired    EventType = "lease_expired"
)

// SortPolicy determines how ready work is ordered
type SortPolicy string

// Sort policy constants
const (
	// SortPolicyHybrid ranks by priority band, letting issues older than
	// 48 hours rise by one band. This is the default.
	SortPolicyHybrid SortPolicy = "hybrid"

	// SortPolicyPriority sorts by priority, then id.
	SortPolicyPriority SortPolicy = "priority"

	// SortPolicyOldest sorts by creation date (oldest first), then id.
	SortPolicyOldest SortPolicy = "oldest"
)

// IsValid checks if the sort policy value is valid
func (s SortPolicy) IsValid() bool {
	switch s {
	case SortPolicyHybrid, SortPolicyPriority, SortPolicyOldest, "":
		return true
	}
	return false
}

// WorkFilter is used to filter ready work queries
type WorkFilter struct {
	Assignee        *string
	Unassigned      bool        // Filter for issues with no assignee
	Labels          []string    // AND semantics: issue must have ALL these labels
	LabelsAny       []string    // OR semantics: issue must have AT LEAST ONE of these labels
	Types           []IssueType // empty = any type
	Priorities      []int       // empty = any priority
	IncludeDeferred bool
	Limit           int // applied after external blockers are resolved
	SortPolicy      SortPolicy
}

// ReadyIssue is the ready-queue view of an issue.
type ReadyIssue struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Priority  int       `json:"priority" yaml:"priority"`
	Assignee  string    `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Status    Status    `json:"status" yaml:"status"`
	IssueType IssueType `json:"issue_type" yaml:"issue_type"`
	Labels    []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// NewReadyIssue projects an issue onto the ready-queue view.
func NewReadyIssue(i *Issue) ReadyIssue {
	return ReadyIssue{
		ID:        i.ID,
		Title:     i.Title,
		Priority:  i.Priority,
		Assignee:  i.Assignee,
		Status:    i.Status,
		IssueType: i.IssueType,
		Labels:    i.Labels,
		CreatedAt: i.CreatedAt,
	}
}
