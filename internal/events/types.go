package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a single occurrence in the orchestrator lifecycle.
type Event struct {
	// ID is a sortable, time-ordered identifier (ULID) used for log
	// correlation and as a Control API request id.
	ID string `json:"id"`

	// Time is when the event occurred (set by NewEvent).
	Time time.Time `json:"time"`

	// Type identifies what happened.
	Type EventType `json:"type"`

	// JobID is the job this event relates to (0 for scheduler-wide events).
	JobID uint64 `json:"job_id,omitempty"`

	// GroupID is the run-group this event relates to, if any.
	GroupID uint64 `json:"group_id,omitempty"`

	// StepIndex is set for chain step events.
	StepIndex *int `json:"step_index,omitempty"`

	// Payload contains event-specific data (type varies by event).
	Payload any `json:"payload,omitempty"`

	// Error contains the error message if this is a failure event.
	Error string `json:"error,omitempty"`
}

// EventType is a string constant identifying the event category.
type EventType string

// Job lifecycle events.
const (
	JobQueued    EventType = "job.queued"
	JobBlocked   EventType = "job.blocked"
	JobUnblocked EventType = "job.unblocked"
	JobStarted   EventType = "job.started"
	JobCompleted EventType = "job.completed"
	JobFailed    EventType = "job.failed"
	JobMerged    EventType = "job.merged"
	JobRejected  EventType = "job.rejected"
)

// Git / worktree events.
const (
	WorktreeCreated  EventType = "git.worktree.created"
	WorktreeRemoved  EventType = "git.worktree.removed"
	WorktreeFallback EventType = "git.worktree.fallback" // isolation preferred but not mandatory, fell back in-place
	WorktreeReused   EventType = "git.worktree.reused"
)

// Chain events.
const (
	ChainStarting      EventType = "chain.starting"
	ChainStepStarting  EventType = "chain.step.starting"
	ChainStepCompleted EventType = "chain.step.completed"
	ChainCompleted     EventType = "chain.completed"
)

// Group events.
const (
	GroupComparing EventType = "group.comparing"
	GroupMerged    EventType = "group.merged"
	GroupCancelled EventType = "group.cancelled"
)

// Adapter / agent-facing events.
const (
	PermissionNeeded EventType = "agent.permission_needed"
	AgentLog         EventType = "agent.log"
)

// SystemLog is the generic informational event the scheduler and
// JobRunner emit for unblocks, fallbacks, and other narration that isn't
// itself a state transition.
const SystemLog EventType = "system"

// NewEvent creates an event stamped with a fresh ULID id and the current
// time.
func NewEvent(eventType EventType, jobID uint64) Event {
	return Event{
		ID:    ulid.Make().String(),
		Time:  time.Now(),
		Type:  eventType,
		JobID: jobID,
	}
}

func (e Event) WithGroup(groupID uint64) Event {
	e.GroupID = groupID
	return e
}

func (e Event) WithStep(step int) Event {
	e.StepIndex = &step
	return e
}

func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsFailure returns true if this is a failure event type.
func (e Event) IsFailure() bool {
	return strings.HasSuffix(string(e.Type), ".failed") || e.Error != ""
}

// String returns a human-readable representation of the event.
func (e Event) String() string {
	parts := []string{fmt.Sprintf("[%s]", e.Type)}
	if e.JobID != 0 {
		parts = append(parts, fmt.Sprintf("job=#%d", e.JobID))
	}
	if e.GroupID != 0 {
		parts = append(parts, fmt.Sprintf("group=#%d", e.GroupID))
	}
	if e.StepIndex != nil {
		parts = append(parts, fmt.Sprintf("step=%d", *e.StepIndex))
	}
	if e.Error != "" {
		parts = append(parts, "error="+e.Error)
	}
	return strings.Join(parts, " ")
}
