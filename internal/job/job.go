// Package job implements the Job record and JobStore: in-memory custody
// of every job, the file-lock map that arbitrates in-place runs, and the
// generation counter observers poll as a cheap change signal.
package job

import "time"

// Status is a node in the job state machine:
//
//	Pending -> Queued -> Running -> Done -> Merged
//	              |         |         |
//	              |         +---------+--> Rejected
//	              |         |
//	              |         +--> Failed --> Rejected
//	              ^
//	              +-- Blocked (while Queued, lock held by another job)
type Status string

const (
	StatusPending  Status = "pending"
	StatusQueued   Status = "queued"
	StatusBlocked  Status = "blocked"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
	StatusMerged   Status = "merged"
)

// transitions enumerates every allowed status edge. Status.CanTransitionTo
// consults this table; Store.SetStatus does not enforce it (the store
// delegates the check to the caller). The Scheduler calls
// CanTransitionTo before each transition it makes; JobRunner assigns its
// terminal status directly.
var transitions = map[Status]map[Status]bool{
	StatusPending:  {StatusQueued: true, StatusFailed: true},
	StatusQueued:   {StatusRunning: true, StatusBlocked: true, StatusFailed: true},
	StatusBlocked:  {StatusQueued: true, StatusFailed: true},
	StatusRunning:  {StatusDone: true, StatusFailed: true},
	StatusDone:     {StatusMerged: true, StatusRejected: true},
	StatusFailed:   {StatusRejected: true},
	StatusMerged:   {},
	StatusRejected: {},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// ChainStepSummary is the per-step record attached to a parent job
// running a chain.
type ChainStepSummary struct {
	StepIndex    int    `json:"step_index"`
	Mode         string `json:"mode"`
	Skipped      bool   `json:"skipped"`
	Success      bool   `json:"success"`
	Title        string `json:"title,omitempty"`
	Summary      string `json:"summary,omitempty"`
	FullResponse string `json:"full_response,omitempty"`
	Error        string `json:"error,omitempty"`
	FilesChanged int    `json:"files_changed"`
}

// Result is the parsed structured form of an agent's raw output.
type Result struct {
	Title         *string `json:"title,omitempty"`
	CommitSubject *string `json:"commit_subject,omitempty"`
	CommitBody    *string `json:"commit_body,omitempty"`
	Details       *string `json:"details,omitempty"`
	Status        *string `json:"status,omitempty"`
	Summary       *string `json:"summary,omitempty"`
	State         *string `json:"state,omitempty"`
	NextContext   any     `json:"next_context,omitempty"`
	RawText       *string `json:"raw_text,omitempty"`
}

// Job is the unit of work.
type Job struct {
	ID     uint64
	Status Status

	// Mode resolves either to a single agent-mode or a chain; resolution
	// is a config-layer concern, not the job's.
	Mode    string
	AgentID string

	SourceFile string
	SourceLine int
	Target     string

	WorkspacePath string

	Description  string
	IDEContext   string
	SentPrompt   string
	FullResponse string
	Result       *Result

	ForceWorktree bool
	GroupID       uint64 // 0 means "no group"

	GitWorktreePath string
	BaseBranch      string
	BranchName      string

	BlockedBy   uint64 // 0 means "not blocked"
	BlockedFile string

	CancelRequested bool
	ErrorMessage    string

	ChainName        string
	ChainTotalSteps  int
	ChainCurrentStep int
	ChainStepHistory []ChainStepSummary
	BridgeSessionID  string
	HasChain         bool // ChainTotalSteps/ChainCurrentStep are set together

	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	CostUSD          float64

	FilesChanged int
	LinesAdded   int
	LinesRemoved int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPromptOnly reports whether SourceFile equals the workspace root.
// File-existence validation is skipped for prompt-only jobs.
func (j *Job) IsPromptOnly() bool {
	return j.SourceFile == j.WorkspacePath || j.SourceFile == "prompt"
}

// Fail sets status to Failed and records the error message. Callers are
// responsible for checking CanTransitionTo first; Fail itself does not
// re-check because some callers (input validation) fail a job before it
// has ever been Running.
func (j *Job) Fail(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
}

// SetFileStats records the file and line deltas computed from a diff.
func (j *Job) SetFileStats(filesChanged, linesAdded, linesRemoved int) {
	j.FilesChanged = filesChanged
	j.LinesAdded = linesAdded
	j.LinesRemoved = linesRemoved
}
