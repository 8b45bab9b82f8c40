// Package ctlapi implements the optional loopback HTTP control surface:
// plain net/http handlers over encoding/json, no router dependency.
package ctlapi

import (
	"time"

	"github.com/RevCBH/kyco/internal/group"
	"github.com/RevCBH/kyco/internal/job"
)

// JobView is the wire representation of job.Job returned by every job
// endpoint. A dedicated view type keeps internal/job free of JSON tags
// and wire-format concerns.
type JobView struct {
	ID      uint64 `json:"id"`
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	AgentID string `json:"agent_id"`

	SourceFile string `json:"source_file"`
	SourceLine int    `json:"source_line"`
	Target     string `json:"target,omitempty"`

	WorkspacePath string `json:"workspace_path"`

	Description  string      `json:"description,omitempty"`
	SentPrompt   string      `json:"sent_prompt,omitempty"`
	FullResponse string      `json:"full_response,omitempty"`
	Result       *ResultView `json:"result,omitempty"`

	GroupID uint64 `json:"group_id,omitempty"`

	GitWorktreePath string `json:"git_worktree_path,omitempty"`
	BaseBranch      string `json:"base_branch,omitempty"`
	BranchName      string `json:"branch_name,omitempty"`

	BlockedBy   uint64 `json:"blocked_by,omitempty"`
	BlockedFile string `json:"blocked_file,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	ChainName        string                 `json:"chain_name,omitempty"`
	ChainTotalSteps  int                    `json:"chain_total_steps,omitempty"`
	ChainCurrentStep int                    `json:"chain_current_step,omitempty"`
	ChainStepHistory []job.ChainStepSummary `json:"chain_step_history,omitempty"`
	BridgeSessionID  string                 `json:"bridge_session_id,omitempty"`

	InputTokens      int     `json:"input_tokens,omitempty"`
	OutputTokens     int     `json:"output_tokens,omitempty"`
	CacheReadTokens  int     `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int     `json:"cache_write_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`

	FilesChanged int `json:"files_changed,omitempty"`
	LinesAdded   int `json:"lines_added,omitempty"`
	LinesRemoved int `json:"lines_removed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResultView is the wire representation of job.Result.
type ResultView struct {
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

// NewJobView converts a job.Job into its wire form.
func NewJobView(j *job.Job) JobView {
	return JobView{
		ID:               j.ID,
		Status:           string(j.Status),
		Mode:             j.Mode,
		AgentID:          j.AgentID,
		SourceFile:       j.SourceFile,
		SourceLine:       j.SourceLine,
		Target:           j.Target,
		WorkspacePath:    j.WorkspacePath,
		Description:      j.Description,
		SentPrompt:       j.SentPrompt,
		FullResponse:     j.FullResponse,
		Result:           newResultView(j.Result),
		GroupID:          j.GroupID,
		GitWorktreePath:  j.GitWorktreePath,
		BaseBranch:       j.BaseBranch,
		BranchName:       j.BranchName,
		BlockedBy:        j.BlockedBy,
		BlockedFile:      j.BlockedFile,
		ErrorMessage:     j.ErrorMessage,
		ChainName:        j.ChainName,
		ChainTotalSteps:  j.ChainTotalSteps,
		ChainCurrentStep: j.ChainCurrentStep,
		ChainStepHistory: j.ChainStepHistory,
		BridgeSessionID:  j.BridgeSessionID,
		InputTokens:      j.InputTokens,
		OutputTokens:     j.OutputTokens,
		CacheReadTokens:  j.CacheReadTokens,
		CacheWriteTokens: j.CacheWriteTokens,
		CostUSD:          j.CostUSD,
		FilesChanged:     j.FilesChanged,
		LinesAdded:       j.LinesAdded,
		LinesRemoved:     j.LinesRemoved,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

func newResultView(r *job.Result) *ResultView {
	if r == nil {
		return nil
	}
	return &ResultView{
		Title:         r.Title,
		CommitSubject: r.CommitSubject,
		CommitBody:    r.CommitBody,
		Details:       r.Details,
		Status:        r.Status,
		Summary:       r.Summary,
		State:         r.State,
		NextContext:   r.NextContext,
		RawText:       r.RawText,
	}
}

// GroupView is the wire representation of group.Group.
type GroupView struct {
	ID          uint64   `json:"id"`
	JobIDs      []uint64 `json:"job_ids"`
	Status      string   `json:"status"`
	SelectedJob uint64   `json:"selected_job,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Mode        string   `json:"mode"`
	Target      string   `json:"target,omitempty"`
}

func newGroupView(g *group.Group) GroupView {
	return GroupView{
		ID:          g.ID,
		JobIDs:      g.JobIDs,
		Status:      string(g.Status),
		SelectedJob: g.SelectedJob,
		Prompt:      g.Prompt,
		Mode:        g.Mode,
		Target:      g.Target,
	}
}

// listJobsResponse is the body of GET /ctl/jobs.
type listJobsResponse struct {
	Jobs []JobView `json:"jobs"`
}

// getJobResponse is the body of GET /ctl/jobs/{id}.
type getJobResponse struct {
	Job JobView `json:"job"`
}

// createJobRequest is the body of POST /ctl/jobs.
type createJobRequest struct {
	FilePath     string   `json:"file_path"`
	LineStart    *int     `json:"line_start"`
	LineEnd      *int     `json:"line_end"`
	SelectedText string   `json:"selected_text"`
	Mode         string   `json:"mode"`
	Prompt       string   `json:"prompt"`
	Agent        string   `json:"agent"`
	Agents       []string `json:"agents"`
	Queue         *bool    `json:"queue"`
	ForceWorktree bool     `json:"force_worktree"`
}

// createJobResponse is the body returned by POST /ctl/jobs.
type createJobResponse struct {
	JobIDs  []uint64 `json:"job_ids"`
	GroupID uint64   `json:"group_id,omitempty"`
}

// queueJobResponse is the body returned by POST /ctl/jobs/{id}/queue.
type queueJobResponse struct {
	JobStatus string `json:"job_status"`
}

// mergeJobRequest is the optional body of POST /ctl/jobs/{id}/merge.
type mergeJobRequest struct {
	Message string `json:"message"`
}

// mergeJobResponse is the body returned by POST /ctl/jobs/{id}/merge.
type mergeJobResponse struct {
	Status  string `json:"status"`
	JobID   uint64 `json:"job_id"`
	Message string `json:"message,omitempty"`
}

// diffResponse is the body returned by GET /ctl/jobs/{id}/diff.
type diffResponse struct {
	Diff         string   `json:"diff"`
	ChangedFiles []string `json:"changed_files"`
	WorktreePath string   `json:"worktree_path"`
	BaseBranch   string   `json:"base_branch"`
}

// deleteJobRequest is the optional body of DELETE /ctl/jobs/{id}.
type deleteJobRequest struct {
	CleanupWorktree bool `json:"cleanup_worktree"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}
