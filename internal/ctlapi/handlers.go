package ctlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/gitops"
	"github.com/RevCBH/kyco/internal/job"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func pathJobID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	return id, err == nil
}

// handleListJobs implements GET /ctl/jobs. Views returns snapshot
// copies taken under the store lock, so rendering never races with the
// scheduler or runner goroutines.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.Jobs.Views()
	views := make([]JobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, NewJobView(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, listJobsResponse{Jobs: views})
}

// handleGetJob implements GET /ctl/jobs/{id}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, ok := s.Jobs.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, getJobResponse{Job: NewJobView(&j)})
}

// handleCreateJob implements POST /ctl/jobs: `{ file_path, line_start?,
// line_end?, selected_text?, mode, prompt?, agent?, agents?, queue =
// true, force_worktree = false }` -> `{ job_ids, group_id }`. Multiple
// agents fan out into sibling jobs tied together by a group.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FilePath == "" || req.Mode == "" {
		writeError(w, http.StatusBadRequest, "file_path and mode are required")
		return
	}

	agentIDs := req.Agents
	if len(agentIDs) == 0 {
		agentID := req.Agent
		if agentID == "" {
			agentID = "claude"
		}
		agentIDs = []string{agentID}
	}

	sourceLine := 1
	if req.LineStart != nil {
		sourceLine = *req.LineStart
	}
	workspacePath := resolveWorkspacePath(req.FilePath)

	queue := true
	if req.Queue != nil {
		queue = *req.Queue
	}

	jobIDs := make([]uint64, 0, len(agentIDs))
	for _, agentID := range agentIDs {
		j := s.Jobs.CreateJob(req.Mode, agentID, req.FilePath, sourceLine, workspacePath)
		s.Jobs.Update(j.ID, func(jj *job.Job) {
			jj.Description = req.SelectedText
			jj.SentPrompt = req.Prompt
			jj.ForceWorktree = req.ForceWorktree
		})
		jobIDs = append(jobIDs, j.ID)
	}

	var groupID uint64
	if len(agentIDs) > 1 {
		g := s.Groups.CreateGroup(req.Prompt, req.Mode, req.FilePath, jobIDs)
		groupID = g.ID
		for _, id := range jobIDs {
			s.Jobs.Update(id, func(jj *job.Job) { jj.GroupID = groupID })
		}
	}

	if queue {
		for _, id := range jobIDs {
			if s.Jobs.SetStatus(id, job.StatusQueued) {
				s.emitQueued(id)
			}
		}
		s.wake()
	}

	writeJSON(w, http.StatusOK, createJobResponse{JobIDs: jobIDs, GroupID: groupID})
}

// handleQueueJob implements POST /ctl/jobs/{id}/queue -> `{ job_status }`.
// The legality check and the transition happen in one critical section.
func (s *Server) handleQueueJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	found := false
	queued := false
	var was job.Status
	s.Jobs.WithLock(func(l *job.Locked) {
		j := l.Get(id)
		if j == nil {
			return
		}
		found = true
		was = j.Status
		if j.Status.CanTransitionTo(job.StatusQueued) {
			j.Status = job.StatusQueued
			l.Touch()
			queued = true
		}
	})

	if !found {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !queued {
		writeError(w, http.StatusBadRequest, "cannot queue a job in status "+string(was))
		return
	}
	s.emitQueued(id)
	s.wake()
	writeJSON(w, http.StatusOK, queueJobResponse{JobStatus: string(job.StatusQueued)})
}

func (s *Server) emitQueued(id uint64) {
	if s.Bus != nil {
		s.Bus.Emit(events.NewEvent(events.JobQueued, id))
	}
}

// handleMergeJob implements POST /ctl/jobs/{id}/merge with optional
// `{ message }` -> `{ status, job_id, message }`. Pre-condition:
// status == Done. Merges the worktree branch back into its base branch,
// then removes the worktree.
func (s *Server) handleMergeJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, ok := s.Jobs.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if j.Status != job.StatusDone {
		writeError(w, http.StatusBadRequest, "job must be Done to merge, is "+string(j.Status))
		return
	}

	var req mergeJobRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := s.mergeJobWorktree(r.Context(), j, req.Message); err != nil {
		writeError(w, http.StatusConflict, "merge failed: "+err.Error())
		return
	}

	s.Jobs.SetStatus(id, job.StatusMerged)
	if s.Bus != nil {
		s.Bus.Emit(events.NewEvent(events.JobMerged, id))
	}
	writeJSON(w, http.StatusOK, mergeJobResponse{Status: string(job.StatusMerged), JobID: id, Message: req.Message})
}

// mergeJobWorktree merges the worktree branch into its base, then
// removes the worktree and clears the job's worktree fields under the
// store lock (the worktree path is only set between a run and its
// merge/reject). The git subprocesses run against the snapshot's paths
// with no lock held.
func (s *Server) mergeJobWorktree(ctx context.Context, j job.Job, messageOverride string) error {
	if j.GitWorktreePath == "" {
		return nil
	}
	g := s.GitOpsFor(j.WorkspacePath)
	info := gitops.WorktreeInfo{Path: j.GitWorktreePath, BaseBranch: j.BaseBranch, BranchName: j.BranchName}
	if err := g.ApplyChanges(ctx, info, mergeMessage(j, messageOverride)); err != nil {
		return err
	}
	g.RemoveWorktreeByPath(ctx, j.GitWorktreePath, func(warning string) { s.emitSystem(warning) })
	s.Jobs.Update(j.ID, clearWorktreeFields)
	return nil
}

// removeJobWorktree removes a job's worktree without merging, clearing
// the job's worktree fields under the store lock.
func (s *Server) removeJobWorktree(ctx context.Context, j job.Job) {
	if j.GitWorktreePath == "" {
		return
	}
	g := s.GitOpsFor(j.WorkspacePath)
	g.RemoveWorktreeByPath(ctx, j.GitWorktreePath, func(warning string) { s.emitSystem(warning) })
	s.Jobs.Update(j.ID, clearWorktreeFields)
}

func clearWorktreeFields(j *job.Job) {
	j.GitWorktreePath = ""
	j.BaseBranch = ""
	j.BranchName = ""
}

func mergeMessage(j job.Job, override string) string {
	if override != "" {
		return override
	}
	if j.Result != nil && j.Result.CommitSubject != nil && *j.Result.CommitSubject != "" {
		return *j.Result.CommitSubject
	}
	return "kyco: merge job " + strconv.FormatUint(j.ID, 10)
}

// handleRejectJob implements POST /ctl/jobs/{id}/reject -> sets status
// Rejected and removes the worktree. Pre-condition: status ∈ {Done,
// Failed}.
func (s *Server) handleRejectJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, ok := s.Jobs.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if j.Status != job.StatusDone && j.Status != job.StatusFailed {
		writeError(w, http.StatusBadRequest, "job must be Done or Failed to reject, is "+string(j.Status))
		return
	}

	s.removeJobWorktree(r.Context(), j)

	s.Jobs.SetStatus(id, job.StatusRejected)
	if s.Bus != nil {
		s.Bus.Emit(events.NewEvent(events.JobRejected, id))
	}
	writeJSON(w, http.StatusOK, mergeJobResponse{Status: string(job.StatusRejected), JobID: id})
}

// handleDiffJob implements GET /ctl/jobs/{id}/diff -> `{ diff,
// changed_files, worktree_path, base_branch }`. Pre-condition: job has a
// worktree path.
func (s *Server) handleDiffJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, ok := s.Jobs.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if j.GitWorktreePath == "" {
		writeError(w, http.StatusBadRequest, "job has no worktree")
		return
	}

	g := s.GitOpsFor(j.WorkspacePath)
	diff, err := g.Diff(r.Context(), j.GitWorktreePath, j.BaseBranch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "diff failed: "+err.Error())
		return
	}
	changedFiles, err := g.ChangedFiles(r.Context(), j.GitWorktreePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "changed files failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, diffResponse{
		Diff:         diff,
		ChangedFiles: changedFiles,
		WorktreePath: j.GitWorktreePath,
		BaseBranch:   j.BaseBranch,
	})
}

// handleDeleteJob implements DELETE /ctl/jobs/{id} with `{
// cleanup_worktree }` -> removes the job from the store (forbidden
// while Running) and optionally removes its worktree.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, ok := s.Jobs.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if j.Status == job.StatusRunning {
		writeError(w, http.StatusBadRequest, "cannot delete a Running job")
		return
	}

	var req deleteJobRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.CleanupWorktree {
		s.removeJobWorktree(r.Context(), j)
	}

	s.Jobs.RemoveJob(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleCancelJob implements POST /ctl/jobs/{id}/cancel. Cancellation
// is cooperative: a Running job only has cancel_requested flipped; a
// Queued/Blocked/Pending job fails immediately with "Job aborted by
// user".
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathJobID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, ok := s.Jobs.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if s.Scheduler == nil || !s.Scheduler.Cancel(id) {
		writeError(w, http.StatusBadRequest, "cannot cancel a job in status "+string(j.Status))
		return
	}
	after, _ := s.Jobs.View(id)
	writeJSON(w, http.StatusOK, queueJobResponse{JobStatus: string(after.Status)})
}
