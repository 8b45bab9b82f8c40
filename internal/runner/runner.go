// Package runner implements the per-job orchestration: prepare worktree
// isolation, invoke the agent adapter, capture its result, compute git
// stats, and finalize the job's terminal status.
//
// The scheduler hands each invocation a live *job.Job, but field access
// follows the store's locking discipline: every write goes through
// job.Store.Update, and reads of fields another goroutine may write
// (CancelRequested, BridgeSessionID) happen inside the same critical
// sections. Fields set before the job was queued (Mode, AgentID,
// GroupID, ForceWorktree, WorkspacePath) never change afterwards and
// are read directly.
package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/RevCBH/kyco/internal/agent"
	"github.com/RevCBH/kyco/internal/chain"
	"github.com/RevCBH/kyco/internal/config"
	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/gitops"
	"github.com/RevCBH/kyco/internal/group"
	"github.com/RevCBH/kyco/internal/job"
	"github.com/RevCBH/kyco/internal/result"
)

// LogChannelCapacity bounds the adapter's log stream channel.
const LogChannelCapacity = 100

// Runner is JobRunner: it owns no state of its own beyond its
// collaborators, so one Runner instance is shared by every admitted job
// (each invocation operates on a distinct *job.Job and, via GitOpsFor, a
// distinct GitOps rooted at that job's own workspace).
type Runner struct {
	Jobs      *job.Store
	Bus       *events.Bus
	Config    *config.Config
	Agents    *agent.Registry
	Chain     *chain.Runner
	GitRunner gitops.Runner // shared subprocess Runner; nil uses the OS runner

	// Groups, when set, has its member group's status re-evaluated after
	// every terminal transition of a job with a GroupID.
	Groups *group.Store

	// GitOpsFor constructs (or returns a cached) GitOps rooted at
	// workspacePath. Exposed as a field so tests can inject a fake
	// without touching the real filesystem/git binary.
	GitOpsFor func(workspacePath string) *gitops.GitOps
}

// New builds a Runner with the default GitOpsFor (one GitOps per call,
// worktrees under cfg.ExpandWorktreesDir(workspacePath)).
func New(jobs *job.Store, bus *events.Bus, cfg *config.Config, agents *agent.Registry, chainRunner *chain.Runner, gitRunner gitops.Runner) *Runner {
	r := &Runner{Jobs: jobs, Bus: bus, Config: cfg, Agents: agents, Chain: chainRunner, GitRunner: gitRunner}
	r.GitOpsFor = func(workspacePath string) *gitops.GitOps {
		return gitops.New(workspacePath, cfg.ExpandWorktreesDir(workspacePath), gitRunner)
	}
	return r
}

// update applies fn to the job inside the store's critical section. The
// store holds the same *Job the scheduler handed us, so mutations made
// under the lock are visible through j afterwards.
func (r *Runner) update(j *job.Job, fn func(*job.Job)) {
	r.Jobs.Update(j.ID, fn)
}

// fail records a failure on the job under the store lock.
func (r *Runner) fail(j *job.Job, message string) {
	r.update(j, func(jj *job.Job) { jj.Fail(message) })
}

// Run executes one admitted job end to end. It never
// returns an error to the scheduler: every failure is recorded on the
// job itself.
func (r *Runner) Run(ctx context.Context, j *job.Job) {
	if chainCfg, isChain := r.Config.ResolveMode(j.Mode); isChain {
		r.runChain(ctx, j, chainCfg)
		return
	}

	resolved, err := validateInput(j.SourceFile, j.SourceLine, j.WorkspacePath)
	if err != nil {
		r.fail(j, err.Error())
		return
	}
	r.update(j, func(jj *job.Job) { jj.SourceFile = resolved })

	required, mandatory := r.worktreeRequired(j)

	usedWorktree, info, err := r.acquireWorktree(ctx, j, required, mandatory)
	if err != nil {
		r.fail(j, err.Error())
		return
	}

	cwd := j.WorkspacePath
	if usedWorktree {
		cwd = info.Path
		if err := r.remapIntoWorktree(j, info); err != nil {
			r.fail(j, fmt.Sprintf("remap into worktree: %v", err))
			return
		}
	}

	cfg := r.agentConfig(j.AgentID)
	if usedWorktree {
		cfg = cfg.WithAllowedTools(gitShellTools...)
	}

	adapter, err := r.Agents.Get(j.AgentID)
	if err != nil {
		r.fail(j, err.Error())
		return
	}

	logs := make(chan agent.LogEvent, LogChannelCapacity)
	forwardDone := make(chan struct{})
	go r.forwardLogs(j, logs, forwardDone)

	res, runErr := adapter.Run(ctx, j, cwd, cfg, logs)
	close(logs)
	<-forwardDone

	r.finalize(ctx, j, usedWorktree, info, res, runErr)
}

// worktreeRequired: isolation is required
// if ANY of mode override=true, global use_worktree, group membership,
// or force_worktree; a mode override of false wins over a true global
// default. mandatory additionally reports whether a creation failure
// must fail the job outright (group/force_worktree/mode-required) versus
// degrading to in-place (global-only preference).
func (r *Runner) worktreeRequired(j *job.Job) (required, mandatory bool) {
	modeOverride, hasOverride := r.Config.WorktreeRequiredForMode(j.Mode)
	if hasOverride && !modeOverride {
		return false, false
	}

	if j.GroupID != 0 || j.ForceWorktree {
		return true, true
	}
	if hasOverride && modeOverride {
		return true, true
	}
	if r.Config.UseWorktree {
		return true, false
	}
	return false, false
}

// acquireWorktree: reuse an existing
// worktree path (session continuation) if it's still present on disk;
// otherwise create one if required, failing the job when isolation was
// mandatory or falling back to an in-place run when merely preferred.
func (r *Runner) acquireWorktree(ctx context.Context, j *job.Job, required, mandatory bool) (bool, gitops.WorktreeInfo, error) {
	if j.GitWorktreePath != "" {
		if stat, err := os.Stat(j.GitWorktreePath); err == nil && stat.IsDir() {
			r.Bus.Emit(events.NewEvent(events.WorktreeReused, j.ID))
			return true, gitops.WorktreeInfo{Path: j.GitWorktreePath, BaseBranch: j.BaseBranch, BranchName: j.BranchName}, nil
		}
	}

	if !required {
		return false, gitops.WorktreeInfo{}, nil
	}

	g := r.GitOpsFor(j.WorkspacePath)
	info, err := g.CreateWorktree(ctx, j.ID)
	if err != nil {
		if mandatory {
			return false, gitops.WorktreeInfo{}, err
		}
		r.Bus.Emit(events.NewEvent(events.WorktreeFallback, j.ID).WithError(err))
		r.emitSystem(j.ID, "worktree creation failed, continuing in-place: %v", err)
		return false, gitops.WorktreeInfo{}, nil
	}

	r.update(j, func(jj *job.Job) {
		jj.GitWorktreePath = info.Path
		jj.BaseBranch = info.BaseBranch
		jj.BranchName = info.BranchName
	})
	r.Bus.Emit(events.NewEvent(events.WorktreeCreated, j.ID).WithPayload(info))
	return true, info, nil
}

// remapIntoWorktree rewrites the job's source file and target onto the
// worktree. The path computation and any untracked-file copy happen
// outside the lock; only the final field assignment holds it.
func (r *Runner) remapIntoWorktree(j *job.Job, info gitops.WorktreeInfo) error {
	newSource, newTarget, err := remapPaths(j.WorkspacePath, j.SourceFile, j.Target, info, func(rel string) {
		r.emitSystem(j.ID, "copied untracked file %s into worktree", rel)
	})
	if err != nil {
		return err
	}
	r.update(j, func(jj *job.Job) {
		jj.SourceFile = newSource
		jj.Target = newTarget
	})
	return nil
}

// finalize captures the adapter result and transitions to a terminal
// status inside one store critical section, then releases every lock
// this job held. The git-stats subprocess then runs with no lock held,
// and the lock is reacquired briefly to store the numbers.
func (r *Runner) finalize(ctx context.Context, j *job.Job, usedWorktree bool, info gitops.WorktreeInfo, res agent.Result, runErr error) {
	done := false
	errorMessage := ""

	r.update(j, func(jj *job.Job) {
		switch {
		case runErr != nil:
			jj.Fail(runErr.Error())
		case jj.CancelRequested:
			jj.Fail("Job aborted by user")
		case !res.Success:
			jj.Fail(res.Error)
		default:
			captureResult(jj, res)
			jj.Status = job.StatusDone
		}

		// The worktree path is restored onto the job regardless of
		// outcome so merge/reject can still find it.
		if usedWorktree {
			jj.GitWorktreePath = info.Path
			jj.BaseBranch = info.BaseBranch
			jj.BranchName = info.BranchName
		}

		done = jj.Status == job.StatusDone
		errorMessage = jj.ErrorMessage
	})

	r.Jobs.ReleaseJobLocks(j.ID)

	if usedWorktree && len(res.ChangedFiles) > 0 {
		g := r.GitOpsFor(j.WorkspacePath)
		if filesChanged, added, removed, err := g.NumstatTotals(ctx, info.Path, info.BaseBranch); err == nil {
			r.update(j, func(jj *job.Job) { jj.SetFileStats(filesChanged, added, removed) })
		}
	}

	if done {
		r.Bus.Emit(events.NewEvent(events.JobCompleted, j.ID))
	} else {
		r.Bus.Emit(events.NewEvent(events.JobFailed, j.ID).WithError(fmt.Errorf("%s", errorMessage)))
	}

	r.updateGroup(j)
}

// updateGroup re-evaluates the parent group's status once a member job
// reaches a terminal state: Comparing when every member is terminal and
// at least one is Done, Cancelled when every member failed.
func (r *Runner) updateGroup(j *job.Job) {
	if r.Groups == nil || j.GroupID == 0 {
		return
	}
	status, changed := r.Groups.UpdateGroupStatus(j.GroupID, r.Jobs)
	if !changed {
		return
	}
	switch status {
	case group.StatusComparing:
		r.Bus.Emit(events.NewEvent(events.GroupComparing, j.ID).WithGroup(j.GroupID))
	case group.StatusCancelled:
		r.Bus.Emit(events.NewEvent(events.GroupCancelled, j.ID).WithGroup(j.GroupID))
	}
}

// captureResult copies the adapter result fields onto the job and
// parses the structured result. Runs inside a store critical section.
func captureResult(j *job.Job, res agent.Result) {
	j.SentPrompt = res.SentPrompt
	j.InputTokens = res.InputTokens
	j.OutputTokens = res.OutputTokens
	j.CacheReadTokens = res.CacheReadTokens
	j.CacheWriteTokens = res.CacheWriteTokens
	j.CostUSD = res.CostUSD
	j.FullResponse = res.OutputText
	if res.SessionID != "" {
		j.BridgeSessionID = res.SessionID
	}
	j.Result = result.Parse(res.OutputText)
}

// runChain delegates to the chain runner when
// the job's mode resolves to a chain, running every step in the parent
// job's own working directory (no nested worktree — acquireWorktree is
// invoked once for the parent, exactly as a single-mode job would).
func (r *Runner) runChain(ctx context.Context, j *job.Job, chainCfg config.ChainConfig) {
	resolved, err := validateInput(j.SourceFile, j.SourceLine, j.WorkspacePath)
	if err != nil {
		r.fail(j, err.Error())
		return
	}
	r.update(j, func(jj *job.Job) { jj.SourceFile = resolved })

	required, mandatory := r.worktreeRequired(j)
	usedWorktree, info, err := r.acquireWorktree(ctx, j, required, mandatory)
	if err != nil {
		r.fail(j, err.Error())
		return
	}

	cwd := j.WorkspacePath
	if usedWorktree {
		cwd = info.Path
		if err := r.remapIntoWorktree(j, info); err != nil {
			r.fail(j, fmt.Sprintf("remap into worktree: %v", err))
			return
		}
	}

	stepRunner := func(ctx context.Context, mode, prompt string, logs chan<- agent.LogEvent) (agent.Result, *job.Result, error) {
		adapter, err := r.Agents.Get(j.AgentID)
		if err != nil {
			return agent.Result{}, nil, err
		}
		// Snapshot under the lock: the log forwarder may be writing
		// BridgeSessionID while a step starts.
		stepJob, ok := r.Jobs.View(j.ID)
		if !ok {
			stepJob = *j
		}
		stepJob.Mode = mode
		stepJob.SentPrompt = prompt
		cfg := r.agentConfig(j.AgentID)
		if usedWorktree {
			cfg = cfg.WithAllowedTools(gitShellTools...)
		}
		res, err := adapter.Run(ctx, &stepJob, cwd, cfg, logs)
		if err != nil {
			return res, nil, err
		}
		return res, result.Parse(res.OutputText), nil
	}

	logs := make(chan agent.LogEvent, LogChannelCapacity)
	forwardDone := make(chan struct{})
	go r.forwardLogs(j, logs, forwardDone)

	seedPrompt := j.Description
	if seedPrompt == "" {
		seedPrompt = j.SentPrompt
	}
	_ = r.Chain.Run(ctx, j, j.Mode, chainCfg, seedPrompt, stepRunner, logs)

	close(logs)
	<-forwardDone

	if usedWorktree {
		r.update(j, func(jj *job.Job) {
			jj.GitWorktreePath = info.Path
			jj.BaseBranch = info.BaseBranch
			jj.BranchName = info.BranchName
		})
	}
	r.Jobs.ReleaseJobLocks(j.ID)
	r.updateGroup(j)
}

// forwardLogs drains logs onto the bus, special-casing two event
// kinds: a session_id updates
// bridge_session_id (on every kind, not just a dedicated one), and a
// Permission-kind log is rewritten into PermissionNeeded rather than
// forwarded as a plain log. The session-id write holds the store lock —
// this goroutine runs concurrently with control-API readers.
func (r *Runner) forwardLogs(j *job.Job, logs <-chan agent.LogEvent, done chan<- struct{}) {
	defer close(done)
	for e := range logs {
		if e.SessionID != "" {
			sessionID := e.SessionID
			r.update(j, func(jj *job.Job) { jj.BridgeSessionID = sessionID })
		}
		if e.Kind == agent.LogPermission {
			r.Bus.Emit(events.NewEvent(events.PermissionNeeded, j.ID).WithPayload(e))
			continue
		}
		r.Bus.Emit(events.NewEvent(events.AgentLog, j.ID).WithPayload(e))
	}
}

func (r *Runner) agentConfig(agentID string) agent.Config {
	if ac, ok := r.Config.Agents[agentID]; ok {
		return agent.Config{Command: ac.Command, Model: ac.Model}
	}
	return agent.Config{}
}

func (r *Runner) emitSystem(jobID uint64, format string, args ...any) {
	r.Bus.Emit(events.NewEvent(events.SystemLog, jobID).WithPayload(fmt.Sprintf(format, args...)))
}
