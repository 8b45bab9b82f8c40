// Package scheduler implements the admission loop: an unblock pass, an
// admission pass bounded by a concurrency budget and file-lock
// arbitration, and a passive drain (JobRunner itself performs the
// Running -> Done/Failed transition and releases its locks before
// signalling completion).
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/group"
	"github.com/RevCBH/kyco/internal/job"
)

// TickInterval is the scheduler's polling cadence absent a Wake signal.
const TickInterval = 500 * time.Millisecond

// JobRunner is the narrow surface the scheduler needs from the per-job
// runner: run one admitted job to a terminal status and release its own
// locks. The scheduler never inspects the result; completion is purely
// a cue to re-tick.
type JobRunner interface {
	Run(ctx context.Context, j *job.Job)
}

// Scheduler is the single logical admission loop.
type Scheduler struct {
	jobs   *job.Store
	groups *group.Store
	bus    *events.Bus
	runner JobRunner

	useWorktree   atomic.Bool
	maxConcurrent atomic.Int64

	wake chan struct{}
}

// New constructs a Scheduler. useWorktree is the global isolation
// preference consulted by the file-lock-needed test; maxConcurrent is
// the initial concurrency budget.
func New(jobs *job.Store, groups *group.Store, bus *events.Bus, runner JobRunner, useWorktree bool, maxConcurrent int) *Scheduler {
	s := &Scheduler{
		jobs:   jobs,
		groups: groups,
		bus:    bus,
		runner: runner,
		wake:   make(chan struct{}, 1),
	}
	s.useWorktree.Store(useWorktree)
	s.maxConcurrent.Store(int64(maxConcurrent))
	return s
}

// SetMaxConcurrent adjusts the concurrency budget live.
func (s *Scheduler) SetMaxConcurrent(n int) {
	s.maxConcurrent.Store(int64(n))
	s.Wake()
}

// SetUseWorktree adjusts the global isolation preference live.
func (s *Scheduler) SetUseWorktree(v bool) {
	s.useWorktree.Store(v)
}

// Wake requests an out-of-band tick promptly, so a JobStore mutation is
// picked up without waiting out the ticker. Non-blocking: a tick
// already queued is sufficient.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the admission loop until ctx is cancelled. Scheduler
// panics are fatal to the process; Run does not recover them.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

// Tick runs one iteration of the unblock and admission passes.
func (s *Scheduler) Tick(ctx context.Context) {
	s.unblockPass()
	s.admissionPass(ctx)
}

// unblockPass: any Blocked job whose blocking file is no longer held by
// a live job (other than itself) transitions back to Queued. All field
// access happens inside the store's critical section; events are
// emitted after it is released.
func (s *Scheduler) unblockPass() {
	var notes []string
	var noteIDs []uint64

	s.jobs.WithLock(func(l *job.Locked) {
		for _, j := range l.JobsWithStatus(job.StatusBlocked) {
			if _, stillBlocked := l.GetBlockingJob(j.BlockedFile, j.ID); stillBlocked {
				continue
			}
			if !j.Status.CanTransitionTo(job.StatusQueued) {
				continue
			}
			blockedFile := j.BlockedFile
			j.Status = job.StatusQueued
			j.BlockedBy = 0
			j.BlockedFile = ""
			l.Touch()
			notes = append(notes, sprintf("job %d unblocked (lock on %s released)", j.ID, blockedFile))
			noteIDs = append(noteIDs, j.ID)
		}
	})

	for i, note := range notes {
		s.emitSystem(noteIDs[i], note)
	}
}

// admissionPass admits queued jobs in ascending id order while Running
// jobs stay under the concurrency budget, arbitrating file locks for
// jobs that don't use isolation. Transitions happen inside one store
// critical section; runner goroutines are spawned after it is released.
func (s *Scheduler) admissionPass(ctx context.Context) {
	budget := int(s.maxConcurrent.Load())

	var admitted []*job.Job
	var notes []string
	var noteIDs []uint64

	s.jobs.WithLock(func(l *job.Locked) {
		running := l.CountWithStatus(job.StatusRunning)

		for _, j := range l.JobsWithStatus(job.StatusQueued) {
			if running >= budget {
				return
			}

			if s.needsFileLock(j) {
				if holder, blocked := l.GetBlockingJob(j.SourceFile, j.ID); blocked {
					if !j.Status.CanTransitionTo(job.StatusBlocked) {
						continue
					}
					j.Status = job.StatusBlocked
					j.BlockedBy = holder
					j.BlockedFile = j.SourceFile
					l.Touch()
					notes = append(notes, sprintf("job %d blocked on %s held by job %d", j.ID, j.SourceFile, holder))
					noteIDs = append(noteIDs, j.ID)
					continue // does not consume capacity
				}
				l.TryLockFile(j.SourceFile, j.ID)
			}

			if !j.Status.CanTransitionTo(job.StatusRunning) {
				continue
			}
			j.Status = job.StatusRunning
			l.Touch()
			running++
			admitted = append(admitted, j)
		}
	})

	for i, note := range notes {
		s.emitSystem(noteIDs[i], note)
	}

	for _, j := range admitted {
		s.bus.Emit(events.NewEvent(events.JobStarted, j.ID))
		go func(j *job.Job) {
			s.runner.Run(ctx, j)
			s.Wake()
		}(j)
	}
}

// needsFileLock: in-place runs (no worktree in force) arbitrate via
// file locks; any job with worktree isolation in force does not need
// one. GroupID and ForceWorktree are set before a job is ever queued
// and never change afterwards.
func (s *Scheduler) needsFileLock(j *job.Job) bool {
	return !s.useWorktree.Load() && j.GroupID == 0 && !j.ForceWorktree
}

// Cancel implements cooperative cancellation. A Running job
// only has cancel_requested flipped (the runner is responsible for
// terminating its adapter and re-labelling the resulting error); a
// Queued/Blocked/Pending job is failed immediately with the same label
// and its locks released.
func (s *Scheduler) Cancel(jobID uint64) bool {
	cancelled := false
	failed := false

	s.jobs.WithLock(func(l *job.Locked) {
		j := l.Get(jobID)
		if j == nil {
			return
		}
		switch j.Status {
		case job.StatusRunning:
			j.CancelRequested = true
			l.Touch()
			cancelled = true
		case job.StatusQueued, job.StatusBlocked, job.StatusPending:
			if !j.Status.CanTransitionTo(job.StatusFailed) {
				return
			}
			l.ReleaseJobLocks(jobID)
			j.CancelRequested = true
			j.Fail("Job aborted by user")
			l.Touch()
			cancelled = true
			failed = true
		}
	})

	if failed {
		s.bus.Emit(events.NewEvent(events.JobFailed, jobID).WithError(errAborted))
	}
	return cancelled
}

func (s *Scheduler) emitSystem(jobID uint64, msg string) {
	s.bus.Emit(events.NewEvent(events.SystemLog, jobID).WithPayload(msg))
}
