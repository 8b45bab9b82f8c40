// Package chain implements the chain runner: a mini state machine
// executor that threads one step's output into the next, supports
// conditional transitions keyed on a parsed `state` token, and bounds
// looping.
package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/RevCBH/kyco/internal/agent"
	"github.com/RevCBH/kyco/internal/config"
	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/job"
)

// StepRunner executes a single agent-mode step in the given working
// directory and returns the adapter result plus its parsed structured
// result. It is injected by the caller (internal/runner's JobRunner) so
// this package never constructs an agent runner or worktree itself. A
// chain step runs in the parent job's working directory, never a nested
// worktree.
type StepRunner func(ctx context.Context, mode, prompt string, logs chan<- agent.LogEvent) (agent.Result, *job.Result, error)

// Runner executes one chain definition against a single parent job.
type Runner struct {
	Bus *events.Bus

	// Jobs, when set, is the store whose critical section guards every
	// parent-job mutation. A nil store mutates the parent directly —
	// only suitable when no other goroutine can observe it.
	Jobs *job.Store
}

// New creates a Runner that reports progress on bus and mutates parent
// jobs under jobs' lock.
func New(bus *events.Bus, jobs *job.Store) *Runner {
	return &Runner{Bus: bus, Jobs: jobs}
}

// updateParent applies fn to the parent inside the store's critical
// section, falling back to a direct call when the parent isn't
// registered with a store.
func (r *Runner) updateParent(parent *job.Job, fn func(*job.Job)) {
	if r.Jobs != nil && r.Jobs.Update(parent.ID, fn) {
		return
	}
	fn(parent)
}

// Run executes chainCfg against parent, mutating parent's chain
// bookkeeping fields and, on completion, its Status and Result. Every
// parent mutation holds the job store's lock; the step bookkeeping
// between mutations lives in locals. seedPrompt is the chain's starting
// prompt; runStep executes one step and must not create its own
// worktree.
func (r *Runner) Run(ctx context.Context, parent *job.Job, chainName string, chainCfg config.ChainConfig, seedPrompt string, runStep StepRunner, logs chan<- agent.LogEvent) error {
	r.updateParent(parent, func(p *job.Job) {
		p.ChainName = chainName
		p.ChainTotalSteps = len(chainCfg.Steps)
		p.ChainCurrentStep = 0
		p.HasChain = true
		p.ChainStepHistory = nil
	})

	r.emit(events.ChainStarting, parent, 0, nil)

	carry := seedPrompt
	var lastState string
	pc := 0
	executed := 0
	overallSuccess := true
	filesChanged := 0
	var lastSummary, finalState string
	var detailLines []string

	for pc < len(chainCfg.Steps) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		step := chainCfg.Steps[pc]
		stepIndex := executed

		r.emit(events.ChainStepStarting, parent, stepIndex, map[string]any{"mode": step.Mode})

		skip := step.Guard != "" && step.Guard != lastState
		summary := job.ChainStepSummary{StepIndex: stepIndex, Mode: step.Mode}

		if skip {
			summary.Skipped = true
			detailLines = append(detailLines, fmt.Sprintf("[%s] skipped", step.Mode))
		} else {
			prompt := carry
			if prompt == "" {
				prompt = seedPrompt
			}
			res, parsed, err := runStep(ctx, step.Mode, prompt, logs)
			summary.FullResponse = res.OutputText
			filesChanged += len(res.ChangedFiles)

			if err != nil || !res.Success {
				summary.Success = false
				if err != nil {
					summary.Error = err.Error()
				} else {
					summary.Error = res.Error
				}
				overallSuccess = false
				detailLines = append(detailLines, fmt.Sprintf("[%s] failed", step.Mode))
			} else {
				summary.Success = true
				if parsed != nil {
					if parsed.Title != nil {
						summary.Title = *parsed.Title
					}
					if parsed.Summary != nil {
						summary.Summary = *parsed.Summary
					}
					if parsed.State != nil {
						lastState = *parsed.State
						finalState = *parsed.State
					}
				}
				title := summary.Title
				if title == "" {
					title = "done"
				}
				detailLines = append(detailLines, fmt.Sprintf("[%s] %s", step.Mode, title))

				if chainCfg.PassFullResponse {
					carry = summary.FullResponse
				} else {
					carry = summary.Summary
				}
				if summary.Summary != "" {
					lastSummary = summary.Summary
				}
			}
		}

		r.updateParent(parent, func(p *job.Job) {
			appendHistory(p, summary)
			p.ChainCurrentStep = stepIndex + 1
		})
		executed++

		r.emit(events.ChainStepCompleted, parent, stepIndex, summary)

		if !skip && !summary.Success && chainCfg.StopOnFailure {
			break
		}

		// A back-edge is taken only while the number of executed steps,
		// loops included, is below max_loops; steps after it still run.
		if step.LoopTo != nil && uint32(executed) < chainCfg.MaxLoops {
			pc = *step.LoopTo
			continue
		}
		pc++
	}

	chainResult := &job.Result{
		Title:   strPtr(fmt.Sprintf("Chain '%s' completed", chainName)),
		Details: strPtr(strings.Join(detailLines, "\n")),
		Summary: strPtr(lastSummary),
		State:   nilIfEmpty(finalState),
	}
	if overallSuccess {
		chainResult.Status = strPtr("success")
	} else {
		chainResult.Status = strPtr("partial")
	}

	r.updateParent(parent, func(p *job.Job) {
		p.Result = chainResult
		p.FilesChanged = filesChanged
		if overallSuccess {
			p.Status = job.StatusDone
		} else {
			p.Status = job.StatusFailed
			p.ErrorMessage = "Chain execution failed"
		}
	})

	r.emit(events.ChainCompleted, parent, executed-1, chainResult)
	return nil
}

// appendHistory only appends the first time a given step index is
// observed, which matters when a loop back-edge jumps into an index
// range already reported once by a slow or duplicated progress event.
func appendHistory(j *job.Job, summary job.ChainStepSummary) {
	if len(j.ChainStepHistory) != summary.StepIndex {
		return
	}
	j.ChainStepHistory = append(j.ChainStepHistory, summary)
}

func (r *Runner) emit(t events.EventType, j *job.Job, step int, payload any) {
	if r.Bus == nil {
		return
	}
	r.Bus.Emit(events.NewEvent(t, j.ID).WithStep(step).WithPayload(payload))
}

func strPtr(s string) *string { return &s }

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
