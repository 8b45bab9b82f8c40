package chain

import (
	"context"
	"testing"

	"github.com/RevCBH/kyco/internal/agent"
	"github.com/RevCBH/kyco/internal/config"
	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ConditionalSkip(t *testing.T) {
	parent := &job.Job{ID: 1}
	chainCfg := config.ChainConfig{
		Steps: []config.ChainStepConfig{
			{Mode: "review"},
			{Mode: "fix", Guard: "issues_found"},
		},
		StopOnFailure: true,
		MaxLoops:      1,
	}

	ok := "ok"
	runStep := func(ctx context.Context, mode, prompt string, logs chan<- agent.LogEvent) (agent.Result, *job.Result, error) {
		return agent.Result{Success: true}, &job.Result{State: &ok}, nil
	}

	r := New(events.NewBus(0), nil)
	err := r.Run(context.Background(), parent, "review_fix", chainCfg, "seed prompt", runStep, nil)
	require.NoError(t, err)

	assert.Equal(t, job.StatusDone, parent.Status)
	require.Len(t, parent.ChainStepHistory, 2)
	assert.False(t, parent.ChainStepHistory[0].Skipped)
	assert.True(t, parent.ChainStepHistory[1].Skipped)
	assert.Equal(t, "success", *parent.Result.Status)
	assert.Equal(t, 0, parent.FilesChanged)
}

func TestRun_AllStepsSkippedStillSucceeds(t *testing.T) {
	parent := &job.Job{ID: 5}
	chainCfg := config.ChainConfig{
		Steps: []config.ChainStepConfig{
			{Mode: "fix", Guard: "issues_found"},
			{Mode: "verify", Guard: "fixed"},
		},
	}

	calls := 0
	runStep := func(ctx context.Context, mode, prompt string, logs chan<- agent.LogEvent) (agent.Result, *job.Result, error) {
		calls++
		return agent.Result{Success: true}, nil, nil
	}

	r := New(events.NewBus(0), nil)
	err := r.Run(context.Background(), parent, "guarded", chainCfg, "seed", runStep, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, calls)
	assert.Equal(t, job.StatusDone, parent.Status)
	require.Len(t, parent.ChainStepHistory, 2)
	assert.True(t, parent.ChainStepHistory[0].Skipped)
	assert.True(t, parent.ChainStepHistory[1].Skipped)
	assert.Equal(t, "success", *parent.Result.Status)
	assert.Equal(t, 0, parent.FilesChanged)
}

func TestRun_StoreBackedParentMutatesUnderLock(t *testing.T) {
	jobs := job.NewStore()
	parent := jobs.CreateJob("review_fix", "claude", "/repo/a.go", 1, "/repo")
	jobs.SetStatus(parent.ID, job.StatusQueued)
	jobs.SetStatus(parent.ID, job.StatusRunning)

	chainCfg := config.ChainConfig{
		Steps: []config.ChainStepConfig{{Mode: "review"}},
	}
	runStep := func(ctx context.Context, mode, prompt string, logs chan<- agent.LogEvent) (agent.Result, *job.Result, error) {
		return agent.Result{Success: true}, &job.Result{}, nil
	}

	g0 := jobs.Generation()
	r := New(events.NewBus(0), jobs)
	err := r.Run(context.Background(), parent, "review_fix", chainCfg, "seed", runStep, nil)
	require.NoError(t, err)

	view, ok := jobs.View(parent.ID)
	require.True(t, ok)
	assert.Equal(t, job.StatusDone, view.Status)
	assert.Len(t, view.ChainStepHistory, 1)
	assert.Greater(t, jobs.Generation(), g0, "parent mutations bump the store generation")
}

func TestRun_StopOnFailure(t *testing.T) {
	parent := &job.Job{ID: 2}
	chainCfg := config.ChainConfig{
		Steps: []config.ChainStepConfig{
			{Mode: "review"},
			{Mode: "fix"},
		},
		StopOnFailure: true,
	}

	calls := 0
	runStep := func(ctx context.Context, mode, prompt string, logs chan<- agent.LogEvent) (agent.Result, *job.Result, error) {
		calls++
		return agent.Result{Success: false, Error: "boom"}, nil, nil
	}

	r := New(events.NewBus(0), nil)
	err := r.Run(context.Background(), parent, "review_fix", chainCfg, "seed", runStep, nil)
	require.NoError(t, err)

	assert.Equal(t, job.StatusFailed, parent.Status)
	assert.Equal(t, "Chain execution failed", parent.ErrorMessage)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "partial", *parent.Result.Status)
}

func TestRun_BoundedLoop(t *testing.T) {
	parent := &job.Job{ID: 3}
	loopTo := 0
	chainCfg := config.ChainConfig{
		Steps: []config.ChainStepConfig{
			{Mode: "retry", LoopTo: &loopTo},
		},
		MaxLoops: 3,
	}

	calls := 0
	runStep := func(ctx context.Context, mode, prompt string, logs chan<- agent.LogEvent) (agent.Result, *job.Result, error) {
		calls++
		return agent.Result{Success: true}, &job.Result{}, nil
	}

	r := New(events.NewBus(0), nil)
	err := r.Run(context.Background(), parent, "retry_chain", chainCfg, "seed", runStep, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Len(t, parent.ChainStepHistory, 3)
}

func TestRun_PassFullResponseCarriesToNextStep(t *testing.T) {
	parent := &job.Job{ID: 4}
	chainCfg := config.ChainConfig{
		Steps: []config.ChainStepConfig{
			{Mode: "draft"},
			{Mode: "polish"},
		},
		PassFullResponse: true,
	}

	var seenPrompts []string
	runStep := func(ctx context.Context, mode, prompt string, logs chan<- agent.LogEvent) (agent.Result, *job.Result, error) {
		seenPrompts = append(seenPrompts, prompt)
		return agent.Result{Success: true, OutputText: "full-" + mode}, &job.Result{}, nil
	}

	r := New(events.NewBus(0), nil)
	err := r.Run(context.Background(), parent, "draft_chain", chainCfg, "seed", runStep, nil)
	require.NoError(t, err)
	require.Len(t, seenPrompts, 2)
	assert.Equal(t, "seed", seenPrompts[0])
	assert.Equal(t, "full-draft", seenPrompts[1])
}
