package testutil

import (
	"context"
	"sync"

	"github.com/RevCBH/kyco/internal/agent"
	"github.com/RevCBH/kyco/internal/job"
)

// FakeAgentRunner is a scriptable agent.Runner for scheduler/runner/chain
// tests, so those tests never shell out to a real agent binary.
type FakeAgentRunner struct {
	mu      sync.Mutex
	calls   int
	results []agent.Result
	errs    []error
	logs    []agent.LogEvent

	// Default is returned once the queued results are exhausted.
	Default agent.Result
}

// NewFakeAgentRunner returns a fake that replies with result on every
// call unless more specific results are queued via Enqueue.
func NewFakeAgentRunner(result agent.Result) *FakeAgentRunner {
	return &FakeAgentRunner{Default: result}
}

// Enqueue appends a scripted (result, err) pair returned in FIFO order
// before falling back to Default.
func (f *FakeAgentRunner) Enqueue(result agent.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	f.errs = append(f.errs, err)
}

// WithLogs attaches log events replayed on every Run call, in order.
func (f *FakeAgentRunner) WithLogs(logs ...agent.LogEvent) *FakeAgentRunner {
	f.logs = logs
	return f
}

func (f *FakeAgentRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeAgentRunner) Run(ctx context.Context, j *job.Job, cwd string, cfg agent.Config, logs chan<- agent.LogEvent) (agent.Result, error) {
	f.mu.Lock()
	f.calls++
	var res agent.Result
	var err error
	if len(f.results) > 0 {
		res, err = f.results[0], f.errs[0]
		f.results, f.errs = f.results[1:], f.errs[1:]
	} else {
		res = f.Default
	}
	events := append([]agent.LogEvent(nil), f.logs...)
	f.mu.Unlock()

	for _, e := range events {
		select {
		case logs <- e:
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}

	if res.SentPrompt == "" {
		res.SentPrompt = j.SentPrompt
	}
	return res, err
}
