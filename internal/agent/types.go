// Package agent defines the Runner contract the orchestrator consumes
// plus the Claude and Codex CLI adapters. The orchestrator treats every
// Runner as opaque: it never interprets adapter-specific behaviour
// beyond the Result shape below.
package agent

import (
	"context"
	"time"

	"github.com/RevCBH/kyco/internal/job"
)

// Config augments what the caller passes an adapter. AllowedTools is
// spliced by JobRunner when a job runs inside a worktree, so the agent
// may commit on its isolated branch.
type Config struct {
	Command       string
	Model         string
	AllowedTools  []string
	ExtraArgs     []string
	StreamJSON    bool
}

// WithAllowedTools returns a copy of cfg with tools appended without
// disturbing the caller's slice.
func (cfg Config) WithAllowedTools(tools ...string) Config {
	out := cfg
	out.AllowedTools = append(append([]string(nil), cfg.AllowedTools...), tools...)
	return out
}

// Result is the only shape the orchestrator reads out of an adapter
// invocation.
type Result struct {
	Success          bool
	Error            string
	ChangedFiles     []string
	CostUSD          float64
	DurationMs       int64
	SentPrompt       string
	OutputText       string
	SessionID        string
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int

	hadError bool // set by ClaudeRunner while scanning the stream, consumed before returning
}

// LogKind categorizes a LogEvent. Permission logs are rewritten by
// JobRunner into a PermissionNeeded UI event rather than forwarded as a
// plain log.
type LogKind string

const (
	LogInfo       LogKind = "info"
	LogAssistant  LogKind = "assistant"
	LogToolUse    LogKind = "tool_use"
	LogPermission LogKind = "permission"
	LogError      LogKind = "error"
)

// LogEvent is one line of adapter-emitted progress. SessionID is set
// whenever the adapter's stream reveals one, regardless of Kind; the
// runner watches every event for it, not just a dedicated kind.
type LogEvent struct {
	Time      time.Time
	Kind      LogKind
	Message   string
	SessionID string
	Payload   any
}

// Runner executes one job in cwd and streams progress onto logs, a
// bounded channel. Runner implementations must not block forever on a
// full channel: drop or sample rather than deadlock the whole job.
type Runner interface {
	Run(ctx context.Context, j *job.Job, cwd string, cfg Config, logs chan<- LogEvent) (Result, error)
}

func emit(logs chan<- LogEvent, e LogEvent) {
	if logs == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case logs <- e:
	default:
		// Slow consumer: delivery is in-order but lossy when the
		// receiver never drains.
	}
}
