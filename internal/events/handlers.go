package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LogConfig configures the logging handler.
type LogConfig struct {
	// Writer is where logs are written (default: os.Stderr).
	Writer io.Writer

	// IncludePayload includes the event payload in log output.
	IncludePayload bool

	// TimeFormat is the timestamp format (default: RFC3339).
	TimeFormat string
}

// LogHandler returns a handler that logs events to the configured
// writer. Format: "[type] job=#N group=#M step=S error=...".
func LogHandler(cfg LogConfig) Handler {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	return func(e Event) {
		var buf strings.Builder
		fmt.Fprintf(&buf, "%s [%s]", e.Time.Format(cfg.TimeFormat), e.Type)
		if e.JobID != 0 {
			fmt.Fprintf(&buf, " job=#%d", e.JobID)
		}
		if e.GroupID != 0 {
			fmt.Fprintf(&buf, " group=#%d", e.GroupID)
		}
		if e.StepIndex != nil {
			fmt.Fprintf(&buf, " step=%d", *e.StepIndex)
		}
		if e.Error != "" {
			fmt.Fprintf(&buf, " error=%s", e.Error)
		}
		if cfg.IncludePayload && e.Payload != nil {
			fmt.Fprintf(&buf, " payload=%v", e.Payload)
		}
		buf.WriteString("\n")
		fmt.Fprint(cfg.Writer, buf.String())
	}
}

// JobStateSink is the narrow surface the job store exposes for the
// handler below. Nothing is persisted beyond what git already holds;
// all job state is in-memory.
type JobStateSink interface {
	Touch()
}

// StateConfig configures the state-touch handler.
type StateConfig struct {
	Sink JobStateSink
}

// StateHandler returns a handler that bumps the JobStore's generation
// counter whenever an event implies an observable mutation happened, so
// observers polling `generation` see it even when the
// mutation itself was applied outside the store's own touch points.
func StateHandler(cfg StateConfig) Handler {
	return func(e Event) {
		if cfg.Sink == nil {
			return
		}
		switch e.Type {
		case JobQueued, JobBlocked, JobUnblocked, JobStarted, JobCompleted,
			JobFailed, JobMerged, JobRejected:
			cfg.Sink.Touch()
		}
	}
}
