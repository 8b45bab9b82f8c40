package scheduler

import (
	"errors"
	"fmt"
)

// errAborted is the literal label a cancelled job carries on its error
// field, normalised the same way for both a mid-flight Running job
// (handled by JobRunner) and a not-yet-started Queued/Blocked/Pending
// job (handled here).
var errAborted = errors.New("Job aborted by user")

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
