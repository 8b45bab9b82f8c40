package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/RevCBH/kyco/internal/ctlapi"
	"github.com/RevCBH/kyco/internal/job"
)

func TestDisplayJobs_Empty(t *testing.T) {
	var out bytes.Buffer
	displayJobs(&out, nil)
	assert.Contains(t, out.String(), "No jobs")
}

func TestDisplayJobs_Table(t *testing.T) {
	var out bytes.Buffer
	displayJobs(&out, []ctlapi.JobView{
		{
			ID: 1, Status: "running", Mode: "docs", AgentID: "claude",
			SourceFile:    "/repo/src/lib.go",
			WorkspacePath: "/repo",
			CreatedAt:     time.Now().Add(-90 * time.Second),
		},
	})

	s := out.String()
	assert.Contains(t, s, "running")
	assert.Contains(t, s, "src/lib.go")
	assert.Contains(t, s, "1m")
}

func TestDisplayJobDetail_ChainHistory(t *testing.T) {
	title := "reviewed"
	status := "success"
	var out bytes.Buffer
	displayJobDetail(&out, ctlapi.JobView{
		ID: 7, Status: "done", Mode: "review-fix", AgentID: "claude",
		SourceFile: "/repo/a.go", SourceLine: 3,
		ChainName: "review-fix", ChainTotalSteps: 2, ChainCurrentStep: 2,
		ChainStepHistory: []job.ChainStepSummary{
			{StepIndex: 0, Mode: "review", Success: true, Title: "reviewed"},
			{StepIndex: 1, Mode: "fix", Skipped: true},
		},
		Result: &ctlapi.ResultView{Title: &title, Status: &status},
	})

	s := out.String()
	assert.Contains(t, s, "chain: review-fix (2/2 steps)")
	assert.Contains(t, s, "+ [review] reviewed")
	assert.Contains(t, s, "~ [fix] skipped")
	assert.Contains(t, s, "title: reviewed")
}

func TestShortPath(t *testing.T) {
	assert.Equal(t, "src/a.go", shortPath("/repo/src/a.go", "/repo"))
	assert.Equal(t, "(workspace)", shortPath("/repo", "/repo"))
	assert.Equal(t, "/other/a.go", shortPath("/other/a.go", "/repo"))
}
