package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/kyco/internal/config"
	"github.com/RevCBH/kyco/internal/ctlapi"
	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/gitops"
	"github.com/RevCBH/kyco/internal/group"
	"github.com/RevCBH/kyco/internal/job"
)

type nopControl struct{}

func (nopControl) Wake()                  {}
func (nopControl) Cancel(jobID uint64) bool { return false }

func startTestAPI(t *testing.T) (*Client, *job.Store) {
	t.Helper()

	jobs := job.NewStore()
	groups := group.NewStore()
	gitOpsFor := func(workspace string) *gitops.GitOps {
		return gitops.New(workspace, workspace+"/.kyco/worktrees", nil)
	}

	s := ctlapi.New(jobs, groups, config.Default(), events.NewBus(0), nopControl{}, gitOpsFor)
	require.NoError(t, s.Start("0"))
	t.Cleanup(func() { s.Stop(context.Background()) })

	return NewClient(s.Addr(), ""), jobs
}

func TestClient_CreateListGet(t *testing.T) {
	c, _ := startTestAPI(t)
	ctx := context.Background()

	jobIDs, groupID, err := c.CreateJobs(ctx, CreateJobsRequest{
		FilePath: "/repo/a.go",
		Mode:     "docs",
		Prompt:   "document this",
	})
	require.NoError(t, err)
	require.Len(t, jobIDs, 1)
	assert.Zero(t, groupID)

	jobs, err := c.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "queued", jobs[0].Status)

	j, err := c.GetJob(ctx, jobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "docs", j.Mode)
}

func TestClient_SurfacesAPIErrors(t *testing.T) {
	c, _ := startTestAPI(t)

	_, err := c.GetJob(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not found"), err.Error())
}

func TestClient_MergeRequiresDone(t *testing.T) {
	c, jobs := startTestAPI(t)
	j := jobs.CreateJob("docs", "claude", "/repo/a.go", 1, "/repo")

	err := c.MergeJob(context.Background(), j.ID, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Done")
}

func TestClient_UnreachableServer(t *testing.T) {
	c := NewClient("127.0.0.1:1", "")
	_, err := c.ListJobs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kyco serve")
}
