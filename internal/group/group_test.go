package group

import (
	"testing"

	"github.com/RevCBH/kyco/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UpdateGroupStatus_ComparingWhenAnyDone(t *testing.T) {
	jobs := job.NewStore()
	a := jobs.CreateJob("docs", "claude", "prompt", 1, "/repo")
	b := jobs.CreateJob("docs", "codex", "prompt", 1, "/repo")
	jobs.SetStatus(a.ID, job.StatusDone)
	jobs.SetStatus(b.ID, job.StatusFailed)

	groups := NewStore()
	g := groups.CreateGroup("p", "docs", "prompt", []uint64{a.ID, b.ID})

	groups.UpdateGroupStatus(g.ID, jobs)

	assert.Equal(t, StatusComparing, groups.Get(g.ID).Status)
}

func TestStore_UpdateGroupStatus_CancelledWhenAllFailed(t *testing.T) {
	jobs := job.NewStore()
	a := jobs.CreateJob("docs", "claude", "prompt", 1, "/repo")
	b := jobs.CreateJob("docs", "codex", "prompt", 1, "/repo")
	jobs.SetStatus(a.ID, job.StatusFailed)
	jobs.SetStatus(b.ID, job.StatusFailed)

	groups := NewStore()
	g := groups.CreateGroup("p", "docs", "prompt", []uint64{a.ID, b.ID})

	groups.UpdateGroupStatus(g.ID, jobs)

	assert.Equal(t, StatusCancelled, groups.Get(g.ID).Status)
}

func TestStore_UpdateGroupStatus_StaysRunningUntilAllTerminal(t *testing.T) {
	jobs := job.NewStore()
	a := jobs.CreateJob("docs", "claude", "prompt", 1, "/repo")
	b := jobs.CreateJob("docs", "codex", "prompt", 1, "/repo")
	jobs.SetStatus(a.ID, job.StatusDone)
	jobs.SetStatus(b.ID, job.StatusRunning)

	groups := NewStore()
	g := groups.CreateGroup("p", "docs", "prompt", []uint64{a.ID, b.ID})

	groups.UpdateGroupStatus(g.ID, jobs)

	assert.Equal(t, StatusRunning, groups.Get(g.ID).Status)
}

func TestStore_SelectResultThenMarkMerged(t *testing.T) {
	jobs := job.NewStore()
	a := jobs.CreateJob("docs", "claude", "prompt", 1, "/repo")

	groups := NewStore()
	g := groups.CreateGroup("p", "docs", "prompt", []uint64{a.ID})

	require.True(t, groups.SelectResult(g.ID, a.ID))
	assert.Equal(t, StatusRunning, groups.Get(g.ID).Status, "selection alone does not change status")

	require.True(t, groups.MarkMerged(g.ID))
	assert.Equal(t, StatusMerged, groups.Get(g.ID).Status)
}

func TestStore_MarkMergedRequiresSelection(t *testing.T) {
	groups := NewStore()
	g := groups.CreateGroup("p", "docs", "prompt", []uint64{1})

	assert.False(t, groups.MarkMerged(g.ID))
}

func TestStore_SelectResultRejectsNonMember(t *testing.T) {
	groups := NewStore()
	g := groups.CreateGroup("p", "docs", "prompt", []uint64{1, 2})

	assert.False(t, groups.SelectResult(g.ID, 999))
}
