package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateJobAllocatesMonotonicIDs(t *testing.T) {
	s := NewStore()

	a := s.CreateJob("docs", "claude", "src/lib.rs", 1, "/repo")
	b := s.CreateJob("docs", "claude", "src/lib.rs", 2, "/repo")

	assert.Equal(t, uint64(1), a.ID)
	assert.Equal(t, uint64(2), b.ID)
	assert.Equal(t, StatusPending, a.Status)
}

func TestStore_GenerationIncreasesOnMutation(t *testing.T) {
	s := NewStore()
	g0 := s.Generation()

	j := s.CreateJob("docs", "claude", "src/lib.rs", 1, "/repo")
	g1 := s.Generation()
	require.Greater(t, g1, g0)

	s.SetStatus(j.ID, StatusQueued)
	g2 := s.Generation()
	assert.Greater(t, g2, g1)
}

func TestStore_TryLockFileGrantsOnce(t *testing.T) {
	s := NewStore()
	a := s.CreateJob("docs", "claude", "a.rs", 1, "/repo")
	b := s.CreateJob("docs", "claude", "a.rs", 1, "/repo")

	assert.True(t, s.TryLockFile("a.rs", a.ID))
	assert.False(t, s.TryLockFile("a.rs", b.ID))

	holder, ok := s.GetBlockingJob("a.rs", b.ID)
	assert.True(t, ok)
	assert.Equal(t, a.ID, holder)

	// The holder itself does not block against its own id.
	_, ok = s.GetBlockingJob("a.rs", a.ID)
	assert.False(t, ok)
}

func TestStore_ReleaseJobLocksFreesOnlyThatJobsLocks(t *testing.T) {
	s := NewStore()
	a := s.CreateJob("docs", "claude", "a.rs", 1, "/repo")
	require.True(t, s.TryLockFile("a.rs", a.ID))
	require.True(t, s.TryLockFile("b.rs", a.ID))

	s.ReleaseJobLocks(a.ID)

	assert.False(t, s.IsFileLocked("a.rs"))
	assert.False(t, s.IsFileLocked("b.rs"))
}

func TestStore_RemoveJobReleasesLocksFirst(t *testing.T) {
	s := NewStore()
	a := s.CreateJob("docs", "claude", "a.rs", 1, "/repo")
	require.True(t, s.TryLockFile("a.rs", a.ID))

	ok := s.RemoveJob(a.ID)

	assert.True(t, ok)
	assert.False(t, s.IsFileLocked("a.rs"))
	assert.Nil(t, s.Get(a.ID))
}

func TestStore_RemoveJobUnknownIDDoesNotBumpGeneration(t *testing.T) {
	s := NewStore()
	g0 := s.Generation()

	ok := s.RemoveJob(999)

	assert.False(t, ok)
	assert.Equal(t, g0, s.Generation())
}

func TestStore_JobsWithStatusOrderedByAscendingID(t *testing.T) {
	s := NewStore()
	c := s.CreateJob("docs", "claude", "c.rs", 1, "/repo")
	a := s.CreateJob("docs", "claude", "a.rs", 1, "/repo")
	b := s.CreateJob("docs", "claude", "b.rs", 1, "/repo")

	for _, j := range []*Job{c, a, b} {
		s.SetStatus(j.ID, StatusQueued)
	}

	var ids []uint64
	s.WithLock(func(l *Locked) {
		for _, j := range l.JobsWithStatus(StatusQueued) {
			ids = append(ids, j.ID)
		}
	})
	assert.Equal(t, []uint64{c.ID, a.ID, b.ID}, ids)
}

func TestStore_UpdateMutatesUnderLockAndBumpsGeneration(t *testing.T) {
	s := NewStore()
	j := s.CreateJob("docs", "claude", "a.rs", 1, "/repo")
	g0 := s.Generation()

	ok := s.Update(j.ID, func(jj *Job) { jj.BridgeSessionID = "sess-1" })
	require.True(t, ok)
	assert.Greater(t, s.Generation(), g0)

	v, found := s.View(j.ID)
	require.True(t, found)
	assert.Equal(t, "sess-1", v.BridgeSessionID)

	assert.False(t, s.Update(999, func(jj *Job) {}))
}

func TestStore_ViewReturnsSnapshotCopy(t *testing.T) {
	s := NewStore()
	j := s.CreateJob("docs", "claude", "a.rs", 1, "/repo")

	v, ok := s.View(j.ID)
	require.True(t, ok)

	// Mutating the snapshot must not leak back into the store.
	v.ErrorMessage = "scribbled"
	fresh, _ := s.View(j.ID)
	assert.Empty(t, fresh.ErrorMessage)

	_, ok = s.View(999)
	assert.False(t, ok)
}

func TestStore_WithLockSeesJobsAndLocksAtomically(t *testing.T) {
	s := NewStore()
	a := s.CreateJob("docs", "claude", "a.rs", 1, "/repo")
	b := s.CreateJob("docs", "claude", "a.rs", 1, "/repo")
	s.SetStatus(a.ID, StatusQueued)
	s.SetStatus(b.ID, StatusQueued)

	s.WithLock(func(l *Locked) {
		require.True(t, l.TryLockFile("a.rs", a.ID))
		holder, blocked := l.GetBlockingJob("a.rs", b.ID)
		assert.True(t, blocked)
		assert.Equal(t, a.ID, holder)

		l.ReleaseJobLocks(a.ID)
		_, blocked = l.GetBlockingJob("a.rs", b.ID)
		assert.False(t, blocked)

		assert.Equal(t, 2, l.CountWithStatus(StatusQueued))
		assert.Len(t, l.Jobs(), 2)
	})
}

func TestStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusQueued))
	assert.True(t, StatusQueued.CanTransitionTo(StatusRunning))
	assert.True(t, StatusQueued.CanTransitionTo(StatusBlocked))
	assert.True(t, StatusRunning.CanTransitionTo(StatusDone))
	assert.True(t, StatusRunning.CanTransitionTo(StatusFailed))
	assert.True(t, StatusDone.CanTransitionTo(StatusMerged))
	assert.True(t, StatusDone.CanTransitionTo(StatusRejected))
	assert.True(t, StatusFailed.CanTransitionTo(StatusRejected))

	assert.False(t, StatusPending.CanTransitionTo(StatusRunning))
	assert.False(t, StatusMerged.CanTransitionTo(StatusQueued))
	assert.False(t, StatusDone.CanTransitionTo(StatusQueued))
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusMerged.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestJob_IsPromptOnly(t *testing.T) {
	j := &Job{WorkspacePath: "/repo", SourceFile: "/repo"}
	assert.True(t, j.IsPromptOnly())

	j2 := &Job{WorkspacePath: "/repo", SourceFile: "prompt"}
	assert.True(t, j2.IsPromptOnly())

	j3 := &Job{WorkspacePath: "/repo", SourceFile: "/repo/src/lib.rs"}
	assert.False(t, j3.IsPromptOnly())
}
