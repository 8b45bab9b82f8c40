package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/group"
	"github.com/RevCBH/kyco/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewOf(t *testing.T, jobs *job.Store, id uint64) job.Job {
	t.Helper()
	v, ok := jobs.View(id)
	require.True(t, ok, "job %d missing", id)
	return v
}

func statusOf(t *testing.T, jobs *job.Store, id uint64) job.Status {
	t.Helper()
	return viewOf(t, jobs, id).Status
}

// blockingRunner holds a job Running until released, so tests can
// observe scheduler admission state mid-flight. Terminal transitions go
// through the store's critical section, the way the real JobRunner does.
type blockingRunner struct {
	jobs    *job.Store
	mu      sync.Mutex
	release map[uint64]chan struct{}
	started chan uint64
}

func newBlockingRunner(jobs *job.Store) *blockingRunner {
	return &blockingRunner{jobs: jobs, release: map[uint64]chan struct{}{}, started: make(chan uint64, 16)}
}

func (r *blockingRunner) Run(ctx context.Context, j *job.Job) {
	r.mu.Lock()
	ch := make(chan struct{})
	r.release[j.ID] = ch
	r.mu.Unlock()

	r.started <- j.ID
	<-ch

	r.jobs.SetStatus(j.ID, job.StatusDone)
}

func (r *blockingRunner) finish(id uint64) {
	r.mu.Lock()
	ch := r.release[id]
	r.mu.Unlock()
	close(ch)
}

// instantRunner completes synchronously (used where the test doesn't
// need to observe the Running window).
type instantRunner struct {
	jobs         *job.Store
	resultStatus job.Status
}

func (r instantRunner) Run(ctx context.Context, j *job.Job) {
	r.jobs.SetStatus(j.ID, r.resultStatus)
}

func TestTick_SingleJobHappyPath(t *testing.T) {
	jobs := job.NewStore()
	groups := group.NewStore()
	bus := events.NewBus(0)
	br := newBlockingRunner(jobs)

	s := New(jobs, groups, bus, br, false, 2)

	j := jobs.CreateJob("docs", "claude", "src/lib.rs", 1, "/repo")
	jobs.SetStatus(j.ID, job.StatusQueued)

	s.Tick(context.Background())

	select {
	case id := <-br.started:
		assert.Equal(t, j.ID, id)
	case <-time.After(time.Second):
		t.Fatal("job never admitted")
	}
	assert.Equal(t, job.StatusRunning, statusOf(t, jobs, j.ID))

	br.finish(j.ID)
}

func TestAdmissionPass_LockContentionBlocksSecondJob(t *testing.T) {
	jobs := job.NewStore()
	groups := group.NewStore()
	bus := events.NewBus(0)
	br := newBlockingRunner(jobs)

	s := New(jobs, groups, bus, br, false, 2)

	a := jobs.CreateJob("fix", "claude", "a.rs", 1, "/repo")
	b := jobs.CreateJob("fix", "claude", "a.rs", 1, "/repo")
	jobs.SetStatus(a.ID, job.StatusQueued)
	jobs.SetStatus(b.ID, job.StatusQueued)

	s.Tick(context.Background())
	<-br.started

	require.Equal(t, job.StatusRunning, statusOf(t, jobs, a.ID))
	require.Equal(t, job.StatusBlocked, statusOf(t, jobs, b.ID))
	assert.Equal(t, a.ID, viewOf(t, jobs, b.ID).BlockedBy)
	assert.Equal(t, "a.rs", viewOf(t, jobs, b.ID).BlockedFile)

	// Finishing A releases its lock; runner is responsible for that in
	// production, so the test does it explicitly before the next tick.
	br.finish(a.ID)
	jobs.ReleaseJobLocks(a.ID)
	jobs.SetStatus(a.ID, job.StatusDone)

	s.Tick(context.Background())
	assert.Equal(t, job.StatusQueued, statusOf(t, jobs, b.ID))
}

func TestAdmissionPass_RespectsMaxConcurrent(t *testing.T) {
	jobs := job.NewStore()
	groups := group.NewStore()
	bus := events.NewBus(0)
	br := newBlockingRunner(jobs)

	s := New(jobs, groups, bus, br, false, 1)

	a := jobs.CreateJob("fix", "claude", "a.rs", 1, "/repo")
	b := jobs.CreateJob("fix", "claude", "b.rs", 1, "/repo")
	jobs.SetStatus(a.ID, job.StatusQueued)
	jobs.SetStatus(b.ID, job.StatusQueued)

	s.Tick(context.Background())
	<-br.started

	assert.Equal(t, job.StatusRunning, statusOf(t, jobs, a.ID))
	assert.Equal(t, job.StatusQueued, statusOf(t, jobs, b.ID))

	br.finish(a.ID)
}

func TestNeedsFileLock_GroupOrForceWorktreeSkipsLock(t *testing.T) {
	jobs := job.NewStore()
	groups := group.NewStore()
	s := New(jobs, groups, events.NewBus(0), instantRunner{jobs, job.StatusDone}, false, 2)

	grouped := &job.Job{ID: 1, GroupID: 7}
	assert.False(t, s.needsFileLock(grouped))

	forced := &job.Job{ID: 2, ForceWorktree: true}
	assert.False(t, s.needsFileLock(forced))

	plain := &job.Job{ID: 3}
	assert.True(t, s.needsFileLock(plain))

	s.SetUseWorktree(true)
	assert.False(t, s.needsFileLock(plain))
}

func TestCancel_RunningJobSetsFlagOnly(t *testing.T) {
	jobs := job.NewStore()
	groups := group.NewStore()
	s := New(jobs, groups, events.NewBus(0), instantRunner{jobs, job.StatusDone}, false, 2)

	j := jobs.CreateJob("fix", "claude", "a.rs", 1, "/repo")
	jobs.SetStatus(j.ID, job.StatusQueued)
	jobs.SetStatus(j.ID, job.StatusRunning)

	ok := s.Cancel(j.ID)
	require.True(t, ok)
	assert.True(t, viewOf(t, jobs, j.ID).CancelRequested)
	assert.Equal(t, job.StatusRunning, statusOf(t, jobs, j.ID))
}

func TestCancel_QueuedJobFailsImmediatelyWithNormalisedLabel(t *testing.T) {
	jobs := job.NewStore()
	groups := group.NewStore()
	s := New(jobs, groups, events.NewBus(0), instantRunner{jobs, job.StatusDone}, false, 2)

	j := jobs.CreateJob("fix", "claude", "a.rs", 1, "/repo")
	jobs.SetStatus(j.ID, job.StatusQueued)
	jobs.TryLockFile("a.rs", j.ID)

	ok := s.Cancel(j.ID)
	require.True(t, ok)
	assert.Equal(t, job.StatusFailed, statusOf(t, jobs, j.ID))
	assert.Equal(t, "Job aborted by user", viewOf(t, jobs, j.ID).ErrorMessage)
	_, locked := jobs.GetBlockingJob("a.rs", 0)
	assert.False(t, locked)
}

func TestAdmissionPass_AscendingIDOrder(t *testing.T) {
	jobs := job.NewStore()
	groups := group.NewStore()
	br := newBlockingRunner(jobs)
	s := New(jobs, groups, events.NewBus(0), br, false, 1)

	b := jobs.CreateJob("fix", "claude", "b.rs", 1, "/repo")
	a := jobs.CreateJob("fix", "claude", "a.rs", 1, "/repo")
	jobs.SetStatus(b.ID, job.StatusQueued)
	jobs.SetStatus(a.ID, job.StatusQueued)

	s.Tick(context.Background())
	first := <-br.started
	assert.Equal(t, b.ID, first, "ids were created in order b, a; admission order is ascending id not creation order")
	br.finish(first)
}
