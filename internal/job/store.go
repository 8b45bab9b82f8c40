package job

import (
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Store is the process-wide job table plus the file-lock map and
// generation counter. Every operation holds the store mutex; critical
// sections stay short and never span a blocking call.
//
// Job fields are only safe to read or write while the mutex is held:
// use Update for a single job, WithLock for multi-job work, and
// View/Views for snapshot copies handed to readers outside the lock.
type Store struct {
	mu         sync.Mutex
	jobs       map[uint64]*Job
	nextID     uint64
	fileLocks  map[string]uint64 // absolute path -> job id
	generation uint64
}

// NewStore creates an empty job store. Ids are allocated starting at 1
// and are never reused.
func NewStore() *Store {
	return &Store{
		jobs:      make(map[uint64]*Job),
		fileLocks: make(map[string]uint64),
	}
}

// Generation returns the current mutation counter. Valid only as of the
// instant it's read; callers needing a consistent snapshot should read it
// together with whatever data they cache, under WithLock.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Touch bumps the generation counter without otherwise mutating the
// store, for callers whose mutation happened inside an Update/WithLock
// callback that observers must notice.
func (s *Store) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

func (s *Store) touchLocked() {
	s.generation++
}

func (s *Store) allocateID() uint64 {
	return atomic.AddUint64(&s.nextID, 1)
}

// CreateJob allocates a new Job with status Pending and inserts it. The
// workspace path is inferred by the caller (nearest enclosing git root,
// falling back to the source file's parent directory) and passed in
// rather than computed here, keeping Store free of filesystem access.
func (s *Store) CreateJob(mode, agentID, sourceFile string, sourceLine int, workspacePath string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	j := &Job{
		ID:            s.allocateID(),
		Status:        StatusPending,
		Mode:          mode,
		AgentID:       agentID,
		SourceFile:    sourceFile,
		SourceLine:    sourceLine,
		WorkspacePath: workspacePath,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.jobs[j.ID] = j
	s.touchLocked()
	return j
}

// Get returns the job, or nil if absent. The returned pointer is a live
// handle shared with every other goroutine: its fields are only safe to
// touch inside WithLock or Update. Outside of tests, treat the pointer
// as an opaque identity and go through Update/View for field access.
func (s *Store) Get(id uint64) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// View returns a snapshot copy of the job, safe to read without the
// lock. Slice/pointer members of the copy (chain history, result) are
// shared with the live job and must be treated as read-only; writers
// always replace those members rather than mutating them in place.
func (s *Store) View(id uint64) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Views returns snapshot copies of every job, ordered by ascending id.
func (s *Store) Views() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Update runs fn on the job with the store's mutex held and bumps the
// generation counter. Returns false if the job is absent. fn must not
// block or call back into Store (it would deadlock).
func (s *Store) Update(id uint64, fn func(*Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(j)
	j.UpdatedAt = time.Now()
	s.touchLocked()
	return true
}

// WithLock runs fn with the store's mutex held, so a caller can read or
// mutate several jobs (or jobs plus locks) atomically. fn must not
// block or call back into Store (it would deadlock).
func (s *Store) WithLock(fn func(*Locked)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Locked{s: s})
}

// Locked exposes store internals for use inside WithLock callbacks.
// Pointers obtained through it are only valid while the callback runs.
type Locked struct{ s *Store }

// Get returns the live job, or nil if absent.
func (l *Locked) Get(id uint64) *Job { return l.s.jobs[id] }

// Touch bumps the generation counter.
func (l *Locked) Touch() { l.s.touchLocked() }

// Jobs returns every job in ascending id order.
func (l *Locked) Jobs() []*Job {
	out := make([]*Job, 0, len(l.s.jobs))
	for _, j := range l.s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// JobsWithStatus returns jobs in the given status, ascending id order —
// the order the scheduler admits them in.
func (l *Locked) JobsWithStatus(status Status) []*Job {
	out := make([]*Job, 0)
	for _, j := range l.s.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// CountWithStatus returns how many jobs are in the given status.
func (l *Locked) CountWithStatus(status Status) int {
	n := 0
	for _, j := range l.s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

// TryLockFile inserts a lock on path for jobID only if absent.
func (l *Locked) TryLockFile(path string, jobID uint64) bool {
	return l.s.tryLockFileLocked(path, jobID)
}

// GetBlockingJob returns the job id holding a lock on path, excluding
// exclude itself.
func (l *Locked) GetBlockingJob(path string, exclude uint64) (uint64, bool) {
	return l.s.getBlockingJobLocked(path, exclude)
}

// ReleaseJobLocks removes every lock entry held by id.
func (l *Locked) ReleaseJobLocks(id uint64) {
	l.s.releaseJobLocksLocked(id)
}

// SetStatus mutates a job's status and bumps generation. The transition
// legality check is the caller's responsibility; the store itself does
// not enforce the status DAG.
func (s *Store) SetStatus(id uint64, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	j.Status = status
	j.UpdatedAt = time.Now()
	s.touchLocked()
	return true
}

// TryLockFile inserts a lock on path for jobID only if absent. Returns
// whether the lock was granted.
func (s *Store) TryLockFile(path string, jobID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tryLockFileLocked(path, jobID)
}

func (s *Store) tryLockFileLocked(path string, jobID uint64) bool {
	path = filepath.Clean(path)
	if _, held := s.fileLocks[path]; held {
		return false
	}
	s.fileLocks[path] = jobID
	s.touchLocked()
	return true
}

// GetBlockingJob returns the job id holding a lock on path, excluding
// exclude itself, and whether one was found.
func (s *Store) GetBlockingJob(path string, exclude uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBlockingJobLocked(path, exclude)
}

func (s *Store) getBlockingJobLocked(path string, exclude uint64) (uint64, bool) {
	holder, ok := s.fileLocks[filepath.Clean(path)]
	if !ok || holder == exclude {
		return 0, false
	}
	return holder, true
}

// IsFileLocked reports whether any job holds a lock on path.
func (s *Store) IsFileLocked(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fileLocks[filepath.Clean(path)]
	return ok
}

// ReleaseJobLocks removes every lock entry held by id.
func (s *Store) ReleaseJobLocks(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseJobLocksLocked(id)
}

func (s *Store) releaseJobLocksLocked(id uint64) {
	changed := false
	for path, holder := range s.fileLocks {
		if holder == id {
			delete(s.fileLocks, path)
			changed = true
		}
	}
	if changed {
		s.touchLocked()
	}
}

// RemoveJob releases its locks, then removes it. Generation bumps only
// if a job was actually present.
func (s *Store) RemoveJob(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	for path, holder := range s.fileLocks {
		if holder == id {
			delete(s.fileLocks, path)
		}
	}
	delete(s.jobs, id)
	s.touchLocked()
	return true
}
