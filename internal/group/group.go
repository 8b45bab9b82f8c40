// Package group tracks multi-agent fan-outs: a run group owns an
// ordered list of member job ids and the winner the user eventually
// selects. Members are tracked by id rather than by pointer; the id is
// the canonical handle both directions.
package group

import (
	"sort"
	"sync"

	"github.com/RevCBH/kyco/internal/job"
)

// Status is one of Running, Comparing, Merged, Cancelled.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComparing Status = "comparing"
	StatusMerged    Status = "merged"
	StatusCancelled Status = "cancelled"
)

// Group is the parent of a fan-out over multiple agents on the same
// prompt+mode+target.
type Group struct {
	ID           uint64
	JobIDs       []uint64 // insertion order
	Status       Status
	SelectedJob  uint64 // 0 means "none selected"
	Prompt       string
	Mode         string
	Target       string
}

// Store is the process-wide group table, guarded by its own mutex,
// independent of job.Store's.
type Store struct {
	mu     sync.Mutex
	groups map[uint64]*Group
	nextID uint64
}

func NewStore() *Store {
	return &Store{groups: make(map[uint64]*Group)}
}

// CreateGroup registers a new group in Running status over the given
// member job ids (already created in the job store by the caller).
func (s *Store) CreateGroup(prompt, mode, target string, jobIDs []uint64) *Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	g := &Group{
		ID:     s.nextID,
		JobIDs: append([]uint64(nil), jobIDs...),
		Status: StatusRunning,
		Prompt: prompt,
		Mode:   mode,
		Target: target,
	}
	s.groups[g.ID] = g
	return g
}

// Get returns the live group, or nil if absent. Like job.Store.Get, the
// pointer's fields are only safe to touch while no other goroutine can
// mutate the group; concurrent readers use View/Views snapshots.
func (s *Store) Get(id uint64) *Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[id]
}

// View returns a snapshot copy of the group (member ids included), safe
// to read without the lock.
func (s *Store) View(id uint64) (Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return Group{}, false
	}
	return snapshot(g), true
}

// Views returns snapshot copies of every group, ordered by ascending id.
func (s *Store) Views() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, snapshot(g))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func snapshot(g *Group) Group {
	copied := *g
	copied.JobIDs = append([]uint64(nil), g.JobIDs...)
	return copied
}

// UpdateGroupStatus re-evaluates a group's status against its members'
// current job statuses: Comparing is entered once every member is
// terminal and at least one is Done; Cancelled if every member failed.
// Member statuses are read inside jobs' critical section (the runner
// goroutines mutate them under that same lock). Returns the group's
// status after the pass and whether it changed.
func (s *Store) UpdateGroupStatus(groupID uint64, jobs *job.Store) (Status, bool) {
	s.mu.Lock()
	g, ok := s.groups[groupID]
	if !ok {
		s.mu.Unlock()
		return "", false
	}
	if g.Status != StatusRunning {
		status := g.Status
		s.mu.Unlock()
		return status, false
	}
	memberIDs := append([]uint64(nil), g.JobIDs...)
	s.mu.Unlock()

	allTerminal := true
	anyDone := false
	allFailed := true
	jobs.WithLock(func(l *job.Locked) {
		for _, id := range memberIDs {
			j := l.Get(id)
			if j == nil {
				continue
			}
			if !memberTerminal(j.Status) {
				allTerminal = false
			}
			if j.Status == job.StatusDone {
				anyDone = true
			}
			if j.Status != job.StatusFailed {
				allFailed = false
			}
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if !allTerminal || g.Status != StatusRunning {
		return g.Status, false
	}
	switch {
	case allFailed:
		g.Status = StatusCancelled
	case anyDone:
		g.Status = StatusComparing
	default:
		return g.Status, false
	}
	return g.Status, true
}

// memberTerminal reports whether a member job has reached a state the
// group considers final. Done and Failed count even though the job
// status DAG still allows Done -> Merged/Rejected and Failed ->
// Rejected: those later edges are the group's own merge flow, not more
// work in flight.
func memberTerminal(s job.Status) bool {
	switch s {
	case job.StatusDone, job.StatusFailed, job.StatusMerged, job.StatusRejected:
		return true
	}
	return false
}

// SelectResult records a winner. Selection alone does not change the
// group's status; MarkMerged does that.
func (s *Store) SelectResult(groupID, jobID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return false
	}
	found := false
	for _, id := range g.JobIDs {
		if id == jobID {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	g.SelectedJob = jobID
	return true
}

// MarkMerged transitions a group to Merged. Requires a prior selection;
// it is the only transition into Merged.
func (s *Store) MarkMerged(groupID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok || g.SelectedJob == 0 {
		return false
	}
	g.Status = StatusMerged
	return true
}
