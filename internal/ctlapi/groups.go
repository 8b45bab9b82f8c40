package ctlapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/group"
	"github.com/RevCBH/kyco/internal/job"
)

func pathGroupID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	return id, err == nil
}

// listGroupsResponse is the body of GET /ctl/groups.
type listGroupsResponse struct {
	Groups []GroupView `json:"groups"`
}

// getGroupResponse is the body of GET /ctl/groups/{id}.
type getGroupResponse struct {
	Group GroupView `json:"group"`
}

// selectResultRequest is the body of POST /ctl/groups/{id}/select.
type selectResultRequest struct {
	JobID uint64 `json:"job_id"`
}

// mergeGroupResponse is the body of POST /ctl/groups/{id}/merge.
type mergeGroupResponse struct {
	Status      string `json:"status"`
	GroupID     uint64 `json:"group_id"`
	MergedJobID uint64 `json:"merged_job_id"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.Groups.Views()
	views := make([]GroupView, 0, len(groups))
	for i := range groups {
		views = append(views, newGroupView(&groups[i]))
	}
	writeJSON(w, http.StatusOK, listGroupsResponse{Groups: views})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathGroupID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	g, ok := s.Groups.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	writeJSON(w, http.StatusOK, getGroupResponse{Group: newGroupView(&g)})
}

// handleSelectGroupResult implements POST /ctl/groups/{id}/select:
// record which member job's output the user picked. Selection does not
// itself change the group's status.
func (s *Server) handleSelectGroupResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathGroupID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if _, ok := s.Groups.View(id); !ok {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}

	var req selectResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !s.Groups.SelectResult(id, req.JobID) {
		writeError(w, http.StatusBadRequest, "job is not a member of this group")
		return
	}
	g, _ := s.Groups.View(id)
	writeJSON(w, http.StatusOK, getGroupResponse{Group: newGroupView(&g)})
}

// handleMergeGroup implements POST /ctl/groups/{id}/merge: merge the
// selected member's worktree, reject every other member, and mark the
// group Merged. End state: selected job Merged, all other members
// Rejected. Works from snapshots — the members are terminal by the
// Comparing precondition, so no runner goroutine is still writing them.
func (s *Server) handleMergeGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathGroupID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	g, ok := s.Groups.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	if g.Status != group.StatusComparing {
		writeError(w, http.StatusBadRequest, "group must be Comparing to merge, is "+string(g.Status))
		return
	}
	if g.SelectedJob == 0 {
		writeError(w, http.StatusBadRequest, "no result selected for this group")
		return
	}

	selected, ok := s.Jobs.View(g.SelectedJob)
	if !ok || selected.Status != job.StatusDone {
		writeError(w, http.StatusBadRequest, "selected job is not in Done status")
		return
	}

	var req mergeJobRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := s.mergeJobWorktree(r.Context(), selected, req.Message); err != nil {
		writeError(w, http.StatusConflict, "merge failed: "+err.Error())
		return
	}
	s.Jobs.SetStatus(selected.ID, job.StatusMerged)
	if s.Bus != nil {
		s.Bus.Emit(events.NewEvent(events.JobMerged, selected.ID).WithGroup(id))
	}

	for _, memberID := range g.JobIDs {
		if memberID == selected.ID {
			continue
		}
		member, ok := s.Jobs.View(memberID)
		if !ok || !member.Status.CanTransitionTo(job.StatusRejected) {
			continue
		}
		s.removeJobWorktree(r.Context(), member)
		s.Jobs.SetStatus(memberID, job.StatusRejected)
		if s.Bus != nil {
			s.Bus.Emit(events.NewEvent(events.JobRejected, memberID).WithGroup(id))
		}
	}

	s.Groups.MarkMerged(id)
	if s.Bus != nil {
		s.Bus.Emit(events.NewEvent(events.GroupMerged, selected.ID).WithGroup(id))
	}
	writeJSON(w, http.StatusOK, mergeGroupResponse{
		Status:      string(group.StatusMerged),
		GroupID:     id,
		MergedJobID: selected.ID,
	})
}
