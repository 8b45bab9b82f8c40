package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RevCBH/kyco/internal/ctlapi"
)

// defaultCtlAddr matches the port `kyco serve` binds when the config
// does not name one.
const defaultCtlAddr = "127.0.0.1:4772"

// Client is a thin JSON client for the control API of a running
// `kyco serve` instance.
type Client struct {
	addr  string
	token string
	http  *http.Client
}

// NewClient creates a client for the control API at addr.
func NewClient(addr, token string) *Client {
	if addr == "" {
		addr = defaultCtlAddr
	}
	return &Client{
		addr:  addr,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.addr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-KYCO-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("control API request failed (is `kyco serve` running on %s?): %w", c.addr, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("control API returned %s", resp.Status)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// ListJobs fetches every job.
func (c *Client) ListJobs(ctx context.Context) ([]ctlapi.JobView, error) {
	var resp struct {
		Jobs []ctlapi.JobView `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/ctl/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob fetches one job by id.
func (c *Client) GetJob(ctx context.Context, id uint64) (ctlapi.JobView, error) {
	var resp struct {
		Job ctlapi.JobView `json:"job"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/ctl/jobs/%d", id), nil, &resp)
	return resp.Job, err
}

// CreateJobsRequest mirrors the POST /ctl/jobs body.
type CreateJobsRequest struct {
	FilePath      string   `json:"file_path"`
	LineStart     *int     `json:"line_start,omitempty"`
	SelectedText  string   `json:"selected_text,omitempty"`
	Mode          string   `json:"mode"`
	Prompt        string   `json:"prompt,omitempty"`
	Agent         string   `json:"agent,omitempty"`
	Agents        []string `json:"agents,omitempty"`
	Queue         *bool    `json:"queue,omitempty"`
	ForceWorktree bool     `json:"force_worktree,omitempty"`
}

// CreateJobs creates one or more jobs (a group when several agents are
// named) and returns their ids plus the group id, if any.
func (c *Client) CreateJobs(ctx context.Context, req CreateJobsRequest) (jobIDs []uint64, groupID uint64, err error) {
	var resp struct {
		JobIDs  []uint64 `json:"job_ids"`
		GroupID uint64   `json:"group_id"`
	}
	err = c.do(ctx, http.MethodPost, "/ctl/jobs", req, &resp)
	return resp.JobIDs, resp.GroupID, err
}

// QueueJob moves a Pending or Blocked job to Queued.
func (c *Client) QueueJob(ctx context.Context, id uint64) (string, error) {
	var resp struct {
		JobStatus string `json:"job_status"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/ctl/jobs/%d/queue", id), nil, &resp)
	return resp.JobStatus, err
}

// MergeJob merges a Done job's worktree back into its base branch.
func (c *Client) MergeJob(ctx context.Context, id uint64, message string) error {
	var body any
	if message != "" {
		body = map[string]string{"message": message}
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/ctl/jobs/%d/merge", id), body, nil)
}

// RejectJob rejects a Done or Failed job and removes its worktree.
func (c *Client) RejectJob(ctx context.Context, id uint64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/ctl/jobs/%d/reject", id), nil, nil)
}

// CancelJob requests cooperative cancellation.
func (c *Client) CancelJob(ctx context.Context, id uint64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/ctl/jobs/%d/cancel", id), nil, nil)
}

// DiffResponse mirrors GET /ctl/jobs/{id}/diff.
type DiffResponse struct {
	Diff         string   `json:"diff"`
	ChangedFiles []string `json:"changed_files"`
	WorktreePath string   `json:"worktree_path"`
	BaseBranch   string   `json:"base_branch"`
}

// DiffJob fetches a job's diff against its base branch.
func (c *Client) DiffJob(ctx context.Context, id uint64) (DiffResponse, error) {
	var resp DiffResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/ctl/jobs/%d/diff", id), nil, &resp)
	return resp, err
}
