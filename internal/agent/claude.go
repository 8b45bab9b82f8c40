package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/RevCBH/kyco/internal/job"
)

// ClaudeRunner invokes the Claude CLI non-interactively, grounded on
// internal/provider/claude.go's invokeWithStream: --dangerously-skip-
// permissions plus --output-format stream-json so the runner can forward
// per-event progress and recover token/cost/session_id accounting from
// the terminal "result" event.
type ClaudeRunner struct {
	Command string
}

// NewClaudeRunner returns a runner invoking the named executable
// ("claude" if empty).
func NewClaudeRunner(command string) *ClaudeRunner {
	if command == "" {
		command = "claude"
	}
	return &ClaudeRunner{Command: command}
}

type claudeStreamEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Message *struct {
		Role    string `json:"role"`
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
	} `json:"message"`
	SessionID    string  `json:"session_id"`
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
	Usage        *struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	} `json:"usage"`
}

func (c *ClaudeRunner) Run(ctx context.Context, j *job.Job, cwd string, cfg Config, logs chan<- LogEvent) (Result, error) {
	command := cfg.Command
	if command == "" {
		command = c.Command
	}
	if command == "" {
		command = "claude"
	}

	prompt := j.SentPrompt
	if prompt == "" {
		prompt = j.Description
	}

	args := []string{
		"--dangerously-skip-permissions",
		"--output-format", "stream-json",
		"--verbose",
	}
	if len(cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(cfg.AllowedTools, ","))
	}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	args = append(args, cfg.ExtraArgs...)
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("create stdout pipe: %w", err)
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start claude: %w", err)
	}

	res := Result{SentPrompt: prompt}
	var outputText strings.Builder

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var ev claudeStreamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			emit(logs, LogEvent{Kind: LogInfo, Message: line})
			continue
		}
		c.handleEvent(ev, &res, &outputText, logs)
	}

	cmdErr := cmd.Wait()
	res.DurationMs = time.Since(start).Milliseconds()
	res.OutputText = outputText.String()

	if cmdErr != nil {
		res.Success = false
		res.Error = strings.TrimSpace(stderrBuf.String())
		if res.Error == "" {
			res.Error = cmdErr.Error()
		}
		return res, nil
	}

	res.Success = !res.hadError
	return res, nil
}

// handleEvent updates res in place from one parsed stream-json line and
// forwards a LogEvent. Permission-request tool calls are tagged
// LogPermission; JobRunner rewrites those into PermissionNeeded UI
// events, the adapter only tags the kind.
func (c *ClaudeRunner) handleEvent(ev claudeStreamEvent, res *Result, out *strings.Builder, logs chan<- LogEvent) {
	if ev.SessionID != "" {
		res.SessionID = ev.SessionID
	}

	switch ev.Type {
	case "assistant":
		if ev.Message != nil {
			for _, block := range ev.Message.Content {
				switch block.Type {
				case "text":
					out.WriteString(block.Text)
					emit(logs, LogEvent{Kind: LogAssistant, Message: block.Text, SessionID: ev.SessionID})
				case "tool_use":
					if isPermissionTool(block.Name) {
						emit(logs, LogEvent{Kind: LogPermission, Message: block.Name, SessionID: ev.SessionID, Payload: block.Input})
					} else {
						emit(logs, LogEvent{Kind: LogToolUse, Message: block.Name, SessionID: ev.SessionID, Payload: block.Input})
					}
				}
			}
		}
	case "result":
		res.CostUSD = ev.TotalCostUSD
		if ev.DurationMS > 0 {
			res.DurationMs = ev.DurationMS
		}
		if ev.Usage != nil {
			res.InputTokens = ev.Usage.InputTokens
			res.OutputTokens = ev.Usage.OutputTokens
			res.CacheReadTokens = ev.Usage.CacheReadInputTokens
			res.CacheWriteTokens = ev.Usage.CacheCreationInputTokens
		}
		if ev.IsError {
			res.hadError = true
			res.Error = ev.Result
			emit(logs, LogEvent{Kind: LogError, Message: ev.Result, SessionID: ev.SessionID})
		}
	case "system":
		emit(logs, LogEvent{Kind: LogInfo, Message: ev.Subtype, SessionID: ev.SessionID})
	}
}

// isPermissionTool reports whether a tool-use name corresponds to a
// permission prompt Claude would otherwise block on interactively.
func isPermissionTool(name string) bool {
	return name == "permission_request" || strings.HasPrefix(name, "Permission")
}
