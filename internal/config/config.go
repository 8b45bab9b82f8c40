// Package config loads the YAML configuration the scheduler, job
// runner, and chain runner consult: tilde-expanded paths, a defaults
// object, LoadFromPath reading a specific file and Load resolving the
// conventional repo-relative location.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration: worktree policy,
// concurrency, the comment-marker prefix, per-mode overrides, chain
// definitions, and agent commands.
type Config struct {
	// UseWorktree is the global isolation preference: "preferred"
	// rather than mandatory unless a mode/group/force_worktree override
	// applies.
	UseWorktree bool `yaml:"use_worktree"`

	// MaxConcurrent bounds simultaneously Running jobs.
	MaxConcurrent int `yaml:"max_concurrent"`

	// WorktreesDir is relative to each job's workspace_path unless
	// absolute; conventionally ".kyco/worktrees".
	WorktreesDir string `yaml:"worktrees_dir"`

	// CommentPrefix is the comment-marker prefix, default "@@". Validate
	// requires it to be non-empty; `kyco scan` takes its prefix from its
	// own --prefix flag, not from this field.
	CommentPrefix string `yaml:"comment_prefix"`

	// Modes maps a mode name to its resolution: either a single-step
	// agent mode (UseWorktree override only) or a Chain name.
	Modes map[string]ModeConfig `yaml:"modes"`

	// Chains maps a chain name to its step sequence.
	Chains map[string]ChainConfig `yaml:"chains"`

	// Agents maps an agent id to its adapter command override.
	Agents map[string]AgentConfig `yaml:"agents"`

	// ControlAPI configures the optional loopback HTTP control surface.
	ControlAPI ControlAPIConfig `yaml:"control_api"`
}

// ModeConfig describes one symbolic mode name.
type ModeConfig struct {
	// Chain, if set, means this mode resolves to a chain rather than a
	// single agent-mode.
	Chain string `yaml:"chain"`

	// UseWorktree is a tri-state override: nil means "defer to global
	// config"; a false value wins over a true global default.
	UseWorktree *bool `yaml:"use_worktree"`
}

// IsChain reports whether this mode resolves to a chain definition.
func (m ModeConfig) IsChain() bool { return m.Chain != "" }

// ChainConfig is one chain definition.
type ChainConfig struct {
	Steps            []ChainStepConfig `yaml:"steps"`
	StopOnFailure    bool              `yaml:"stop_on_failure"`
	PassFullResponse bool              `yaml:"pass_full_response"`
	MaxLoops         uint32            `yaml:"max_loops"`
}

// ChainStepConfig is one step of a chain.
type ChainStepConfig struct {
	Mode string `yaml:"mode"`

	// Guard, if set, is evaluated against the previous step's `state`
	// token; the step is skipped when Guard != "" and the observed state
	// doesn't equal it.
	Guard string `yaml:"guard"`

	// LoopTo, if non-nil, jumps execution back to that step index when
	// this step completes, as long as the chain has executed fewer than
	// MaxLoops steps so far.
	LoopTo *int `yaml:"loop_to"`
}

// AgentConfig is the per-agent adapter command override.
type AgentConfig struct {
	Command string `yaml:"command"`
	Model   string `yaml:"model"`
}

// ControlAPIConfig configures the optional HTTP control surface.
type ControlAPIConfig struct {
	Addr  string `yaml:"addr"`  // empty means the default 127.0.0.1:4772
	Token string `yaml:"token"` // empty disables bearer-token auth
}

// Default returns a Config with the spec's documented defaults: global
// worktree isolation off (file locks arbitrate in-place runs instead),
// two concurrent jobs, worktrees under ".kyco/worktrees", marker prefix
// "@@".
func Default() *Config {
	return &Config{
		UseWorktree:   false,
		MaxConcurrent: 2,
		WorktreesDir:  ".kyco/worktrees",
		CommentPrefix: "@@",
		Modes:         map[string]ModeConfig{},
		Chains:        map[string]ChainConfig{},
		Agents: map[string]AgentConfig{
			"claude": {Command: "claude"},
			"codex":  {Command: "codex"},
		},
	}
}

// Load reads "{repoRoot}/.kyco/config.yaml", falling back to defaults
// when absent.
func Load(repoRoot string) (*Config, error) {
	return LoadFromPath(filepath.Join(repoRoot, ".kyco", "config.yaml"))
}

// LoadFromPath reads a specific config file, returning defaults if it
// does not exist.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandWorktreesDir resolves WorktreesDir against repoRoot, expanding a
// leading "~" against the user's home directory first.
func (c *Config) ExpandWorktreesDir(repoRoot string) string {
	dir := c.WorktreesDir
	if strings.HasPrefix(dir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(repoRoot, dir)
}

// ResolveMode looks up how a symbolic mode name resolves: either a chain
// definition (ok=true, chain populated) or nothing (the mode is a plain
// agent-mode name passed straight through to the adapter).
func (c *Config) ResolveMode(mode string) (chain ChainConfig, isChain bool) {
	m, ok := c.Modes[mode]
	if !ok || !m.IsChain() {
		return ChainConfig{}, false
	}
	chain, ok = c.Chains[m.Chain]
	return chain, ok
}

// WorktreeRequiredForMode reports the mode-level override, if any.
func (c *Config) WorktreeRequiredForMode(mode string) (required bool, overridden bool) {
	m, ok := c.Modes[mode]
	if !ok || m.UseWorktree == nil {
		return false, false
	}
	return *m.UseWorktree, true
}
