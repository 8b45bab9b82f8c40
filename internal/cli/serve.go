package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RevCBH/kyco/internal/agent"
	"github.com/RevCBH/kyco/internal/chain"
	"github.com/RevCBH/kyco/internal/config"
	"github.com/RevCBH/kyco/internal/ctlapi"
	"github.com/RevCBH/kyco/internal/events"
	"github.com/RevCBH/kyco/internal/group"
	"github.com/RevCBH/kyco/internal/job"
	"github.com/RevCBH/kyco/internal/runner"
	"github.com/RevCBH/kyco/internal/scheduler"
)

// NewServeCmd creates the 'serve' command: run the scheduler and the
// control API in-process until interrupted.
// Flags: --config (string), --max-concurrent (int, overrides config)
func NewServeCmd(a *App) *cobra.Command {
	var configPath string
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator and its control API",
		Long: `Start the job scheduler and the loopback control API.

Jobs are created and driven through the control API (see the add,
queue, merge, reject, diff and cancel commands, or POST /ctl/jobs
directly). State is in-memory; stopping the server loses any job not
already merged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if maxConcurrent > 0 {
				cfg.MaxConcurrent = maxConcurrent
			}
			return a.runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default: .kyco/config.yaml)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Override max concurrent jobs")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Load(cwd)
}

// runServe assembles the core and blocks until the context is done or a
// termination signal arrives.
func (a *App) runServe(ctx context.Context, cfg *config.Config) error {
	jobs := job.NewStore()
	groups := group.NewStore()

	bus := events.NewBus(256)
	defer bus.Close()
	bus.Subscribe(events.LogHandler(events.LogConfig{
		Writer:         os.Stderr,
		IncludePayload: a.verbose,
	}))

	agents := agent.NewRegistry(buildRunners(cfg))

	jobRunner := runner.New(jobs, bus, cfg, agents, chain.New(bus, jobs), nil)
	jobRunner.Groups = groups

	sched := scheduler.New(jobs, groups, bus, jobRunner, cfg.UseWorktree, cfg.MaxConcurrent)

	api := ctlapi.New(jobs, groups, cfg, bus, sched, jobRunner.GitOpsFor)
	addr := cfg.ControlAPI.Addr
	if addr == "" {
		addr = defaultCtlAddr
	}
	if err := api.Start(addr); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "kyco: control API listening on %s\n", api.Addr())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return api.Stop(shutdownCtx)
}

// buildRunners maps configured agent ids onto adapters. Codex gets its
// own adapter; everything else speaks the Claude CLI protocol with the
// configured command (which is how a user points "gemini" at any
// claude-compatible wrapper).
func buildRunners(cfg *config.Config) map[string]agent.Runner {
	runners := map[string]agent.Runner{
		"claude": agent.NewClaudeRunner(""),
		"codex":  agent.NewCodexRunner(""),
	}
	for id, ac := range cfg.Agents {
		switch id {
		case "codex":
			runners[id] = agent.NewCodexRunner(ac.Command)
		default:
			runners[id] = agent.NewClaudeRunner(ac.Command)
		}
	}
	return runners
}
