// Package cli wires the cobra command tree: a `serve` command embedding
// the scheduler and control API in-process, and thin client commands
// that talk to a running serve instance over the control API.
package cli

import (
	"github.com/spf13/cobra"
)

// App represents the CLI application with all wired dependencies
type App struct {
	// Root command
	rootCmd *cobra.Command

	// Runtime state
	verbose bool
	addr    string

	// Version information
	version string
	commit  string
	date    string
}

// New creates a new CLI application
func New() *App {
	app := &App{}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.version = version
	a.commit = commit
	a.date = date
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "kyco",
		Short: "Local agent-job orchestrator",
		Long: `Kyco runs coding agents (Claude, Codex, ...) against a workspace,
schedules them under concurrency and file-lock constraints, isolates
their changes in short-lived git worktrees, and exposes merge/reject/
diff operations on their results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add persistent flags
	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")
	a.rootCmd.PersistentFlags().StringVar(&a.addr, "addr", defaultCtlAddr,
		"Control API address of a running `kyco serve`")

	a.rootCmd.AddCommand(NewServeCmd(a))
	a.rootCmd.AddCommand(NewJobsCmd(a))
	a.rootCmd.AddCommand(NewJobCmd(a))
	a.rootCmd.AddCommand(NewAddCmd(a))
	a.rootCmd.AddCommand(NewQueueCmd(a))
	a.rootCmd.AddCommand(NewMergeCmd(a))
	a.rootCmd.AddCommand(NewRejectCmd(a))
	a.rootCmd.AddCommand(NewDiffCmd(a))
	a.rootCmd.AddCommand(NewCancelCmd(a))
	a.rootCmd.AddCommand(NewScanCmd(a))
	a.rootCmd.AddCommand(NewWatchCmd(a))
	a.rootCmd.AddCommand(NewVersionCmd(a))
}

// Root exposes the root command for tests.
func (a *App) Root() *cobra.Command {
	return a.rootCmd
}
