package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RevCBH/kyco/internal/comment"
)

// scanSkipDirs are directory names never descended into while scanning
// for markers.
var scanSkipDirs = map[string]bool{
	".git":         true,
	".kyco":        true,
	"node_modules": true,
	"target":       true,
	"vendor":       true,
}

// NewScanCmd creates the 'scan' command: find comment markers in source
// files and create a job for each.
// Flags: --prefix, --dry-run, --no-queue
func NewScanCmd(a *App) *cobra.Command {
	var prefix string
	var dryRun bool
	var noQueue bool

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan source files for job markers and create jobs",
		Long: `Walk a directory tree looking for comment markers of the form

    {prefix}{agent:}?{mode}( {description})?

(e.g. "@@docs document this function" or "@@codex:fix") and create a
job for each marker that doesn't already carry a [status#id] tag.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return err
			}

			tags, err := scanTree(root, comment.WithPrefix(prefix))
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No markers found")
				return nil
			}

			if dryRun {
				for _, tag := range tags {
					fmt.Fprintf(cmd.OutOrStdout(), "%s:%d  %s/%s  %s\n",
						tag.Path, tag.Line, tag.Agent, tag.Mode, tag.Description)
				}
				return nil
			}

			c := NewClient(a.addr, tokenFromEnv())
			queue := !noQueue
			for _, tag := range tags {
				line := tag.Line
				req := CreateJobsRequest{
					FilePath:     tag.Path,
					LineStart:    &line,
					Mode:         tag.Mode,
					Agent:        tag.Agent,
					SelectedText: tag.Description,
					Prompt:       tag.Description,
					Queue:        &queue,
				}
				jobIDs, _, err := c.CreateJobs(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("%s:%d: %w", tag.Path, tag.Line, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%d -> job #%d (%s/%s)\n",
					tag.Path, tag.Line, jobIDs[0], tag.Agent, tag.Mode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "@@", "Marker prefix to scan for")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List markers without creating jobs")
	cmd.Flags().BoolVar(&noQueue, "no-queue", false, "Create jobs without queueing them")

	return cmd
}

// scanTree walks root and parses every regular file for markers,
// skipping binary-looking files and well-known dependency directories.
// Markers already carrying a [status#id] tag have a job and are skipped.
func scanTree(root string, parser *comment.Parser) ([]comment.Tag, error) {
	var tags []comment.Tag

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if scanSkipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if isBinary(data) {
			return nil
		}

		for _, tag := range parser.ParseFile(path, string(data)) {
			if tag.StatusMarker != nil {
				continue
			}
			tags = append(tags, tag)
		}
		return nil
	})
	return tags, err
}

func isBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	return strings.ContainsRune(string(data[:n]), 0)
}
