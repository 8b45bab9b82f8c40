package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/RevCBH/kyco/internal/ctlapi"
)

// View implements tea.Model
func (m *Model) View() string {
	if m.Quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.FetchErr != nil {
		b.WriteString(m.Styles.Error.Render("cannot reach orchestrator: " + m.FetchErr.Error()))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderJobs())
	}

	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderHeader() string {
	elapsed := time.Since(m.StartTime).Round(time.Second)
	return m.Styles.Title.Render("kyco jobs") + "  " +
		m.Styles.Timer.Render(elapsed.String())
}

func (m *Model) renderJobs() string {
	if len(m.Jobs) == 0 {
		return m.Styles.Detail.Render("no jobs yet") + "\n"
	}

	var b strings.Builder
	rows := m.Jobs
	if max := m.maxRows(); len(rows) > max {
		rows = rows[len(rows)-max:]
	}
	for _, j := range rows {
		b.WriteString(m.renderJobRow(j))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderJobRow(j ctlapi.JobView) string {
	style := m.Styles.statusStyle(j.Status)
	line := fmt.Sprintf("%s #%-4d %-8s %-10s %-7s %s",
		statusIcon(j.Status), j.ID, j.Status, j.Mode, j.AgentID,
		filepath.Base(j.SourceFile))

	var detail string
	switch {
	case j.Status == "blocked" && j.BlockedBy != 0:
		detail = fmt.Sprintf("waiting on #%d", j.BlockedBy)
	case j.ChainName != "" && j.ChainTotalSteps > 0:
		detail = fmt.Sprintf("chain %s %d/%d", j.ChainName, j.ChainCurrentStep, j.ChainTotalSteps)
	case j.Status == "failed" && j.ErrorMessage != "":
		detail = truncate(j.ErrorMessage, 48)
	case j.FilesChanged > 0:
		detail = fmt.Sprintf("%d files +%d/-%d", j.FilesChanged, j.LinesAdded, j.LinesRemoved)
	}

	if detail != "" {
		return style.Render(line) + "  " + m.Styles.Detail.Render(detail)
	}
	return style.Render(line)
}

func (m *Model) renderStatusLine() string {
	var running, queued, done, failed int
	for _, j := range m.Jobs {
		switch j.Status {
		case "running":
			running++
		case "queued", "blocked":
			queued++
		case "done", "merged":
			done++
		case "failed", "rejected":
			failed++
		}
	}
	return fmt.Sprintf("%s  %s  %s  %s",
		m.Styles.Running.Render(fmt.Sprintf("%d running", running)),
		m.Styles.Queued.Render(fmt.Sprintf("%d waiting", queued)),
		m.Styles.Done.Render(fmt.Sprintf("%d done", done)),
		m.Styles.Failed.Render(fmt.Sprintf("%d failed", failed)))
}

func (m *Model) renderFooter() string {
	return m.Styles.Footer.Render(m.Styles.FooterKey.Render("q") + " quit")
}

// maxRows bounds the job table to the available terminal height,
// keeping room for header, status line and footer.
func (m *Model) maxRows() int {
	if m.Height <= 0 {
		return 50
	}
	rows := m.Height - 6
	if rows < 3 {
		rows = 3
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
