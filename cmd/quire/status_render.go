package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"quire/internal/hub"
	"quire/internal/workflow"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// statusRenderer always emits basic ANSI colors; callers decide via
// shouldColorize whether the destination is a terminal.
var statusRenderer = func() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(os.Stdout)
	r.SetColorProfile(termenv.ANSI)
	return r
}()

var statusStyles = map[statusKind]lipgloss.Style{
	statusInfo:  statusRenderer.NewStyle().Foreground(lipgloss.Color("4")),
	statusOK:    statusRenderer.NewStyle().Foreground(lipgloss.Color("2")),
	statusWarn:  statusRenderer.NewStyle().Foreground(lipgloss.Color("3")),
	statusError: statusRenderer.NewStyle().Foreground(lipgloss.Color("1")),
}

var statusLabels = map[statusKind]string{
	statusInfo:  "INFO",
	statusOK:    "OK",
	statusWarn:  "WARN",
	statusError: "ERROR",
}

// renderStatusLine formats "  Label:  [KIND] message" with the label padded
// to a fixed column.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	badge := "[" + statusLabels[kind] + "]"
	if message != "" {
		badge += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", badge)
	if !colorize {
		return line
	}
	return statusStyles[kind].Render(line)
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	lines := []string{heading, strings.Repeat("-", len(heading))}
	if colorize {
		for i := range lines {
			lines[i] = statusStyles[statusInfo].Render(lines[i])
		}
	}
	return lines
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// projectStatusKind maps a project's status onto a display severity.
func projectStatusKind(view workflow.View) statusKind {
	switch {
	case view.Status == hub.StatusComplete:
		return statusOK
	case view.Status == hub.StatusError:
		return statusError
	case view.Stale():
		return statusWarn
	default:
		return statusInfo
	}
}

func projectStatusLines(view workflow.View, colorize bool) []string {
	state := view.Status
	if view.Stale() {
		state += " (interrupted; run `quire reset " + view.ProjectID + "`)"
	}
	lines := []string{
		renderStatusLine("Status", projectStatusKind(view), state, colorize),
		renderStatusLine("Stage", statusInfo, view.StageLabel, colorize),
		renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d%%", view.Progress), colorize),
	}
	if len(view.CompletedStages) > 0 {
		lines = append(lines, renderStatusLine("Completed stages", statusInfo, strings.Join(view.CompletedStages, ", "), colorize))
	}
	if len(view.CompletedUnits) > 0 {
		lines = append(lines, renderStatusLine("Completed units", statusInfo, fmt.Sprintf("%d", len(view.CompletedUnits)), colorize))
	}
	if view.RunID != "" {
		lines = append(lines, renderStatusLine("Run", statusInfo, view.RunID, colorize))
	}
	for _, e := range view.Errors {
		lines = append(lines, renderStatusLine("Error", statusError, e, colorize))
	}
	if len(view.Stages) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Pipeline", colorize)...)
		lines = append(lines, stageLines(view.Stages, colorize)...)
	}
	return lines
}

var stageStateKinds = map[string]statusKind{
	workflow.StatePending:   statusInfo,
	workflow.StateCurrent:   statusWarn,
	workflow.StateCompleted: statusOK,
	workflow.StateFailed:    statusError,
}

func stageLines(stages []workflow.StageNode, colorize bool) []string {
	lines := make([]string, 0, len(stages))
	for _, node := range stages {
		label := node.Label
		if node.FanOut {
			label += " (per unit)"
		}
		lines = append(lines, renderStatusLine(label, stageStateKinds[node.State], node.State, colorize))
	}
	return lines
}
