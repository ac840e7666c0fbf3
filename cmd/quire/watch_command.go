package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"quire/internal/hub"
	"quire/internal/projectaccess"
	"quire/internal/workflow"
)

const (
	watchEvents   = 8
	progressWidth = 40
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var refresh time.Duration
	var stay bool

	cmd := &cobra.Command{
		Use:   "watch <project>",
		Short: "Live view of a project's run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if refresh <= 0 {
				return fmt.Errorf("invalid refresh interval %s", refresh)
			}
			return ctx.withAccess(cmd.Context(), func(access projectaccess.Access) error {
				m := newWatchModel(cmd.Context(), access, args[0], refresh)
				m.exitOnFinish = !stay
				p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
				final, err := p.Run()
				if err != nil {
					return err
				}
				if fm, ok := final.(watchModel); ok && fm.loaded {
					for _, line := range projectStatusLines(fm.view, shouldColorize(cmd.OutOrStdout())) {
						fmt.Fprintln(cmd.OutOrStdout(), line)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVarP(&refresh, "refresh", "r", 2*time.Second, "Refresh interval")
	cmd.Flags().BoolVar(&stay, "stay", false, "Keep watching after the run finishes")
	return cmd
}

type watchKeys struct {
	quit    key.Binding
	refresh key.Binding
}

var defaultWatchKeys = watchKeys{
	quit:    key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
}

type watchTickMsg struct{}

type watchSnapshotMsg struct {
	view   workflow.View
	events []hub.TimelineEvent
	err    error
}

type watchModel struct {
	ctx          context.Context
	access       projectaccess.Access
	projectID    string
	refresh      time.Duration
	exitOnFinish bool

	keys    watchKeys
	spinner spinner.Model
	width   int

	loaded bool
	view   workflow.View
	events []hub.TimelineEvent
	err    error
}

var (
	watchTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	watchSubtle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	watchRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	watchComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	watchFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	watchBox      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1)
)

func newWatchModel(ctx context.Context, access projectaccess.Access, projectID string, refresh time.Duration) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = watchRunning
	return watchModel{
		ctx:          ctx,
		access:       access,
		projectID:    projectID,
		refresh:      refresh,
		exitOnFinish: true,
		keys:         defaultWatchKeys,
		spinner:      sp,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch(), watchTick(m.refresh))
}

func watchTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return watchTickMsg{} })
}

func (m watchModel) fetch() tea.Cmd {
	access, ctx, id := m.access, m.ctx, m.projectID
	return func() tea.Msg {
		view, err := access.Status(ctx, id)
		if err != nil {
			return watchSnapshotMsg{err: err}
		}
		events, err := access.Timeline(ctx, id)
		if len(events) > watchEvents {
			events = events[len(events)-watchEvents:]
		}
		return watchSnapshotMsg{view: view, events: events, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.refresh):
			return m, m.fetch()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case watchTickMsg:
		return m, tea.Batch(m.fetch(), watchTick(m.refresh))
	case watchSnapshotMsg:
		m.err = msg.err
		if msg.err == nil || msg.view.ProjectID != "" {
			m.view = msg.view
			m.events = msg.events
			m.loaded = true
		}
		if m.exitOnFinish && m.loaded && finished(m.view) {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// finished reports a view nothing will advance without operator action.
func finished(v workflow.View) bool {
	return v.Status == hub.StatusComplete || v.Status == hub.StatusError || v.Status == hub.StatusNotStarted || v.Stale()
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitle.Render("quire · " + m.projectID))
	b.WriteString("\n\n")

	if !m.loaded {
		if m.err != nil {
			b.WriteString(watchFailed.Render(m.err.Error()))
		} else {
			b.WriteString(m.spinner.View() + " loading")
		}
		b.WriteString("\n")
		return b.String()
	}

	v := m.view
	state := statusStyle(v).Render(v.Status)
	if v.Alive {
		state = m.spinner.View() + " " + state
	} else if v.Stale() {
		state += watchSubtle.Render(" (interrupted)")
	}
	stage := v.StageLabel
	if stage == "" {
		stage = "-"
	}
	summary := fmt.Sprintf("%s\nStage:    %s\nProgress: %s %3d%%\nUnits:    %d written",
		state, stage, progressBar(v.Progress, progressWidth), v.Progress, len(v.CompletedUnits))
	if len(v.Errors) > 0 {
		summary += "\n" + watchFailed.Render("Errors:   "+v.Errors[len(v.Errors)-1])
	}
	b.WriteString(watchBox.Render(summary))
	b.WriteString("\n\n")

	if len(m.events) > 0 {
		b.WriteString(watchSubtle.Render("Recent activity"))
		b.WriteString("\n")
		for _, e := range m.events {
			fmt.Fprintf(&b, "  %s  %-12s %s\n", e.Timestamp.Local().Format("15:04:05"), e.Agent, e.Description)
		}
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(watchFailed.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(watchSubtle.Render(fmt.Sprintf("%s · %s · refresh %s",
		m.keys.quit.Help().Key+" "+m.keys.quit.Help().Desc,
		m.keys.refresh.Help().Key+" "+m.keys.refresh.Help().Desc,
		m.refresh)))
	b.WriteString("\n")
	return b.String()
}

func statusStyle(v workflow.View) lipgloss.Style {
	switch v.Status {
	case hub.StatusComplete:
		return watchComplete
	case hub.StatusError:
		return watchFailed
	case hub.StatusRunning:
		return watchRunning
	default:
		return watchSubtle
	}
}

func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
