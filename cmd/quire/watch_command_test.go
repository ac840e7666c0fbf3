package main

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"quire/internal/hub"
	"quire/internal/workflow"
)

func TestWatchModelQuitsWhenRunFinishes(t *testing.T) {
	m := newWatchModel(context.Background(), nil, "gull-point", time.Second)

	live := workflow.View{ProjectID: "gull-point", Status: hub.StatusRunning, Alive: true, Progress: 50, StageLabel: "Content"}
	next, cmd := m.Update(watchSnapshotMsg{view: live, events: []hub.TimelineEvent{{Agent: "writer", Description: "writer completed chapter", Timestamp: time.Now()}}})
	if cmd != nil {
		t.Fatal("a live run should keep the watcher open")
	}
	view := next.(watchModel).View()
	for _, want := range []string{"gull-point", "Content", " 50%", "writer completed chapter"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	done := live
	done.Status, done.Alive, done.Progress = hub.StatusComplete, false, 100
	next, cmd = next.Update(watchSnapshotMsg{view: done})
	if cmd == nil {
		t.Fatal("expected a quit command once the run completed")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
	if !next.(watchModel).loaded {
		t.Fatal("model should keep the final snapshot")
	}
}

func TestWatchModelStayKeepsRunning(t *testing.T) {
	m := newWatchModel(context.Background(), nil, "gull-point", time.Second)
	m.exitOnFinish = false
	_, cmd := m.Update(watchSnapshotMsg{view: workflow.View{Status: hub.StatusError, Errors: []string{"boom"}}})
	if cmd != nil {
		t.Fatal("--stay should not quit on a finished run")
	}
}

func TestWatchModelQuitKey(t *testing.T) {
	m := newWatchModel(context.Background(), nil, "gull-point", time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		filled  int
	}{
		{0, 0},
		{50, 5},
		{100, 10},
		{150, 10},
		{-5, 0},
	}
	for _, tc := range tests {
		bar := progressBar(tc.percent, 10)
		if got := strings.Count(bar, "█"); got != tc.filled {
			t.Fatalf("progressBar(%d) filled %d, want %d", tc.percent, got, tc.filled)
		}
		if strings.Count(bar, "█")+strings.Count(bar, "░") != 10 {
			t.Fatalf("progressBar(%d) has wrong width: %q", tc.percent, bar)
		}
	}
}
