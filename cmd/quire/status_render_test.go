package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"quire/internal/hub"
	"quire/internal/workflow"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("quire", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "quire:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("quire", statusOK, "Running", true)
	if !strings.HasPrefix(got, "\x1b[32m") {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, "\x1b[0m") || !strings.Contains(got, "[OK] Running") {
		t.Fatalf("expected styled status line, got %q", got)
	}
}

func TestProjectStatusKind(t *testing.T) {
	tests := []struct {
		name string
		view workflow.View
		want statusKind
	}{
		{"complete", workflow.View{Status: hub.StatusComplete}, statusOK},
		{"error", workflow.View{Status: hub.StatusError}, statusError},
		{"live", workflow.View{Status: hub.StatusRunning, Alive: true}, statusInfo},
		{"stale", workflow.View{Status: hub.StatusRunning}, statusWarn},
		{"not started", workflow.View{Status: hub.StatusNotStarted}, statusInfo},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := projectStatusKind(tc.view); got != tc.want {
				t.Fatalf("projectStatusKind = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProjectStatusLines(t *testing.T) {
	view := workflow.View{
		ProjectID:       "gull-point",
		Status:          hub.StatusRunning,
		Progress:        42,
		StageLabel:      "Content",
		CompletedStages: []string{"ideation", "research"},
		CompletedUnits:  []int{1, 2},
		Errors:          []string{"unit 3: timeout"},
	}
	joined := strings.Join(projectStatusLines(view, false), "\n")
	for _, want := range []string{
		"interrupted; run `quire reset gull-point`",
		"[INFO] 42%",
		"ideation, research",
		"[ERROR] unit 3: timeout",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("status lines missing %q:\n%s", want, joined)
		}
	}
}

func TestProjectStatusLinesShowPipeline(t *testing.T) {
	view := workflow.NewView(hub.StatusRecord{
		ProjectID:       "gull-point",
		Status:          hub.StatusError,
		CurrentStage:    "error_setting",
		CompletedStages: []string{"ideation", "research", "cast"},
	}, false)
	lines := projectStatusLines(view, false)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{
		"== Pipeline ==",
		"Cast:",
		"[OK] completed",
		"[ERROR] failed",
		"Content (per unit):",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("status lines missing %q:\n%s", want, joined)
		}
	}
	if got := strings.Count(joined, "[INFO] pending"); got != 4 {
		t.Fatalf("pending stages = %d, want 4:\n%s", got, joined)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]tableColumn{col("ID"), numCol("Words")}, [][]string{{"a", "12"}, {"b"}})
	if !strings.Contains(out, "WORDS") || !strings.Contains(out, "12") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}

func TestRenderTableWrapsBoundedColumns(t *testing.T) {
	long := "the keeper climbs the stairs every night to light the lamp"
	out := renderTable([]tableColumn{col("ID"), wrapCol("Description", 20)}, [][]string{{"a", long}})
	if strings.Contains(out, long) {
		t.Fatalf("expected description to wrap:\n%s", out)
	}
	if !strings.Contains(out, "the keeper climbs") {
		t.Fatalf("expected wrapped text to remain:\n%s", out)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestWriteJSONKeepsProseUnescaped(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	if err := writeJSON(cmd, map[string]string{"text": "Mara & the <lamp>"}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"Mara & the <lamp>"`) {
		t.Fatalf("expected unescaped prose, got %s", buf.String())
	}
}
