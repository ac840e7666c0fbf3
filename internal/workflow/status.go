package workflow

import (
	"slices"
	"time"

	"quire/internal/hub"
)

// View is the externally reported status of a project.
type View struct {
	ProjectID       string      `json:"project_id"`
	Status          string      `json:"status"`
	Progress        int         `json:"progress"`
	CurrentStage    string      `json:"current_stage"`
	StageLabel      string      `json:"stage_label"`
	CompletedStages []string    `json:"completed_stages"`
	CompletedUnits  []int       `json:"completed_units"`
	Errors          []string    `json:"errors"`
	Stages          []StageNode `json:"stages"`
	RunID           string      `json:"run_id,omitempty"`
	Alive           bool        `json:"alive"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NewView renders rec. alive says whether a goroutine is executing it.
func NewView(rec hub.StatusRecord, alive bool) View {
	rec = rec.Clone()
	if rec.CompletedStages == nil {
		rec.CompletedStages = []string{}
	}
	if rec.CompletedUnits == nil {
		rec.CompletedUnits = []int{}
	}
	if rec.Errors == nil {
		rec.Errors = []string{}
	}
	return View{
		ProjectID:       rec.ProjectID,
		Status:          rec.Status,
		Progress:        rec.Progress,
		CurrentStage:    rec.CurrentStage,
		StageLabel:      StageLabel(rec.CurrentStage),
		CompletedStages: rec.CompletedStages,
		CompletedUnits:  rec.CompletedUnits,
		Errors:          rec.Errors,
		Stages:          stageNodes(rec),
		RunID:           rec.RunID,
		Alive:           alive,
		StartedAt:       rec.StartedAt,
		EndedAt:         rec.EndedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

// Stage states reported in View.Stages.
const (
	StatePending   = "pending"
	StateCurrent   = "current"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// StageNode is one pipeline step as seen from a status record.
type StageNode struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	State  string `json:"state"`
	FanOut bool   `json:"fan_out,omitempty"`
}

func stageNodes(rec hub.StatusRecord) []StageNode {
	nodes := make([]StageNode, 0, len(stageOrder))
	for _, stage := range stageOrder {
		state := StatePending
		switch rec.CurrentStage {
		case string(stage):
			state = StateCurrent
		case stage.errorLabel():
			state = StateFailed
		}
		if slices.Contains(rec.CompletedStages, string(stage)) {
			state = StateCompleted
		}
		nodes = append(nodes, StageNode{
			Name:   string(stage),
			Label:  StageLabel(string(stage)),
			State:  state,
			FanOut: stage.FanOut(),
		})
	}
	return nodes
}

// Status reconstructs a project's state from its status record alone.
func Status(h *hub.Hub) View {
	return NewView(h.Status(), false)
}

// Stale reports a record that claims to be running with no goroutine behind
// it; Reset resumes such projects.
func (v View) Stale() bool {
	return v.Status == hub.StatusRunning && !v.Alive
}
