package workflow

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage names one pipeline step. A stage writes to the partition of the same
// name.
type Stage string

const (
	StageIdeation Stage = "ideation"
	StageResearch Stage = "research"
	StageCast     Stage = "cast"
	StageSetting  Stage = "setting"
	StagePlot     Stage = "plot"
	StagePlanning Stage = "planning"
	StageContent  Stage = "content"
	StageAssembly Stage = "assembly"
	// StageComplete is the terminal pseudo-stage reported once a run finishes.
	StageComplete Stage = "complete"
)

var stageOrder = []Stage{
	StageIdeation,
	StageResearch,
	StageCast,
	StageSetting,
	StagePlot,
	StagePlanning,
	StageContent,
	StageAssembly,
}

// progress reached when a fixed stage completes.
var stageProgress = map[Stage]int{
	StageIdeation: 10,
	StageResearch: 20,
	StageCast:     30,
	StageSetting:  40,
	StagePlot:     50,
	StagePlanning: 60,
	StageAssembly: 100,
}

// Order returns the executable stages in dependency order.
func Order() []Stage {
	return append([]Stage(nil), stageOrder...)
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range stageOrder {
		if stage == known {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Partition is the store partition the stage writes.
func (s Stage) Partition() string { return string(s) }

// FanOut reports whether the stage repeats once per unit.
func (s Stage) FanOut() bool { return s == StageContent }

// String implements fmt.Stringer.
func (s Stage) String() string { return string(s) }

func (s Stage) errorLabel() string { return "error_" + string(s) }

var titleCaser = cases.Title(language.English)

// StageLabel renders a stage or current_stage value for people:
// "error_cast" becomes "Error Cast".
func StageLabel(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if name == "" {
		return ""
	}
	return titleCaser.String(name)
}
