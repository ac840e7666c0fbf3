package workflow

import (
	"context"
	"fmt"
	"strings"

	"quire/internal/artifact"
	"quire/internal/hub"
)

// SynthesisInput describes the failure a recovery artifact stands in for.
type SynthesisInput struct {
	ProjectID string
	Stage     Stage
	Units     int
	Snapshot  hub.Snapshot
	Err       error
}

// Synthesizer builds a minimal artifact for a failed stage. The engine adds
// the recovery attributes before storing it.
type Synthesizer func(ctx context.Context, in SynthesisInput) (artifact.Entry, error)

// Strategy says how a stage recovers. For a fan-out stage, Synthesize builds
// the single placeholder unit used when every unit failed.
type Strategy struct {
	Recoverable bool
	Synthesize  Synthesizer
}

// Strategies maps stages to their recovery strategy. A stage without an
// entry is terminal.
type Strategies map[Stage]Strategy

// DefaultStrategies: ideation and assembly are terminal, every other stage
// recovers with a minimal artifact.
func DefaultStrategies() Strategies {
	return Strategies{
		StageIdeation: {Recoverable: false},
		StageResearch: {Recoverable: true, Synthesize: synthesizeResearch},
		StageCast:     {Recoverable: true, Synthesize: synthesizeCast},
		StageSetting:  {Recoverable: true, Synthesize: synthesizeSetting},
		StagePlot:     {Recoverable: true, Synthesize: synthesizePlot},
		StagePlanning: {Recoverable: true, Synthesize: synthesizePlan},
		StageContent:  {Recoverable: true, Synthesize: synthesizePlaceholderUnit},
		StageAssembly: {Recoverable: false},
	}
}

func (s Strategies) lookup(stage Stage) (Strategy, bool) {
	strategy, ok := s[stage]
	if !ok || !strategy.Recoverable || strategy.Synthesize == nil {
		return Strategy{}, false
	}
	return strategy, true
}

func storyLabel(snap hub.Snapshot) string {
	if t := strings.TrimSpace(snap.Idea.Title); t != "" {
		return t
	}
	if t := strings.TrimSpace(snap.Config.Title); t != "" {
		return t
	}
	return "the story"
}

func synthesizeResearch(_ context.Context, in SynthesisInput) (artifact.Entry, error) {
	return artifact.NewEntry(StageResearch.Partition(), hub.SchemaResearch, hub.TypeResearch, hub.Research{
		Topics: []hub.Topic{{
			ID:      "fallback_topic",
			Name:    "General background",
			Summary: fmt.Sprintf("Background that lends %s authenticity", storyLabel(in.Snapshot)),
		}},
		Findings:  []hub.Finding{},
		Synthesis: "Research was unavailable; keep factual detail light and consistent.",
	})
}

func synthesizeCast(_ context.Context, in SynthesisInput) (artifact.Entry, error) {
	return artifact.NewEntry(StageCast.Partition(), hub.SchemaCast, hub.TypeCast, hub.Cast{
		Characters: []hub.Character{
			{ID: "fallback_protagonist", Name: "Protagonist", Role: "protagonist", Motivation: "To resolve the central conflict"},
			{ID: "fallback_antagonist", Name: "Antagonist", Role: "antagonist", Motivation: "Goals that oppose the protagonist"},
		},
		Relationships: []hub.Relationship{
			{From: "Protagonist", To: "Antagonist", Kind: "opposition", Description: "Central story conflict"},
		},
	})
}

func synthesizeSetting(_ context.Context, in SynthesisInput) (artifact.Entry, error) {
	return artifact.NewEntry(StageSetting.Partition(), hub.SchemaSetting, hub.TypeSetting, hub.Setting{
		Name:      "Primary setting",
		Summary:   fmt.Sprintf("The world of %s", storyLabel(in.Snapshot)),
		Locations: []hub.Location{{Name: "Central location", Description: "Where most of the story unfolds"}},
		Cultures:  []hub.Culture{},
	})
}

func synthesizePlot(_ context.Context, in SynthesisInput) (artifact.Entry, error) {
	logline := strings.TrimSpace(in.Snapshot.Idea.Premise)
	if logline == "" {
		logline = fmt.Sprintf("The protagonist of %s confronts the central conflict", storyLabel(in.Snapshot))
	}
	return artifact.NewEntry(StagePlot.Partition(), hub.SchemaPlot, hub.TypePlot, hub.Plot{
		Logline: logline,
		Beats: []hub.Beat{
			{Name: "Setup", Summary: "Introduce the protagonist and the world"},
			{Name: "Confrontation", Summary: "The conflict escalates"},
			{Name: "Resolution", Summary: "The conflict is resolved"},
		},
		Threads: []string{},
	})
}

func synthesizePlan(_ context.Context, in SynthesisInput) (artifact.Entry, error) {
	units := max(in.Units, 1)
	plan := hub.ChapterPlan{Units: make([]hub.UnitPlan, units)}
	for i := range plan.Units {
		plan.Units[i] = hub.UnitPlan{Index: i + 1, Title: fmt.Sprintf("Chapter %d", i+1)}
	}
	return artifact.NewEntry(StagePlanning.Partition(), hub.SchemaChapterPlan, hub.TypeChapterPlan, plan)
}

func synthesizePlaceholderUnit(_ context.Context, in SynthesisInput) (artifact.Entry, error) {
	entry, err := artifact.NewEntry(StageContent.Partition(), hub.SchemaChapter, hub.TypeChapter, hub.Chapter{
		Index: 1,
		Title: "Chapter 1",
		Text:  fmt.Sprintf("Content for %s could not be generated.", storyLabel(in.Snapshot)),
	})
	if err != nil {
		return entry, err
	}
	return entry.With(artifact.AttrUnit, "1"), nil
}
