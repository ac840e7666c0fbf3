package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"quire/internal/artifact"
	"quire/internal/hub"
	"quire/internal/logging"
	"quire/internal/services"
	"quire/internal/services/llm"
	"quire/internal/textutil"
	"quire/internal/workflow"
)

// ideaCount is how many candidates ideation asks for.
const ideaCount = 3

// Generator is the slice of the generation client the agents need.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New returns one agent per stage: generating agents for every stage the
// pack has instructions for and the local assembler for assembly.
func New(gen Generator, pack *Pack) workflow.Agents {
	agents := workflow.Agents{}
	for _, stage := range workflow.Order() {
		if stage == workflow.StageAssembly {
			agents[stage] = workflow.AgentFunc(assemble)
			continue
		}
		inst, ok := pack.Instruction(stage)
		if !ok {
			continue
		}
		agents[stage] = &stageAgent{stage: stage, gen: gen, inst: inst, pack: pack}
	}
	return agents
}

type stageAgent struct {
	stage workflow.Stage
	gen   Generator
	inst  *Instruction
	pack  *Pack
}

// Run renders the stage prompt from the integrated snapshot, calls the
// generation service and stores the decoded result.
func (a *stageAgent) Run(ctx context.Context, in workflow.Input) ([]string, error) {
	logger := in.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	data := a.promptData(ctx, in, logger)
	prompt, err := a.inst.render(data)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, string(a.stage), "render prompt", "template failed", err)
	}

	var raw string
	if a.inst.Mode == ModeText {
		raw, err = a.gen.Complete(ctx, a.inst.System, prompt)
	} else {
		raw, err = a.gen.CompleteJSON(ctx, a.inst.System, prompt)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("generation received",
		logging.Event("generation_received"),
		logging.Int("response_chars", len(raw)),
	)

	entry, err := a.decode(raw, data)
	if err != nil {
		return nil, err
	}
	if in.RunID != "" {
		entry = entry.With(artifact.AttrRun, in.RunID)
	}
	id, err := in.Store.Put(ctx, entry)
	if err != nil {
		return nil, err
	}
	ids := []string{id}

	if a.stage == workflow.StageIdeation && in.Hub != nil {
		// Record the selection now so status readers see the chosen idea.
		if _, err := in.Hub.AggregateIdeation(ctx, ""); err != nil {
			logging.WarnWithContext(logger, "idea selection not stored", "aggregate_failed", logging.Error(err))
		}
	}
	return ids, nil
}

func (a *stageAgent) promptData(ctx context.Context, in workflow.Input, logger *slog.Logger) promptData {
	data := promptData{
		Config:       in.Snapshot.Config,
		Snapshot:     in.Snapshot,
		IdeaCount:    ideaCount,
		Unit:         in.Unit,
		Units:        in.Units,
		WordsPerUnit: a.pack.Units.WordsPerUnit,
	}
	if data.Config.TargetWords == 0 {
		data.Config.TargetWords = hub.TargetWordCount(data.Config.TargetLength)
	}
	if data.Config.TargetLength == "" {
		data.Config.TargetLength = "novel"
	}
	switch a.stage {
	case workflow.StagePlanning:
		data.Units = a.pack.PlannedUnits(data.Config.TargetWords)
	case workflow.StageContent:
		data.UnitPlan = a.unitPlan(in)
		data.Previous = previousEnding(in.Hub, in.RunID, in.Unit, a.pack.Related.SnippetRunes)
		data.Related = a.related(ctx, in, data.UnitPlan, logger)
	}
	return data
}

func (a *stageAgent) unitPlan(in workflow.Input) hub.UnitPlan {
	if in.Hub != nil {
		if plan, ok := in.Hub.ChapterPlan(); ok {
			for _, u := range plan.Units {
				if u.Index == in.Unit {
					return u
				}
			}
		}
	}
	return hub.UnitPlan{Index: in.Unit, Title: fmt.Sprintf("Chapter %d", in.Unit)}
}

// previousEnding returns the tail of the preceding chapter, if this run
// wrote it.
func previousEnding(h *hub.Hub, runID string, unit, runes int) string {
	if h == nil || unit <= 1 {
		return ""
	}
	for _, ch := range h.ChaptersForRun(runID, 0) {
		if ch.Index != unit-1 {
			continue
		}
		text := []rune(strings.TrimSpace(ch.Text))
		if len(text) > runes {
			text = text[len(text)-runes:]
		}
		return string(text)
	}
	return ""
}

// related searches the store for established details relevant to the unit.
// A failed search only costs context, so it is logged and skipped.
func (a *stageAgent) related(ctx context.Context, in workflow.Input, plan hub.UnitPlan, logger *slog.Logger) []string {
	if a.pack.Related.TopK <= 0 || in.Store == nil {
		return nil
	}
	query := strings.TrimSpace(plan.Title + " " + plan.Summary)
	if query == "" {
		return nil
	}
	opts := []artifact.SearchOption{artifact.WithTopK(a.pack.Related.TopK)}
	if a.pack.Related.MinSimilarity > 0 {
		opts = append(opts, artifact.WithMinSimilarity(a.pack.Related.MinSimilarity))
	}
	matches, err := in.Store.Search(ctx, query, opts...)
	if err != nil {
		logging.WarnWithContext(logger, "related context search failed", "related_search_failed", logging.Error(err))
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		switch m.Document.Type() {
		case hub.TypeProjectStatus, hub.TypeIntegrated:
			continue
		}
		out = append(out, textutil.Truncate(m.Document.Text, a.pack.Related.SnippetRunes))
	}
	return out
}

func (a *stageAgent) decode(raw string, data promptData) (artifact.Entry, error) {
	partition := a.stage.Partition()
	invalid := func(msg string, err error) (artifact.Entry, error) {
		return artifact.Entry{}, services.Wrap(services.ErrValidation, string(a.stage), "decode response", msg, err)
	}

	switch a.stage {
	case workflow.StageIdeation:
		var set hub.IdeaSet
		if err := llm.DecodeLLMJSON(raw, &set); err != nil {
			return invalid("ideas not decodable", err)
		}
		if len(set.Ideas) == 0 {
			return invalid("no ideas returned", nil)
		}
		for i := range set.Ideas {
			if strings.TrimSpace(set.Ideas[i].ID) == "" {
				set.Ideas[i].ID = "idea_" + strconv.Itoa(i+1)
			}
		}
		return artifact.NewEntry(partition, hub.SchemaIdeas, hub.TypeIdeas, set)

	case workflow.StageResearch:
		var research hub.Research
		if err := llm.DecodeLLMJSON(raw, &research); err != nil {
			return invalid("research not decodable", err)
		}
		if len(research.Topics) == 0 && strings.TrimSpace(research.Synthesis) == "" {
			return invalid("empty research", nil)
		}
		return artifact.NewEntry(partition, hub.SchemaResearch, hub.TypeResearch, research)

	case workflow.StageCast:
		var cast hub.Cast
		if err := llm.DecodeLLMJSON(raw, &cast); err != nil {
			return invalid("cast not decodable", err)
		}
		if len(cast.Characters) == 0 {
			return invalid("no characters returned", nil)
		}
		return artifact.NewEntry(partition, hub.SchemaCast, hub.TypeCast, cast)

	case workflow.StageSetting:
		var setting hub.Setting
		if err := llm.DecodeLLMJSON(raw, &setting); err != nil {
			return invalid("setting not decodable", err)
		}
		if strings.TrimSpace(setting.Name) == "" && len(setting.Locations) == 0 {
			return invalid("empty setting", nil)
		}
		return artifact.NewEntry(partition, hub.SchemaSetting, hub.TypeSetting, setting)

	case workflow.StagePlot:
		var plot hub.Plot
		if err := llm.DecodeLLMJSON(raw, &plot); err != nil {
			return invalid("plot not decodable", err)
		}
		if len(plot.Beats) == 0 {
			return invalid("no plot beats returned", nil)
		}
		return artifact.NewEntry(partition, hub.SchemaPlot, hub.TypePlot, plot)

	case workflow.StagePlanning:
		var plan hub.ChapterPlan
		if err := llm.DecodeLLMJSON(raw, &plan); err != nil {
			return invalid("chapter plan not decodable", err)
		}
		if len(plan.Units) == 0 {
			return invalid("no chapters planned", nil)
		}
		for i := range plan.Units {
			plan.Units[i].Index = i + 1
			if strings.TrimSpace(plan.Units[i].Title) == "" {
				plan.Units[i].Title = fmt.Sprintf("Chapter %d", i+1)
			}
		}
		return artifact.NewEntry(partition, hub.SchemaChapterPlan, hub.TypeChapterPlan, plan)

	case workflow.StageContent:
		text := strings.TrimSpace(llm.StripCodeFence(raw))
		if textutil.WordCount(text) == 0 {
			return invalid("empty chapter text", nil)
		}
		entry, err := artifact.NewEntry(partition, hub.SchemaChapter, hub.TypeChapter, hub.Chapter{
			Index: data.Unit,
			Title: data.UnitPlan.Title,
			Text:  text,
		})
		if err != nil {
			return entry, err
		}
		return entry.With(artifact.AttrUnit, strconv.Itoa(data.Unit)), nil
	}
	return artifact.Entry{}, services.Wrap(services.ErrConfiguration, string(a.stage), "decode response", "stage has no decoder", nil)
}
