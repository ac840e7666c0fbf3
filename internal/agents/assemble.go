package agents

import (
	"context"
	"strings"

	"quire/internal/artifact"
	"quire/internal/hub"
	"quire/internal/logging"
	"quire/internal/services"
	"quire/internal/textutil"
	"quire/internal/workflow"
)

// assemble compiles the written chapters into the manuscript. It needs no
// generation call.
func assemble(ctx context.Context, in workflow.Input) ([]string, error) {
	if in.Hub == nil {
		return nil, services.Wrap(services.ErrConfiguration, string(in.Stage), "assemble", "hub required", nil)
	}
	units := 0
	if plan, ok := in.Hub.ChapterPlan(); ok {
		units = len(plan.Units)
	}
	chapters := in.Hub.ChaptersForRun(in.RunID, units)
	if len(chapters) == 0 {
		return nil, services.Wrap(services.ErrValidation, string(in.Stage), "assemble", "no chapters written", nil)
	}

	title := strings.TrimSpace(in.Snapshot.Idea.Title)
	if title == "" {
		title = strings.TrimSpace(in.Snapshot.Config.Title)
	}
	if title == "" {
		title = "Untitled"
	}
	manuscript := hub.Manuscript{Title: title, Chapters: chapters}
	for _, ch := range chapters {
		manuscript.WordCount += textutil.WordCount(ch.Text)
	}

	entry, err := artifact.NewEntry(in.Stage.Partition(), hub.SchemaManuscript, hub.TypeManuscript, manuscript)
	if err != nil {
		return nil, err
	}
	id, err := in.Store.Put(ctx, entry)
	if err != nil {
		return nil, err
	}
	if in.Logger != nil {
		in.Logger.Info("manuscript assembled",
			logging.Event("manuscript_assembled"),
			logging.Int("chapters", len(chapters)),
			logging.Int("words", manuscript.WordCount),
		)
	}
	return []string{id}, nil
}

// Render formats a manuscript as markdown.
func Render(m hub.Manuscript) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(m.Title)
	b.WriteString("\n")
	for _, ch := range m.Chapters {
		b.WriteString("\n## ")
		if t := strings.TrimSpace(ch.Title); t != "" {
			b.WriteString(t)
		} else {
			b.WriteString("Chapter")
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(ch.Text))
		b.WriteString("\n")
	}
	return b.String()
}
