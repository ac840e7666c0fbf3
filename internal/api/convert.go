package api

import (
	"maps"

	"quire/internal/artifact"
	"quire/internal/workflow"
)

// FromDocument converts a stored document. withText controls whether the
// payload travels along.
func FromDocument(doc artifact.Document, withText bool) Artifact {
	out := Artifact{
		ID:         doc.ID,
		Partition:  doc.Partition,
		Schema:     doc.Schema,
		Type:       doc.Type(),
		Attributes: maps.Clone(doc.Attributes),
		CreatedAt:  FormatTime(doc.CreatedAt),
		Seq:        doc.Seq,
		Size:       len(doc.Text),
	}
	if out.Attributes == nil {
		out.Attributes = map[string]string{}
	}
	if withText {
		out.Text = doc.Text
	}
	return out
}

// FromDocuments converts a listing.
func FromDocuments(docs []artifact.Document, withText bool) []Artifact {
	out := make([]Artifact, 0, len(docs))
	for _, doc := range docs {
		out = append(out, FromDocument(doc, withText))
	}
	return out
}

// FromMatches converts search results, keeping their scores.
func FromMatches(matches []artifact.Match, withText bool) []Artifact {
	out := make([]Artifact, 0, len(matches))
	for _, m := range matches {
		a := FromDocument(m.Document, withText)
		a.Score = m.Score
		out = append(out, a)
	}
	return out
}

// FromRun summarizes a registered run.
func FromRun(run *workflow.Run) RunInfo {
	rec := run.Record()
	return RunInfo{
		ProjectID: run.Project(),
		RunID:     run.ID(),
		Alive:     run.Alive(),
		Status:    rec.Status,
		Progress:  rec.Progress,
		Stage:     rec.CurrentStage,
	}
}
