package hub

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"quire/internal/artifact"
)

// Partitions read by the later stages' helpers below.
const (
	PartitionPlanning = "planning"
	PartitionContent  = "content"
	PartitionAssembly = "assembly"
)

// SaveProjectConfig stores the creation parameters. TargetWords and
// CreatedAt are filled in when zero.
func (h *Hub) SaveProjectConfig(ctx context.Context, cfg ProjectConfig) (ProjectConfig, error) {
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.TargetLength == "" {
		cfg.TargetLength = "novel"
	}
	if cfg.Complexity == "" {
		cfg.Complexity = "medium"
	}
	if cfg.TargetWords <= 0 {
		cfg.TargetWords = TargetWordCount(cfg.TargetLength)
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = h.now().UTC()
	}
	_, err := h.put(ctx, SchemaProjectConfig, TypeProjectConfig, cfg)
	return cfg, err
}

// ProjectConfig returns the newest stored creation parameters.
func (h *Hub) ProjectConfig() (ProjectConfig, bool) {
	return decodeLatest[ProjectConfig](h, PartitionHub, TypeProjectConfig, SchemaProjectConfig)
}

// ChapterPlan returns the newest decodable chapter plan.
func (h *Hub) ChapterPlan() (ChapterPlan, bool) {
	return decodeLatest[ChapterPlan](h, PartitionPlanning, TypeChapterPlan, SchemaChapterPlan)
}

// Chapters returns every content unit stored for the project, across runs,
// ordered by index. A later chapter with the same index supersedes an
// earlier one.
func (h *Hub) Chapters() []Chapter {
	return h.ChaptersForRun("", 0)
}

// ChaptersForRun returns the chapters written by runID with an index in
// 1..units, ordered by index. An empty runID or a units value <= 0 drops
// that restriction.
func (h *Hub) ChaptersForRun(runID string, units int) []Chapter {
	keep := func(doc artifact.Document) bool {
		return runID == "" || doc.Attr(artifact.AttrRun) == runID
	}
	byIndex := map[int]Chapter{}
	for _, ch := range decodeWhere[Chapter](h, PartitionContent, TypeChapter, SchemaChapter, keep) {
		if units > 0 && (ch.Index < 1 || ch.Index > units) {
			continue
		}
		byIndex[ch.Index] = ch
	}
	out := make([]Chapter, 0, len(byIndex))
	for _, ch := range byIndex {
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b Chapter) int { return cmp.Compare(a.Index, b.Index) })
	return out
}

// Manuscript returns the newest assembled manuscript.
func (h *Hub) Manuscript() (Manuscript, bool) {
	return decodeLatest[Manuscript](h, PartitionAssembly, TypeManuscript, SchemaManuscript)
}

// TimelineEvent is one stored document seen as a project event.
type TimelineEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"event_type"`
	Agent       string    `json:"agent"`
	Description string    `json:"description"`
}

// Timeline lists every typed document as an event, oldest first.
func (h *Hub) Timeline() []TimelineEvent {
	docs := h.store.Documents()
	events := make([]TimelineEvent, 0, len(docs))
	for _, doc := range docs {
		docType := doc.Type()
		if docType == "" {
			continue
		}
		ts := doc.CreatedAt
		if parsed, err := time.Parse(time.RFC3339Nano, doc.Attr(artifact.AttrTimestamp)); err == nil {
			ts = parsed
		}
		agent := doc.Attr(artifact.AttrAgent)
		if agent == "" {
			agent = "system"
		}
		events = append(events, TimelineEvent{
			Timestamp:   ts,
			Type:        docType,
			Agent:       agent,
			Description: fmt.Sprintf("%s completed %s", agent, docType),
		})
	}
	slices.SortStableFunc(events, func(a, b TimelineEvent) int { return a.Timestamp.Compare(b.Timestamp) })
	return events
}

// TopIdeas returns up to limit ideas by descending score, from the current
// ideation aggregate or, without one, from the raw idea documents.
func (h *Hub) TopIdeas(limit int) []Idea {
	var ideas []Idea
	if agg, ok := decodeLatest[Ideation](h, PartitionHub, CategoryIdeation.AggregateType(), CategoryIdeation.aggregateSchema()); ok {
		ideas = slices.Clone(agg.Ideas)
	} else {
		m := newMerger[Idea]()
		for _, set := range decodeAll[IdeaSet](h, CategoryIdeation.Partition(), TypeIdeas, SchemaIdeas) {
			m.add(set.Ideas...)
		}
		m.add(decodeAll[Idea](h, CategoryIdeation.Partition(), TypeIdea, SchemaIdea)...)
		ideas = m.items
	}
	slices.SortStableFunc(ideas, func(a, b Idea) int { return cmp.Compare(b.Score, a.Score) })
	if limit > 0 && len(ideas) > limit {
		ideas = ideas[:limit]
	}
	return nonNil(ideas)
}
