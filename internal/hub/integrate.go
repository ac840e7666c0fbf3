package hub

import (
	"context"

	"quire/internal/logging"
)

// Integrate composes the current aggregate of every category into a
// Snapshot and stores it. An aggregate that is missing, undecodable or older
// than its partition's newest document is recomputed; a category that cannot
// be produced contributes its empty value.
func (h *Hub) Integrate(ctx context.Context) (Snapshot, error) {
	ideation := current(h, CategoryIdeation, func() (Ideation, error) { return h.AggregateIdeation(ctx, "") })
	research := current(h, CategoryResearch, func() (Research, error) { return h.AggregateResearch(ctx) })
	cast := current(h, CategoryCast, func() (Cast, error) { return h.AggregateCast(ctx) })
	setting := current(h, CategorySetting, func() (Setting, error) { return h.AggregateSetting(ctx) })
	plot := current(h, CategoryPlot, func() (Plot, error) { return h.AggregatePlot(ctx) })

	cfg, _ := h.ProjectConfig()
	snap := Snapshot{
		Config:        cfg,
		Idea:          ideation.Selected,
		Characters:    nonNil(cast.Characters),
		Relationships: nonNil(cast.Relationships),
		Setting:       setting,
		Research:      research,
		Plot:          plot,
	}
	snap.Setting.Locations = nonNil(snap.Setting.Locations)
	snap.Setting.Cultures = nonNil(snap.Setting.Cultures)
	snap.Research.Topics = nonNil(snap.Research.Topics)
	snap.Research.Findings = nonNil(snap.Research.Findings)
	snap.Plot.Beats = nonNil(snap.Plot.Beats)
	snap.Plot.Threads = nonNil(snap.Plot.Threads)

	if _, err := h.put(ctx, SchemaSnapshot, TypeIntegrated, snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// Snapshot returns the most recently stored integrated context, if any.
func (h *Hub) Snapshot() (Snapshot, bool) {
	return decodeLatest[Snapshot](h, PartitionHub, TypeIntegrated, SchemaSnapshot)
}

func current[T any](h *Hub, c Category, produce func() (T, error)) T {
	if doc, ok := h.Latest(c); ok && !h.partitionNewerThan(c.Partition(), doc.Seq) {
		if v, ok := decodeLatest[T](h, PartitionHub, c.AggregateType(), c.aggregateSchema()); ok {
			return v
		}
	}
	v, err := produce()
	if err != nil {
		h.logger.Debug("using unstored aggregate",
			logging.String("category", string(c)),
			logging.Error(err),
		)
	}
	return v
}

func (h *Hub) partitionNewerThan(partition string, seq int64) bool {
	docs := h.store.Partition(partition)
	return len(docs) > 0 && docs[len(docs)-1].Seq > seq
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
