package hub

import (
	"context"
	"fmt"
	"strings"

	"quire/internal/artifact"
	"quire/internal/logging"
)

// Category names an aggregate. Each category is read from the partition of
// the same name.
type Category string

const (
	CategoryIdeation Category = "ideation"
	CategoryResearch Category = "research"
	CategoryCast     Category = "cast"
	CategorySetting  Category = "setting"
	CategoryPlot     Category = "plot"
)

// Categories lists every category in integration order.
func Categories() []Category {
	return []Category{CategoryIdeation, CategoryResearch, CategoryCast, CategorySetting, CategoryPlot}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Partition is the store partition the category reads.
func (c Category) Partition() string { return string(c) }

// AggregateType is the type attribute of stored aggregates.
func (c Category) AggregateType() string { return "aggregated_" + string(c) }

func (c Category) aggregateSchema() string { return "quire.aggregated_" + string(c) + "/v1" }

// Aggregate merges one category, stores the result in the hub partition and
// returns it. The returned value is usable even when storing it failed.
func (h *Hub) Aggregate(ctx context.Context, c Category) (any, error) {
	switch c {
	case CategoryIdeation:
		return h.AggregateIdeation(ctx, "")
	case CategoryResearch:
		return h.AggregateResearch(ctx)
	case CategoryCast:
		return h.AggregateCast(ctx)
	case CategorySetting:
		return h.AggregateSetting(ctx)
	case CategoryPlot:
		return h.AggregatePlot(ctx)
	default:
		return nil, fmt.Errorf("unknown category %q", c)
	}
}

func (h *Hub) storeAggregate(ctx context.Context, c Category, v any) error {
	if _, err := h.put(ctx, c.aggregateSchema(), c.AggregateType(), v); err != nil {
		h.logger.Warn("aggregate not stored",
			logging.Event("aggregate_store_failed"),
			logging.String("category", string(c)),
			logging.Error(err),
		)
		return err
	}
	return nil
}

// AggregateIdeation merges idea sets and single ideas. The selected idea is
// selectedID when present, otherwise the highest score (first wins ties).
func (h *Hub) AggregateIdeation(ctx context.Context, selectedID string) (Ideation, error) {
	part := CategoryIdeation.Partition()
	ideas := newMerger[Idea]()
	for _, set := range decodeAll[IdeaSet](h, part, TypeIdeas, SchemaIdeas) {
		ideas.add(set.Ideas...)
	}
	ideas.add(decodeAll[Idea](h, part, TypeIdea, SchemaIdea)...)

	result := Ideation{Ideas: ideas.items}
	result.Selected = selectIdea(result.Ideas, selectedID)
	if len(result.Ideas) == 0 {
		h.logger.Warn("no ideas found; ideation aggregate is empty",
			logging.Event("aggregate_empty"),
			logging.String("category", string(CategoryIdeation)),
		)
	}
	return result, h.storeAggregate(ctx, CategoryIdeation, result)
}

func selectIdea(ideas []Idea, selectedID string) Idea {
	if selectedID != "" {
		for _, idea := range ideas {
			if idea.ID == selectedID {
				return idea
			}
		}
	}
	var best Idea
	for i, idea := range ideas {
		if i == 0 || idea.Score > best.Score {
			best = idea
		}
	}
	return best
}

// AggregateCast merges cast documents with standalone character and
// relationship documents.
func (h *Hub) AggregateCast(ctx context.Context) (Cast, error) {
	part := CategoryCast.Partition()
	characters := newMerger[Character]()
	relationships := newMerger[Relationship]()
	for _, cast := range decodeAll[Cast](h, part, TypeCast, SchemaCast) {
		characters.add(cast.Characters...)
		relationships.add(cast.Relationships...)
	}
	characters.add(decodeAll[Character](h, part, TypeCharacter, SchemaCharacter)...)
	for _, set := range decodeAll[RelationshipSet](h, part, TypeRelationships, SchemaRelationships) {
		relationships.add(set.Relationships...)
	}
	result := Cast{Characters: characters.items, Relationships: relationships.items}
	return result, h.storeAggregate(ctx, CategoryCast, result)
}

// AggregateSetting merges setting documents and absorbs standalone locations
// and cultures not already present by name.
func (h *Hub) AggregateSetting(ctx context.Context) (Setting, error) {
	part := CategorySetting.Partition()
	locations := newMerger[Location]()
	cultures := newMerger[Culture]()
	var result Setting
	for _, s := range decodeAll[Setting](h, part, TypeSetting, SchemaSetting) {
		result.Name = firstNonEmpty(s.Name, result.Name)
		result.Summary = firstNonEmpty(s.Summary, result.Summary)
		locations.add(s.Locations...)
		cultures.add(s.Cultures...)
	}
	locations.addMissing(decodeAll[Location](h, part, TypeLocation, SchemaLocation)...)
	cultures.addMissing(decodeAll[Culture](h, part, TypeCulture, SchemaCulture)...)
	result.Locations = locations.items
	result.Cultures = cultures.items
	return result, h.storeAggregate(ctx, CategorySetting, result)
}

// AggregateResearch merges research documents and absorbs standalone topics.
func (h *Hub) AggregateResearch(ctx context.Context) (Research, error) {
	part := CategoryResearch.Partition()
	topics := newMerger[Topic]()
	findings := newMerger[Finding]()
	var result Research
	for _, r := range decodeAll[Research](h, part, TypeResearch, SchemaResearch) {
		topics.add(r.Topics...)
		findings.add(r.Findings...)
		result.Synthesis = firstNonEmpty(r.Synthesis, result.Synthesis)
	}
	topics.addMissing(decodeAll[Topic](h, part, TypeTopic, SchemaTopic)...)
	result.Topics = topics.items
	result.Findings = findings.items
	return result, h.storeAggregate(ctx, CategoryResearch, result)
}

// AggregatePlot merges plot documents; beats are de-duplicated by name.
func (h *Hub) AggregatePlot(ctx context.Context) (Plot, error) {
	beats := newMerger[Beat]()
	result := Plot{Threads: []string{}}
	seen := map[string]bool{}
	for _, p := range decodeAll[Plot](h, CategoryPlot.Partition(), TypePlot, SchemaPlot) {
		result.Logline = firstNonEmpty(p.Logline, result.Logline)
		beats.add(p.Beats...)
		for _, thread := range p.Threads {
			if k := normKey(thread); k != "" && !seen[k] {
				seen[k] = true
				result.Threads = append(result.Threads, thread)
			}
		}
	}
	result.Beats = beats.items
	return result, h.storeAggregate(ctx, CategoryPlot, result)
}

// Latest returns the newest stored aggregate for c without recomputing it.
func (h *Hub) Latest(c Category) (artifact.Document, bool) {
	return h.store.Latest(artifact.AttrType, c.AggregateType(), PartitionHub)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
