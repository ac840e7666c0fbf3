package hub_test

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"quire/internal/artifact"
	"quire/internal/hub"
	"quire/internal/testsupport"
)

func newHub(t *testing.T) (*hub.Hub, *artifact.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, "novel-1")
	return hub.New(store, nil), store
}

func put(t *testing.T, store *artifact.Store, partition, schema, docType string, payload any) string {
	t.Helper()
	entry, err := artifact.NewEntry(partition, schema, docType, payload)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	return testsupport.MustPut(t, store, entry)
}

func TestStatusDefaultsAndLatestWins(t *testing.T) {
	h, _ := newHub(t)
	ctx := context.Background()

	got := h.Status()
	if got.Status != hub.StatusNotStarted || got.Progress != 0 || got.CurrentStage != "" || len(got.CompletedStages) != 0 {
		t.Fatalf("unexpected default status %+v", got)
	}

	if _, err := h.UpdateStatus(ctx, hub.StatusRecord{Status: hub.StatusRunning, Progress: 10, CurrentStage: "ideation"}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	rec, err := h.UpdateStatus(ctx, hub.StatusRecord{
		Status:          hub.StatusRunning,
		Progress:        140,
		CurrentStage:    "research",
		CompletedStages: []string{"ideation", "ideation", "research"},
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if rec.Progress != 100 || len(rec.CompletedStages) != 2 {
		t.Fatalf("record not normalized: %+v", rec)
	}

	got = h.Status()
	if got.CurrentStage != "research" || got.ProjectID != "novel-1" {
		t.Fatalf("latest status not returned: %+v", got)
	}

	stale := hub.StatusRecord{Status: hub.StatusError, CurrentStage: "stale", UpdatedAt: time.Now().Add(-time.Hour)}
	if _, err := h.UpdateStatus(ctx, stale); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got := h.Status(); got.CurrentStage != "research" {
		t.Fatalf("older record displaced newer one: %+v", got)
	}
}

func TestAggregateCastMergesAndDeduplicates(t *testing.T) {
	h, store := newHub(t)
	put(t, store, "cast", hub.SchemaCast, hub.TypeCast, hub.Cast{
		Characters: []hub.Character{
			{Name: "Mara", Role: "protagonist"},
			{Name: "Iven", Role: "antagonist"},
		},
		Relationships: []hub.Relationship{{From: "Mara", To: "Iven", Kind: "rivals"}},
	})
	put(t, store, "cast", hub.SchemaCharacter, hub.TypeCharacter, hub.Character{Name: "mara ", Role: "protagonist", Arc: "learns to trust"})
	put(t, store, "cast", hub.SchemaCharacter, hub.TypeCharacter, hub.Character{Name: "Oda", Role: "mentor"})
	put(t, store, "cast", hub.SchemaRelationships, hub.TypeRelationships, hub.RelationshipSet{
		Relationships: []hub.Relationship{
			{From: "Mara", To: "Iven", Kind: "rivals"},
			{From: "Oda", To: "Mara", Kind: "mentor"},
		},
	})
	put(t, store, "cast", artifact.SchemaText, hub.TypeCast, "not json at all")

	cast, err := h.AggregateCast(context.Background())
	if err != nil {
		t.Fatalf("AggregateCast: %v", err)
	}
	if len(cast.Characters) != 3 {
		t.Fatalf("characters = %+v, want 3", cast.Characters)
	}
	if cast.Characters[0].Arc != "learns to trust" {
		t.Fatalf("newer character did not supersede: %+v", cast.Characters[0])
	}
	if len(cast.Relationships) != 2 {
		t.Fatalf("relationships = %+v, want 2", cast.Relationships)
	}
	if doc, ok := h.Latest(hub.CategoryCast); !ok || doc.Partition != hub.PartitionHub {
		t.Fatalf("aggregate not stored in hub partition")
	}
}

func TestAggregateSettingAbsorbsStandaloneEntries(t *testing.T) {
	h, store := newHub(t)
	put(t, store, "setting", hub.SchemaSetting, hub.TypeSetting, hub.Setting{
		Name:      "The Reach",
		Locations: []hub.Location{{Name: "Harbor", Description: "original"}},
	})
	put(t, store, "setting", hub.SchemaLocation, hub.TypeLocation, hub.Location{Name: "Harbor", Description: "standalone duplicate"})
	put(t, store, "setting", hub.SchemaLocation, hub.TypeLocation, hub.Location{Name: "Lighthouse", Description: "new"})
	put(t, store, "setting", hub.SchemaCulture, hub.TypeCulture, hub.Culture{Name: "Tide-speakers"})

	setting, err := h.AggregateSetting(context.Background())
	if err != nil {
		t.Fatalf("AggregateSetting: %v", err)
	}
	if setting.Name != "The Reach" || len(setting.Locations) != 2 || len(setting.Cultures) != 1 {
		t.Fatalf("unexpected setting %+v", setting)
	}
	if setting.Locations[0].Description != "original" {
		t.Fatalf("standalone location replaced an existing one: %+v", setting.Locations[0])
	}
}

func TestAggregateIdeationSelection(t *testing.T) {
	h, store := newHub(t)
	ctx := context.Background()
	put(t, store, "ideation", hub.SchemaIdeas, hub.TypeIdeas, hub.IdeaSet{Ideas: []hub.Idea{
		{ID: "a", Title: "Low", Score: 0.2},
		{ID: "b", Title: "High", Score: 0.9},
	}})
	put(t, store, "ideation", hub.SchemaIdea, hub.TypeIdea, hub.Idea{ID: "c", Title: "Mid", Score: 0.5})

	best, err := h.AggregateIdeation(ctx, "")
	if err != nil {
		t.Fatalf("AggregateIdeation: %v", err)
	}
	if best.Selected.ID != "b" || len(best.Ideas) != 3 {
		t.Fatalf("unexpected ideation %+v", best)
	}
	chosen, err := h.AggregateIdeation(ctx, "c")
	if err != nil {
		t.Fatalf("AggregateIdeation: %v", err)
	}
	if chosen.Selected.ID != "c" {
		t.Fatalf("requested idea not selected: %+v", chosen.Selected)
	}
	missing, err := h.AggregateIdeation(ctx, "zzz")
	if err != nil {
		t.Fatalf("AggregateIdeation: %v", err)
	}
	if missing.Selected.ID != "b" {
		t.Fatalf("unknown id should fall back to best: %+v", missing.Selected)
	}

	top := h.TopIdeas(2)
	if len(top) != 2 || top[0].ID != "b" || top[1].ID != "c" {
		t.Fatalf("TopIdeas = %+v", top)
	}
}

func TestIntegrateDegradesMissingCategories(t *testing.T) {
	h, store := newHub(t)
	ctx := context.Background()

	snap, err := h.Integrate(ctx)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if snap.Idea.ID != "" || snap.Characters == nil || len(snap.Characters) != 0 || snap.Setting.Locations == nil {
		t.Fatalf("expected empty defaults, got %+v", snap)
	}
	if _, ok := h.Snapshot(); !ok {
		t.Fatal("integrated context not stored")
	}

	put(t, store, "cast", hub.SchemaCast, hub.TypeCast, hub.Cast{Characters: []hub.Character{{Name: "Mara"}}})
	snap, err = h.Integrate(ctx)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if len(snap.Characters) != 1 {
		t.Fatalf("stale aggregate used after new cast document: %+v", snap.Characters)
	}
}

func TestProjectConfigAndManuscriptHelpers(t *testing.T) {
	h, store := newHub(t)
	ctx := context.Background()

	cfg, err := h.SaveProjectConfig(ctx, hub.ProjectConfig{Title: " Tides ", TargetLength: "novella"})
	if err != nil {
		t.Fatalf("SaveProjectConfig: %v", err)
	}
	if cfg.TargetWords != 30000 || cfg.Title != "Tides" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got, ok := h.ProjectConfig(); !ok || got.Title != "Tides" {
		t.Fatalf("ProjectConfig = %+v, %v", got, ok)
	}
	if hub.TargetWordCount("unknown") != 80000 {
		t.Fatal("unknown target length should default to novel")
	}

	put(t, store, "content", hub.SchemaChapter, hub.TypeChapter, hub.Chapter{Index: 2, Title: "Two"})
	put(t, store, "content", hub.SchemaChapter, hub.TypeChapter, hub.Chapter{Index: 1, Title: "One draft"})
	put(t, store, "content", hub.SchemaChapter, hub.TypeChapter, hub.Chapter{Index: 1, Title: "One"})
	chapters := h.Chapters()
	if len(chapters) != 2 || chapters[0].Title != "One" || chapters[1].Index != 2 {
		t.Fatalf("Chapters = %+v", chapters)
	}

	if _, ok := h.Manuscript(); ok {
		t.Fatal("unexpected manuscript")
	}
	put(t, store, "assembly", hub.SchemaManuscript, hub.TypeManuscript, hub.Manuscript{Title: "Tides", Chapters: chapters})
	if m, ok := h.Manuscript(); !ok || len(m.Chapters) != 2 {
		t.Fatalf("Manuscript = %+v, %v", m, ok)
	}

	events := h.Timeline()
	if len(events) == 0 {
		t.Fatal("empty timeline")
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("timeline not sorted at %d", i)
		}
	}
}

func TestChaptersForRunIgnoresEarlierRuns(t *testing.T) {
	h, store := newHub(t)
	putRun := func(runID string, ch hub.Chapter) {
		t.Helper()
		entry, err := artifact.NewEntry("content", hub.SchemaChapter, hub.TypeChapter, ch)
		if err != nil {
			t.Fatalf("NewEntry: %v", err)
		}
		testsupport.MustPut(t, store, entry.With(artifact.AttrRun, runID))
	}
	for i := 1; i <= 5; i++ {
		putRun("run-1", hub.Chapter{Index: i, Title: fmt.Sprintf("Old %d", i)})
	}
	putRun("run-2", hub.Chapter{Index: 1, Title: "New 1"})
	putRun("run-2", hub.Chapter{Index: 2, Title: "New 2"})
	putRun("run-2", hub.Chapter{Index: 7, Title: "Beyond the plan"})

	tests := []struct {
		name   string
		runID  string
		units  int
		titles []string
	}{
		{"current run within plan", "run-2", 2, []string{"New 1", "New 2"}},
		{"current run without plan", "run-2", 0, []string{"New 1", "New 2", "Beyond the plan"}},
		{"earlier run", "run-1", 5, []string{"Old 1", "Old 2", "Old 3", "Old 4", "Old 5"}},
		{"unknown run", "run-3", 2, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var titles []string
			for _, ch := range h.ChaptersForRun(tc.runID, tc.units) {
				titles = append(titles, ch.Title)
			}
			if !slices.Equal(titles, tc.titles) {
				t.Fatalf("titles = %v, want %v", titles, tc.titles)
			}
		})
	}
	if got := len(h.Chapters()); got != 7 {
		t.Fatalf("Chapters across runs = %d, want 7", got)
	}
}

func TestParseCategory(t *testing.T) {
	if c, err := hub.ParseCategory(" Cast "); err != nil || c != hub.CategoryCast {
		t.Fatalf("ParseCategory = %q, %v", c, err)
	}
	if _, err := hub.ParseCategory("world"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}
