package artifact_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"quire/internal/artifact"
	"quire/internal/services"
	"quire/internal/services/embedding"
	"quire/internal/testsupport"
)

func openStore(t *testing.T, dir string, embedder artifact.Embedder) *artifact.Store {
	t.Helper()
	opts := artifact.DefaultOptions()
	opts.Dimension = testsupport.TestDimension
	opts.EmbedBackoff = 0
	store, err := artifact.Open(context.Background(), dir, embedder, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func hasher() artifact.Embedder {
	return embedding.NewHasher(testsupport.TestDimension)
}

func TestPutThenGetReturnsExactText(t *testing.T) {
	store := openStore(t, t.TempDir(), hasher())
	defer store.Close()

	text := "  A lighthouse keeper finds a letter.\n\tUnicode: café ✓ "
	id, err := store.Put(context.Background(), artifact.Entry{
		Partition:  "ideation",
		Text:       text,
		Attributes: map[string]string{artifact.AttrType: "idea"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	doc, ok := store.Get(id)
	if !ok {
		t.Fatalf("Get(%s) missing", id)
	}
	if doc.Text != text {
		t.Fatalf("text mismatch: got %q", doc.Text)
	}
	if doc.Schema != artifact.SchemaText {
		t.Fatalf("schema = %q, want default text", doc.Schema)
	}
	if len(doc.Embedding) != testsupport.TestDimension {
		t.Fatalf("embedding length = %d", len(doc.Embedding))
	}
	if doc.Attr(artifact.AttrAgent) != "ideation" {
		t.Fatalf("agent attribute = %q", doc.Attr(artifact.AttrAgent))
	}
	if _, err := time.Parse(time.RFC3339Nano, doc.Attr(artifact.AttrTimestamp)); err != nil {
		t.Fatalf("timestamp attribute: %v", err)
	}
}

func TestPutRejectsEmptyPartition(t *testing.T) {
	store := openStore(t, t.TempDir(), hasher())
	defer store.Close()

	_, err := store.Put(context.Background(), artifact.Entry{Partition: "  ", Text: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFilterIsScopedToPartition(t *testing.T) {
	store := openStore(t, t.TempDir(), hasher())
	defer store.Close()
	ctx := context.Background()

	put := func(partition, docType, text string) string {
		t.Helper()
		id, err := store.Put(ctx, artifact.Entry{Partition: partition, Text: text, Attributes: map[string]string{artifact.AttrType: docType}})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		return id
	}
	first := put("ideation", "idea", "first idea")
	put("ideation", "notes", "some notes")
	put("refinement", "idea", "borrowed idea")
	second := put("ideation", "idea", "second idea")

	got := store.Filter(artifact.AttrType, "idea", "ideation")
	if len(got) != 2 || got[0].ID != first || got[1].ID != second {
		t.Fatalf("unexpected filter result: %+v", got)
	}
	if all := store.Filter(artifact.AttrType, "idea", ""); len(all) != 3 {
		t.Fatalf("store-wide filter returned %d docs, want 3", len(all))
	}
	if star := store.Filter(artifact.AttrType, "*", "ideation"); len(star) != 0 {
		t.Fatalf(`filter on "*" returned %d docs, want 0`, len(star))
	}
	if none := store.Filter(artifact.AttrType, "idea", "missing"); len(none) != 0 {
		t.Fatalf("unknown partition returned %d docs", len(none))
	}

	matches, err := store.Query(ctx, "type:idea", artifact.InPartition("ideation"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 || matches[0].Score != 1 {
		t.Fatalf("query dispatch to filter failed: %+v", matches)
	}
	starred := put("ideation", "*", "literal star type")
	matches, err = store.Query(ctx, "type:*")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].Document.ID != starred {
		t.Fatalf(`"type:*" should match only the literal "*" type: %+v`, matches)
	}

	latest, ok := store.Latest(artifact.AttrType, "idea", "ideation")
	if !ok || latest.ID != second {
		t.Fatalf("Latest = %s, want %s", latest.ID, second)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in         string
		key, value string
		ok         bool
	}{
		{in: "type:idea", key: "type", value: "idea", ok: true},
		{in: "type:*", key: "type", value: "*", ok: true},
		{in: "unit:3", key: "unit", value: "3", ok: true},
		{in: "type: idea", ok: false},
		{in: "a story about type:idea", ok: false},
		{in: ":idea", ok: false},
		{in: "type:", ok: false},
		{in: "plain words", ok: false},
	}
	for _, tc := range tests {
		key, value, ok := artifact.ParseFilter(tc.in)
		if ok != tc.ok || key != tc.key || value != tc.value {
			t.Fatalf("ParseFilter(%q) = %q, %q, %v", tc.in, key, value, ok)
		}
	}
}

func TestSearchRanksAndThresholds(t *testing.T) {
	store := openStore(t, t.TempDir(), hasher())
	defer store.Close()
	ctx := context.Background()

	target := "a haunted lighthouse on a stormy northern coast"
	for _, text := range []string{
		"quarterly tax spreadsheet totals",
		target,
		"recipe for sourdough bread",
	} {
		if _, err := store.Put(ctx, artifact.Entry{Partition: "ideation", Text: text}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	matches, err := store.Search(ctx, target)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) == 0 || matches[0].Document.Text != target {
		t.Fatalf("expected exact text first, got %+v", matches)
	}
	if matches[0].Score < 0.999 {
		t.Fatalf("self similarity = %f", matches[0].Score)
	}

	all, err := store.Search(ctx, target, artifact.WithMinSimilarity(0), artifact.WithTopK(10))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("zero threshold returned %d docs, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Score > all[i-1].Score {
			t.Fatalf("results not sorted: %+v", all)
		}
	}

	capped, err := store.Search(ctx, target, artifact.WithMinSimilarity(0), artifact.WithTopK(1))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(capped) != 1 {
		t.Fatalf("top-k not applied: %d", len(capped))
	}

	scoped, err := store.Search(ctx, target, artifact.InPartition("nope"), artifact.WithMinSimilarity(0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(scoped) != 0 {
		t.Fatalf("unknown partition should match nothing, got %d", len(scoped))
	}
}

func TestDeleteRemovesFromEveryView(t *testing.T) {
	store := openStore(t, t.TempDir(), hasher())
	defer store.Close()
	ctx := context.Background()

	id, err := store.Put(ctx, artifact.Entry{Partition: "outline", Text: "chapter plan", Attributes: map[string]string{artifact.AttrType: "outline"}})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	kept, err := store.Put(ctx, artifact.Entry{Partition: "notes", Text: "chapter plan draft"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	removed, err := store.Delete(ctx, id)
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	if _, ok := store.Get(id); ok {
		t.Fatal("deleted document still retrievable")
	}
	if docs := store.Partition("outline"); len(docs) != 0 {
		t.Fatalf("partition still lists %d docs", len(docs))
	}
	if docs := store.Filter(artifact.AttrType, "outline", ""); len(docs) != 0 {
		t.Fatal("filter still finds deleted document")
	}
	matches, err := store.Search(ctx, "chapter plan", artifact.WithMinSimilarity(0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, m := range matches {
		if m.Document.ID == id {
			t.Fatal("search still returns deleted document")
		}
	}
	if len(matches) != 1 || matches[0].Document.ID != kept {
		t.Fatalf("search after delete = %+v, want only %s", matches, kept)
	}

	statsBefore, docsBefore := store.Stats(), store.Documents()
	removed, err = store.Delete(ctx, id)
	if err != nil || removed {
		t.Fatalf("second Delete = %v, %v; want false, nil", removed, err)
	}
	if got := store.Stats(); !reflect.DeepEqual(got, statsBefore) {
		t.Fatalf("missing-id delete changed stats: %+v -> %+v", statsBefore, got)
	}
	if got := store.Documents(); !reflect.DeepEqual(got, docsBefore) {
		t.Fatalf("missing-id delete changed documents: %d -> %d", len(docsBefore), len(got))
	}
	if parts := store.Partitions(); len(parts) != 1 || parts[0] != "notes" {
		t.Fatalf("empty partition still listed: %v", parts)
	}
}

func TestConcurrentPutsAreAllRetained(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir, hasher())
	const workers, perWorker = 8, 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := store.Put(context.Background(), artifact.Entry{
					Partition: fmt.Sprintf("p%d", w%3),
					Text:      fmt.Sprintf("worker %d item %d", w, i),
				})
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Put: %v", err)
	}
	if got := store.Stats().Documents; got != workers*perWorker {
		t.Fatalf("documents = %d, want %d", got, workers*perWorker)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openStore(t, dir, hasher())
	defer reopened.Close()
	if got := reopened.Stats().Documents; got != workers*perWorker {
		t.Fatalf("reopened documents = %d, want %d", got, workers*perWorker)
	}
}

func TestReopenReproducesState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := openStore(t, dir, hasher())

	entry, err := artifact.NewEntry("outline", "quire.outline/v1", "outline", map[string]any{"chapters": 3})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	ids := []string{}
	for _, e := range []artifact.Entry{
		{Partition: "ideation", Text: "idea one", Attributes: map[string]string{artifact.AttrType: "idea"}},
		entry,
		{Partition: "ideation", Text: "idea two", Attributes: map[string]string{artifact.AttrType: "idea"}},
	} {
		id, err := store.Put(ctx, e)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		ids = append(ids, id)
	}
	if _, err := store.Delete(ctx, ids[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	before := store.Documents()
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openStore(t, dir, hasher())
	defer reopened.Close()
	after := reopened.Documents()
	if len(after) != len(before) {
		t.Fatalf("reopened %d docs, want %d", len(after), len(before))
	}
	for i := range before {
		b, a := before[i], after[i]
		if a.ID != b.ID || a.Text != b.Text || a.Partition != b.Partition || a.Schema != b.Schema || a.Seq != b.Seq || !a.CreatedAt.Equal(b.CreatedAt) {
			t.Fatalf("doc %d differs after reopen:\nbefore %+v\nafter  %+v", i, b, a)
		}
		if len(a.Attributes) != len(b.Attributes) {
			t.Fatalf("attributes differ: %v vs %v", a.Attributes, b.Attributes)
		}
		for j := range b.Embedding {
			if a.Embedding[j] != b.Embedding[j] {
				t.Fatalf("embedding differs at %d", j)
			}
		}
	}

	var decoded struct {
		Chapters int `json:"chapters"`
	}
	doc, _ := reopened.Get(ids[1])
	if err := artifact.Decode(doc, "quire.outline/v1", &decoded); err != nil || decoded.Chapters != 3 {
		t.Fatalf("Decode = %+v, %v", decoded, err)
	}
	if err := artifact.Decode(doc, "quire.idea/v1", &decoded); !errors.Is(err, artifact.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}

	id, err := reopened.Put(ctx, artifact.Entry{Partition: "ideation", Text: "after reopen"})
	if err != nil {
		t.Fatalf("Put after reopen: %v", err)
	}
	next, _ := reopened.Get(id)
	if next.Seq <= before[len(before)-1].Seq {
		t.Fatalf("sequence went backwards: %d", next.Seq)
	}
}

func TestEmbeddingFailureLeavesStoreUnmodified(t *testing.T) {
	store := openStore(t, t.TempDir(), &testsupport.FlakyEmbedder{Failures: -1})
	defer store.Close()

	_, err := store.Put(context.Background(), artifact.Entry{Partition: "ideation", Text: "doomed"})
	if !errors.Is(err, artifact.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if got := store.Stats().Documents; got != 0 {
		t.Fatalf("store holds %d docs after failed put", got)
	}
}

func TestEmbeddingRetriesTransientFailures(t *testing.T) {
	flaky := &testsupport.FlakyEmbedder{Failures: 2}
	store := openStore(t, t.TempDir(), flaky)
	defer store.Close()

	if _, err := store.Put(context.Background(), artifact.Entry{Partition: "ideation", Text: "eventually"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if flaky.Calls() != 3 {
		t.Fatalf("embed calls = %d, want 3", flaky.Calls())
	}
}

func TestEmbeddingDoesNotRetryConfigurationErrors(t *testing.T) {
	flaky := &testsupport.FlakyEmbedder{Failures: -1, Err: services.Wrap(services.ErrConfiguration, "", "embed", "bad key", nil)}
	store := openStore(t, t.TempDir(), flaky)
	defer store.Close()

	_, err := store.Put(context.Background(), artifact.Entry{Partition: "ideation", Text: "x"})
	if !errors.Is(err, artifact.ErrEmbedding) || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("unexpected error %v", err)
	}
	if flaky.Calls() != 1 {
		t.Fatalf("embed calls = %d, want 1", flaky.Calls())
	}
}

func TestSecondOpenIsLocked(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir, hasher())

	if _, err := artifact.Open(context.Background(), dir, hasher(), artifact.DefaultOptions()); !errors.Is(err, artifact.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	again := openStore(t, dir, hasher())
	_ = again.Close()
}

func TestCorruptRowsAreSkippedOnLoad(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := openStore(t, dir, hasher())
	good, err := store.Put(ctx, artifact.Entry{Partition: "ideation", Text: "good"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	bad, err := store.Put(ctx, artifact.Entry{Partition: "ideation", Text: "bad"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	short, err := store.Put(ctx, artifact.Entry{Partition: "ideation", Text: "short"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", filepath.Join(dir, "artifacts.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := db.Exec("UPDATE documents SET attributes_json = '{broken' WHERE id = ?", bad); err != nil {
		t.Fatalf("corrupt attributes: %v", err)
	}
	if _, err := db.Exec("UPDATE documents SET embedding = x'0102' WHERE id = ?", short); err != nil {
		t.Fatalf("corrupt embedding: %v", err)
	}
	_ = db.Close()

	reopened := openStore(t, dir, hasher())
	defer reopened.Close()
	docs := reopened.Documents()
	if len(docs) != 1 || docs[0].ID != good {
		t.Fatalf("expected only the good document, got %+v", docs)
	}
}

func TestDimensionChangeResizesOnLoad(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir, hasher())
	id, err := store.Put(context.Background(), artifact.Entry{Partition: "ideation", Text: "resize me"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = store.Close()

	opts := artifact.DefaultOptions()
	opts.Dimension = 16
	smaller, err := artifact.Open(context.Background(), dir, embedding.NewHasher(16), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer smaller.Close()
	doc, ok := smaller.Get(id)
	if !ok || len(doc.Embedding) != 16 {
		t.Fatalf("embedding not resized: %d", len(doc.Embedding))
	}
}

func TestClearStatsAndBackup(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := openStore(t, dir, hasher())
	defer store.Close()

	for i := 0; i < 3; i++ {
		if _, err := store.Put(ctx, artifact.Entry{Partition: "drafting", Text: fmt.Sprintf("chapter %d", i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	stats := store.Stats()
	if stats.Documents != 3 || stats.Partitions["drafting"] != 3 || stats.ApproxBytes <= 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if _, err := os.Stat(filepath.Join(dir, "summary.json")); err != nil {
		t.Fatalf("summary.json missing: %v", err)
	}

	backup := filepath.Join(t.TempDir(), "backup.db")
	if err := store.Backup(ctx, backup); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if info, err := os.Stat(backup); err != nil || info.Size() == 0 {
		t.Fatalf("backup not written: %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := store.Stats().Documents; got != 0 {
		t.Fatalf("documents after clear = %d", got)
	}
}

func TestCosineClampsAndHandlesZeroVectors(t *testing.T) {
	if got := artifact.Cosine([]float64{0, 0}, []float64{1, 0}); got != 0 {
		t.Fatalf("zero vector cosine = %f", got)
	}
	if got := artifact.Cosine([]float64{1, 0}, []float64{1, 0}); got != 1 {
		t.Fatalf("identical cosine = %f", got)
	}
	if got := artifact.Cosine([]float64{1, 0}, []float64{-1, 0}); got != -1 {
		t.Fatalf("opposite cosine = %f", got)
	}
}
