package hub

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"quire/internal/artifact"
	"quire/internal/logging"
)

// Hub aggregates one project's store. It holds no state beyond the store.
type Hub struct {
	store  *artifact.Store
	logger *slog.Logger
	now    func() time.Time
}

// New wraps store. A nil logger discards output.
func New(store *artifact.Store, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		store:  store,
		logger: logging.NewComponentLogger(logger, "hub").With(logging.Project(store.Project())),
		now:    time.Now,
	}
}

// Store returns the underlying artifact store.
func (h *Hub) Store() *artifact.Store { return h.store }

// put writes a structured hub document.
func (h *Hub) put(ctx context.Context, schema, docType string, payload any) (string, error) {
	entry, err := artifact.NewEntry(PartitionHub, schema, docType, payload)
	if err != nil {
		return "", err
	}
	id, err := h.store.Put(ctx, entry)
	if err != nil {
		return id, fmt.Errorf("store %s: %w", docType, err)
	}
	return id, nil
}

// decodeAll decodes every document of docType in partition written under
// schema. Documents with another schema or a broken payload are skipped.
func decodeAll[T any](h *Hub, partition, docType, schema string) []T {
	return decodeWhere[T](h, partition, docType, schema, nil)
}

// decodeWhere is decodeAll restricted to the documents keep accepts.
func decodeWhere[T any](h *Hub, partition, docType, schema string, keep func(artifact.Document) bool) []T {
	docs := h.store.Filter(artifact.AttrType, docType, partition)
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		if keep != nil && !keep(doc) {
			continue
		}
		var v T
		if err := artifact.Decode(doc, schema, &v); err != nil {
			h.logger.Debug("skipping undecodable document",
				logging.String("document_id", doc.ID),
				logging.String("doc_type", docType),
				logging.Error(err),
			)
			continue
		}
		out = append(out, v)
	}
	return out
}

// decodeLatest decodes the newest decodable document of docType.
func decodeLatest[T any](h *Hub, partition, docType, schema string) (T, bool) {
	docs := h.store.Filter(artifact.AttrType, docType, partition)
	slices.SortStableFunc(docs, func(a, b artifact.Document) int {
		switch {
		case a.Newer(b):
			return -1
		case b.Newer(a):
			return 1
		default:
			return 0
		}
	})
	for _, doc := range docs {
		var v T
		if err := artifact.Decode(doc, schema, &v); err == nil {
			return v, true
		}
	}
	var zero T
	return zero, false
}

type keyed interface {
	naturalKey() string
}

// merger de-duplicates by natural key. A later item replaces an earlier one
// with the same key in place; keyless items are always appended.
type merger[T keyed] struct {
	items []T
	index map[string]int
}

func newMerger[T keyed]() *merger[T] {
	return &merger[T]{items: []T{}, index: map[string]int{}}
}

func (m *merger[T]) add(items ...T) {
	for _, item := range items {
		key := item.naturalKey()
		if key == "" {
			m.items = append(m.items, item)
			continue
		}
		if i, ok := m.index[key]; ok {
			m.items[i] = item
			continue
		}
		m.index[key] = len(m.items)
		m.items = append(m.items, item)
	}
}

// addMissing only adds items whose key is not present yet.
func (m *merger[T]) addMissing(items ...T) {
	for _, item := range items {
		if _, ok := m.index[item.naturalKey()]; ok {
			continue
		}
		m.add(item)
	}
}
