package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"quire/internal/artifact"
	"quire/internal/services"
)

// ArtifactQuery narrows an artifact listing. Query runs a filter
// ("key:value") or a similarity search instead of a plain listing.
type ArtifactQuery struct {
	Partition string
	Type      string
	Query     string
	Limit     int
	Text      bool
}

func (q ArtifactQuery) values() url.Values {
	v := url.Values{}
	if q.Partition != "" {
		v.Set("partition", q.Partition)
	}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Text {
		v.Set("text", "1")
	}
	return v
}

// ParseArtifactQuery reads an ArtifactQuery from URL parameters.
func ParseArtifactQuery(v url.Values) (ArtifactQuery, error) {
	q := ArtifactQuery{
		Partition: strings.TrimSpace(v.Get("partition")),
		Type:      strings.TrimSpace(v.Get("type")),
		Query:     strings.TrimSpace(v.Get("q")),
	}
	switch strings.ToLower(v.Get("text")) {
	case "1", "true", "yes":
		q.Text = true
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return ArtifactQuery{}, services.Wrap(services.ErrValidation, "", "artifact query", fmt.Sprintf("invalid limit %q", raw), nil)
		}
		q.Limit = n
	}
	return q, nil
}

// ListArtifacts runs q against store. Searches keep their ranking and are
// capped at Limit; plain listings keep store order and return the newest
// Limit documents.
func ListArtifacts(ctx context.Context, store *artifact.Store, q ArtifactQuery) ([]Artifact, error) {
	if q.Query != "" {
		opts := []artifact.SearchOption{artifact.InPartition(q.Partition)}
		if q.Limit > 0 {
			opts = append(opts, artifact.WithTopK(q.Limit))
		}
		matches, err := store.Query(ctx, q.Query, opts...)
		if err != nil {
			return nil, err
		}
		out := make([]Artifact, 0, len(matches))
		for _, a := range FromMatches(matches, q.Text) {
			if q.Type == "" || a.Type == q.Type {
				out = append(out, a)
			}
		}
		return out, nil
	}

	var docs []artifact.Document
	switch {
	case q.Type != "":
		docs = store.Filter(artifact.AttrType, q.Type, q.Partition)
	case q.Partition != "":
		docs = store.Partition(q.Partition)
	default:
		docs = store.Documents()
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[len(docs)-q.Limit:]
	}
	return FromDocuments(docs, q.Text), nil
}
