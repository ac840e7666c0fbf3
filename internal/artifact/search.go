package artifact

import (
	"context"
	"sort"
	"strings"
)

// Match is a search hit. Filter hits carry Score 1.
type Match struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

type searchParams struct {
	partition string
	topK      int
	limitSet  bool
	minScore  float64
}

// SearchOption narrows Search and Query.
type SearchOption func(*searchParams)

// InPartition scopes the lookup to one partition. Unknown partitions match
// nothing.
func InPartition(name string) SearchOption {
	return func(p *searchParams) { p.partition = name }
}

// WithTopK caps the number of results.
func WithTopK(k int) SearchOption {
	return func(p *searchParams) {
		if k > 0 {
			p.topK = k
			p.limitSet = true
		}
	}
}

// WithMinSimilarity sets the inclusive score threshold.
func WithMinSimilarity(v float64) SearchOption {
	return func(p *searchParams) { p.minScore = v }
}

func (s *Store) searchParams(opts []SearchOption) searchParams {
	p := searchParams{topK: s.opts.TopK, minScore: s.opts.MinSimilarity}
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

// Search embeds text and returns the documents scoring at or above the
// threshold, best first, capped at top-k. Ties keep store order.
func (s *Store) Search(ctx context.Context, text string, opts ...SearchOption) ([]Match, error) {
	params := s.searchParams(opts)
	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := s.partitions[params.partition]
	if params.partition == "" {
		ids = s.order
	}
	matches := make([]Match, 0, len(ids))
	for _, id := range ids {
		doc := s.docs[id]
		score := clamp01(s.opts.Similarity(vec, doc.Embedding))
		if score < params.minScore {
			continue
		}
		matches = append(matches, Match{Document: doc.clone(), Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > params.topK {
		matches = matches[:params.topK]
	}
	return matches, nil
}

// Query dispatches a literal "key:value" (no whitespace) to Filter and
// anything else to Search. Filter results are only capped when WithTopK is
// given.
func (s *Store) Query(ctx context.Context, q string, opts ...SearchOption) ([]Match, error) {
	key, value, ok := ParseFilter(q)
	if !ok {
		return s.Search(ctx, q, opts...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := s.searchParams(opts)
	docs := s.Filter(key, value, params.partition)
	if params.limitSet && len(docs) > params.topK {
		docs = docs[:params.topK]
	}
	out := make([]Match, len(docs))
	for i, doc := range docs {
		out[i] = Match{Document: doc, Score: 1}
	}
	return out, nil
}

// ParseFilter splits a "key:value" filter literal. It rejects strings with
// whitespace or an empty side.
func ParseFilter(q string) (key, value string, ok bool) {
	if q == "" || strings.ContainsAny(q, " \t\r\n") {
		return "", "", false
	}
	key, value, found := strings.Cut(q, ":")
	if !found || key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}
