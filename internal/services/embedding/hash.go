package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Hasher embeds text by hashing tokens and bigrams into a fixed number of
// signed buckets, then L2-normalizing. Identical text always yields the same
// vector, and texts sharing vocabulary land close together.
type Hasher struct {
	dimension int
	stopwords map[string]struct{}
}

// NewHasher returns a Hasher producing vectors of the given dimension.
func NewHasher(dimension int) *Hasher {
	if dimension <= 0 {
		dimension = 384
	}
	return &Hasher{dimension: dimension, stopwords: defaultStopwords()}
}

// Name returns the identifier of this embedder implementation.
func (h *Hasher) Name() string { return ProviderHash }

// Dimension returns the vector length.
func (h *Hasher) Dimension() int { return h.dimension }

// Embed returns the hashed feature vector for text. Text with no tokens maps
// to the zero vector.
func (h *Hasher) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, h.dimension)
	tokens := h.tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm = math.Sqrt(norm); norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (h *Hasher) add(vec []float64, feature string, weight float64) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(len(vec)))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (h *Hasher) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := h.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these",
		"those", "from", "into", "about", "so", "such", "than", "too", "very", "can", "will", "just", "should",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
