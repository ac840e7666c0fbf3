package artifact

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Well-known attribute keys.
const (
	AttrType      = "type"
	AttrAgent     = "agent"
	AttrTimestamp = "timestamp"
	AttrUnit      = "unit"
	AttrRecovery  = "recovery"
	AttrRecovered = "recovered_stage"
	AttrError     = "error"
	AttrRun       = "run_id"
)

// SchemaText marks unstructured text payloads.
const SchemaText = "text"

// Document is one immutable stored artifact.
type Document struct {
	ID         string            `json:"id"`
	Partition  string            `json:"partition"`
	Schema     string            `json:"schema"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes"`
	Embedding  []float64         `json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
	Seq        int64             `json:"seq"`
}

// Attr returns the attribute value for key, or "".
func (d Document) Attr(key string) string {
	return d.Attributes[key]
}

// Type returns the "type" attribute.
func (d Document) Type() string {
	return d.Attributes[AttrType]
}

// Newer reports whether d sorts after other by (CreatedAt, Seq).
func (d Document) Newer(other Document) bool {
	if !d.CreatedAt.Equal(other.CreatedAt) {
		return d.CreatedAt.After(other.CreatedAt)
	}
	return d.Seq > other.Seq
}

func (d Document) clone() Document {
	out := d
	out.Attributes = maps.Clone(d.Attributes)
	if d.Embedding != nil {
		out.Embedding = append([]float64(nil), d.Embedding...)
	}
	return out
}

// Entry is the caller-supplied part of a new document.
type Entry struct {
	Partition  string
	Schema     string
	Text       string
	Attributes map[string]string
}

// NewEntry encodes payload for storage under schema. String payloads are
// stored verbatim; anything else is marshalled to JSON.
func NewEntry(partition, schema, docType string, payload any) (Entry, error) {
	var text string
	switch v := payload.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Entry{}, fmt.Errorf("encode %s payload: %w", schema, err)
		}
		text = string(encoded)
	}
	attrs := map[string]string{}
	if docType != "" {
		attrs[AttrType] = docType
	}
	return Entry{Partition: partition, Schema: schema, Text: text, Attributes: attrs}, nil
}

// With returns a copy of e with an extra attribute.
func (e Entry) With(key, value string) Entry {
	attrs := maps.Clone(e.Attributes)
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}

// Decode unmarshals a JSON document into v after checking that the document
// was written under schema. Text documents cannot be decoded structurally.
func Decode(doc Document, schema string, v any) error {
	if doc.Schema != schema {
		return fmt.Errorf("%w: document %s has schema %q, want %q", ErrSchemaMismatch, doc.ID, doc.Schema, schema)
	}
	if err := json.Unmarshal([]byte(doc.Text), v); err != nil {
		return fmt.Errorf("decode %s document %s: %w", schema, doc.ID, err)
	}
	return nil
}
