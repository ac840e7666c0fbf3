package hub

import (
	"context"
	"slices"
	"time"

	"quire/internal/artifact"
	"quire/internal/logging"
)

// Status values.
const (
	StatusNotStarted = "not_started"
	StatusRunning    = "running"
	StatusComplete   = "complete"
	StatusError      = "error"
)

const attrUpdatedAt = "updated_at"

// StatusRecord is the durable run state of a project.
type StatusRecord struct {
	ProjectID       string     `json:"project_id"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	CurrentStage    string     `json:"current_stage"`
	CompletedStages []string   `json:"completed_stages"`
	CompletedUnits  []int      `json:"completed_units"`
	Errors          []string   `json:"errors"`
	RunID           string     `json:"run_id,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DefaultStatus is the record of a project that never ran.
func DefaultStatus() StatusRecord {
	return StatusRecord{
		Status:          StatusNotStarted,
		CompletedStages: []string{},
		CompletedUnits:  []int{},
		Errors:          []string{},
	}
}

// Terminal reports whether the record is complete or errored.
func (r StatusRecord) Terminal() bool {
	return r.Status == StatusComplete || r.Status == StatusError
}

// StageDone reports whether stage is in CompletedStages.
func (r StatusRecord) StageDone(stage string) bool {
	return slices.Contains(r.CompletedStages, stage)
}

// UnitDone reports whether content unit n completed.
func (r StatusRecord) UnitDone(n int) bool {
	return slices.Contains(r.CompletedUnits, n)
}

// Clone returns a deep copy.
func (r StatusRecord) Clone() StatusRecord {
	out := r
	out.CompletedStages = slices.Clone(r.CompletedStages)
	out.CompletedUnits = slices.Clone(r.CompletedUnits)
	out.Errors = slices.Clone(r.Errors)
	return out
}

func (r *StatusRecord) normalize() {
	r.Progress = min(max(r.Progress, 0), 100)
	r.CompletedStages = dedup(r.CompletedStages)
	r.CompletedUnits = dedup(r.CompletedUnits)
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Status == "" {
		r.Status = StatusNotStarted
	}
}

func dedup[T comparable](items []T) []T {
	out := make([]T, 0, len(items))
	seen := make(map[T]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// UpdateStatus stores rec as a new status document and returns the record
// as written. A zero UpdatedAt is stamped with the current time.
func (h *Hub) UpdateStatus(ctx context.Context, rec StatusRecord) (StatusRecord, error) {
	rec = rec.Clone()
	rec.normalize()
	rec.ProjectID = h.store.Project()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = h.now().UTC()
	}
	entry, err := artifact.NewEntry(PartitionHub, SchemaStatus, TypeProjectStatus, rec)
	if err != nil {
		return rec, err
	}
	entry = entry.With(attrUpdatedAt, rec.UpdatedAt.Format(time.RFC3339Nano))
	if _, err := h.store.Put(ctx, entry); err != nil {
		logging.WarnWithContext(h.logger, "status update not persisted", "status_update_failed",
			logging.String("status", rec.Status),
			logging.Error(err),
		)
		return rec, err
	}
	h.logger.Debug("status updated",
		logging.String("status", rec.Status),
		logging.Stage(rec.CurrentStage),
		logging.Int("progress", rec.Progress),
	)
	return rec, nil
}

// Status returns the current record: the decodable status document with the
// greatest (UpdatedAt, Seq). Without one it returns DefaultStatus.
func (h *Hub) Status() StatusRecord {
	docs := h.store.Filter(artifact.AttrType, TypeProjectStatus, PartitionHub)
	slices.SortStableFunc(docs, func(a, b artifact.Document) int {
		ta, tb := statusTime(a), statusTime(b)
		switch {
		case ta.After(tb):
			return -1
		case tb.After(ta):
			return 1
		case a.Seq > b.Seq:
			return -1
		case a.Seq < b.Seq:
			return 1
		default:
			return 0
		}
	})
	for _, doc := range docs {
		var rec StatusRecord
		if err := artifact.Decode(doc, SchemaStatus, &rec); err != nil {
			continue
		}
		rec.normalize()
		return rec
	}
	rec := DefaultStatus()
	rec.ProjectID = h.store.Project()
	return rec
}

func statusTime(doc artifact.Document) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, doc.Attr(attrUpdatedAt)); err == nil {
		return ts
	}
	return doc.CreatedAt
}
