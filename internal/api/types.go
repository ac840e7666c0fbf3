package api

import (
	"time"

	"quire/internal/artifact"
	"quire/internal/hub"
	"quire/internal/project"
	"quire/internal/workflow"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	project.Params
	// Start launches the workflow immediately (default true).
	Start *bool `json:"start,omitempty"`
}

// StartRequested reports whether the request asks for an immediate start.
func (r CreateProjectRequest) StartRequested() bool {
	return r.Start == nil || *r.Start
}

// CreateProjectResponse reports the new project.
type CreateProjectResponse struct {
	ID      string            `json:"id"`
	Config  hub.ProjectConfig `json:"config"`
	Started bool              `json:"started"`
	RunID   string            `json:"run_id,omitempty"`
}

// ProjectListResponse lists projects on disk.
type ProjectListResponse struct {
	Projects []project.Summary `json:"projects"`
}

// StatusResponse wraps a project's status view.
type StatusResponse struct {
	Project workflow.View `json:"project"`
}

// Artifact is the transport form of a stored document.
type Artifact struct {
	ID         string            `json:"id"`
	Partition  string            `json:"partition"`
	Schema     string            `json:"schema"`
	Type       string            `json:"type,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  string            `json:"created_at"`
	Seq        int64             `json:"seq"`
	Size       int               `json:"size"`
	Text       string            `json:"text,omitempty"`
	Score      float64           `json:"score,omitempty"`
}

// ArtifactListResponse wraps a document listing or search result.
type ArtifactListResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}

// ArtifactResponse wraps a single document.
type ArtifactResponse struct {
	Artifact Artifact `json:"artifact"`
}

// ManuscriptResponse carries the assembled manuscript.
type ManuscriptResponse struct {
	Manuscript hub.Manuscript `json:"manuscript"`
	Markdown   string         `json:"markdown"`
}

// TimelineResponse lists a project's document history.
type TimelineResponse struct {
	Events []hub.TimelineEvent `json:"events"`
}

// RunInfo describes one registered run.
type RunInfo struct {
	ProjectID string `json:"project_id"`
	RunID     string `json:"run_id"`
	Alive     bool   `json:"alive"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Stage     string `json:"stage"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool      `json:"running"`
	PID          int       `json:"pid"`
	DataDir      string    `json:"data_dir"`
	LockFilePath string    `json:"lock_file_path"`
	StartedAt    string    `json:"started_at,omitempty"`
	Runs         []RunInfo `json:"runs"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// FormatTime renders t in the API timestamp format; zero stays empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// StatsResponse wraps a project's store statistics.
type StatsResponse struct {
	Stats artifact.Stats `json:"stats"`
}

// DeleteResponse reports whether a document was removed.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}
