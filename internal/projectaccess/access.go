package projectaccess

import (
	"context"
	"errors"
	"fmt"

	"quire/internal/agents"
	"quire/internal/api"
	"quire/internal/artifact"
	"quire/internal/hub"
	"quire/internal/project"
	"quire/internal/services"
	"quire/internal/workflow"
)

// ErrDaemonRequired reports an operation that needs a live daemon.
var ErrDaemonRequired = errors.New("daemon not running")

// Access provides project operations regardless of API or direct store backing.
type Access interface {
	Projects(ctx context.Context) ([]project.Summary, error)
	Status(ctx context.Context, id string) (workflow.View, error)
	Reset(ctx context.Context, id string) (workflow.View, error)
	Artifacts(ctx context.Context, id string, q api.ArtifactQuery) ([]api.Artifact, error)
	Artifact(ctx context.Context, id, docID string) (api.Artifact, error)
	DeleteArtifact(ctx context.Context, id, docID string) (bool, error)
	Stats(ctx context.Context, id string) (artifact.Stats, error)
	Manuscript(ctx context.Context, id string) (api.ManuscriptResponse, error)
	Timeline(ctx context.Context, id string) ([]hub.TimelineEvent, error)
	// Remote reports whether calls go through the daemon.
	Remote() bool
}

// NewAPIAccess returns an Access backed by the daemon HTTP API.
func NewAPIAccess(client *api.Client) Access {
	return &apiAccess{client: client}
}

// NewCatalogAccess returns an Access backed by direct store access.
func NewCatalogAccess(catalog *project.Catalog) Access {
	return &catalogAccess{catalog: catalog}
}

type apiAccess struct {
	client *api.Client
}

func (a *apiAccess) Remote() bool { return true }

func (a *apiAccess) Projects(ctx context.Context) ([]project.Summary, error) {
	return a.client.Projects(ctx)
}

func (a *apiAccess) Status(ctx context.Context, id string) (workflow.View, error) {
	return a.client.Status(ctx, id)
}

func (a *apiAccess) Reset(ctx context.Context, id string) (workflow.View, error) {
	return a.client.Reset(ctx, id)
}

func (a *apiAccess) Artifacts(ctx context.Context, id string, q api.ArtifactQuery) ([]api.Artifact, error) {
	return a.client.Artifacts(ctx, id, q)
}

func (a *apiAccess) Artifact(ctx context.Context, id, docID string) (api.Artifact, error) {
	return a.client.Artifact(ctx, id, docID)
}

func (a *apiAccess) DeleteArtifact(ctx context.Context, id, docID string) (bool, error) {
	return a.client.DeleteArtifact(ctx, id, docID)
}

func (a *apiAccess) Stats(ctx context.Context, id string) (artifact.Stats, error) {
	resp, err := a.client.Stats(ctx, id)
	return resp.Stats, err
}

func (a *apiAccess) Manuscript(ctx context.Context, id string) (api.ManuscriptResponse, error) {
	return a.client.Manuscript(ctx, id)
}

func (a *apiAccess) Timeline(ctx context.Context, id string) ([]hub.TimelineEvent, error) {
	resp, err := a.client.Timeline(ctx, id)
	return resp.Events, err
}

type catalogAccess struct {
	catalog *project.Catalog
}

func (a *catalogAccess) Remote() bool { return false }

func (a *catalogAccess) Projects(ctx context.Context) ([]project.Summary, error) {
	return a.catalog.List(ctx)
}

func (a *catalogAccess) Status(ctx context.Context, id string) (workflow.View, error) {
	h, err := a.catalog.Hub(ctx, id)
	if err != nil {
		return workflow.View{}, err
	}
	return workflow.Status(h), nil
}

func (a *catalogAccess) Reset(context.Context, string) (workflow.View, error) {
	return workflow.View{}, fmt.Errorf("%w: start it with `quire start`, or resume in the foreground with `quire run --resume`", ErrDaemonRequired)
}

func (a *catalogAccess) Artifacts(ctx context.Context, id string, q api.ArtifactQuery) ([]api.Artifact, error) {
	h, err := a.catalog.Hub(ctx, id)
	if err != nil {
		return nil, err
	}
	return api.ListArtifacts(ctx, h.Store(), q)
}

func (a *catalogAccess) Artifact(ctx context.Context, id, docID string) (api.Artifact, error) {
	h, err := a.catalog.Hub(ctx, id)
	if err != nil {
		return api.Artifact{}, err
	}
	doc, ok := h.Store().Get(docID)
	if !ok {
		return api.Artifact{}, services.Wrap(services.ErrNotFound, "", "artifact", fmt.Sprintf("document %s not found", docID), nil)
	}
	return api.FromDocument(doc, true), nil
}

func (a *catalogAccess) DeleteArtifact(ctx context.Context, id, docID string) (bool, error) {
	h, err := a.catalog.Hub(ctx, id)
	if err != nil {
		return false, err
	}
	return h.Store().Delete(ctx, docID)
}

func (a *catalogAccess) Stats(ctx context.Context, id string) (artifact.Stats, error) {
	h, err := a.catalog.Hub(ctx, id)
	if err != nil {
		return artifact.Stats{}, err
	}
	return h.Store().Stats(), nil
}

func (a *catalogAccess) Manuscript(ctx context.Context, id string) (api.ManuscriptResponse, error) {
	h, err := a.catalog.Hub(ctx, id)
	if err != nil {
		return api.ManuscriptResponse{}, err
	}
	m, ok := h.Manuscript()
	if !ok {
		return api.ManuscriptResponse{}, services.Wrap(services.ErrNotFound, "", "manuscript", "manuscript not assembled yet", nil)
	}
	return api.ManuscriptResponse{Manuscript: m, Markdown: agents.Render(m)}, nil
}

func (a *catalogAccess) Timeline(ctx context.Context, id string) ([]hub.TimelineEvent, error) {
	h, err := a.catalog.Hub(ctx, id)
	if err != nil {
		return nil, err
	}
	return h.Timeline(), nil
}
