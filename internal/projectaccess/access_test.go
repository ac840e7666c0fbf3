package projectaccess_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"quire/internal/api"
	"quire/internal/artifact"
	"quire/internal/hub"
	"quire/internal/project"
	"quire/internal/projectaccess"
	"quire/internal/services"
	"quire/internal/services/embedding"
	"quire/internal/testsupport"
)

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestOpenWithFallbackUsesCatalogWhenDaemonIsDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	seed := project.NewCatalog(cfg, embedding.NewHasher(cfg.Store.Dimension), nil)
	id, _, err := seed.Create(ctx, project.Params{Title: "Offline"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h, err := seed.Hub(ctx, id)
	if err != nil {
		t.Fatalf("Hub: %v", err)
	}
	entry, err := artifact.NewEntry("content", hub.SchemaChapter, hub.TypeChapter, hub.Chapter{Index: 1, Title: "One", Text: "Gulls circled the lamp."})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	docID := testsupport.MustPut(t, h.Store(), entry.With(artifact.AttrUnit, "1"))
	if err := seed.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	addr := closedAddr(t)
	session, err := projectaccess.OpenWithFallback(ctx,
		func() (*api.Client, error) { return api.NewClient(addr, "") },
		func() (*project.Catalog, error) {
			return project.NewCatalog(cfg, embedding.NewHasher(cfg.Store.Dimension), nil), nil
		},
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	access := session.Access
	if access.Remote() {
		t.Fatal("expected direct access with no daemon listening")
	}

	view, err := access.Status(ctx, id)
	if err != nil || view.Status != hub.StatusNotStarted || view.Alive {
		t.Fatalf("Status = %+v, %v", view, err)
	}
	docs, err := access.Artifacts(ctx, id, api.ArtifactQuery{Type: hub.TypeChapter})
	if err != nil || len(docs) != 1 || docs[0].ID != docID || docs[0].Text != "" {
		t.Fatalf("Artifacts = %+v, %v", docs, err)
	}
	doc, err := access.Artifact(ctx, id, docID)
	if err != nil || doc.Text == "" {
		t.Fatalf("Artifact = %+v, %v", doc, err)
	}
	if _, err := access.Artifact(ctx, id, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := access.Manuscript(ctx, id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected no manuscript, got %v", err)
	}
	if _, err := access.Reset(ctx, id); !errors.Is(err, projectaccess.ErrDaemonRequired) {
		t.Fatalf("expected ErrDaemonRequired, got %v", err)
	}
	stats, err := access.Stats(ctx, id)
	if err != nil || stats.Documents != 2 {
		t.Fatalf("Stats = %+v, %v", stats, err)
	}
	deleted, err := access.DeleteArtifact(ctx, id, docID)
	if err != nil || !deleted {
		t.Fatalf("DeleteArtifact = %v, %v", deleted, err)
	}
}

func TestOpenWithFallbackSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	t.Cleanup(srv.Close)

	opened := false
	_, err := projectaccess.OpenWithFallback(context.Background(),
		func() (*api.Client, error) { return api.NewClient(srv.URL, "wrong") },
		func() (*project.Catalog, error) {
			opened = true
			return nil, errors.New("should not be called")
		},
	)
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected the 401 to surface, got %v", err)
	}
	if opened {
		t.Fatal("catalog should not open when the daemon answered")
	}
}

func TestOpenWithFallbackPrefersDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"running":true,"pid":1,"runs":[]}`))
	}))
	t.Cleanup(srv.Close)

	session, err := projectaccess.OpenWithFallback(context.Background(),
		func() (*api.Client, error) { return api.NewClient(srv.URL, "") },
		nil,
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	if !session.Access.Remote() {
		t.Fatal("expected API-backed access")
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
