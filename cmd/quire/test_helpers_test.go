package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"quire/internal/artifact"
	"quire/internal/config"
	"quire/internal/hub"
	"quire/internal/project"
	"quire/internal/services/embedding"
	"quire/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

// setupCLITestEnv writes a config whose API address has nothing listening,
// so commands fall back to direct store access.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	for _, key := range []string{"QUIRE_LLM_API_KEY", "OPENAI_API_KEY", "QUIRE_DATA_DIR", "QUIRE_API_TOKEN"} {
		t.Setenv(key, "")
	}
	cfg := testsupport.NewConfig(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg.API.Bind = ln.Addr().String()
	_ = ln.Close()

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// seedProject stores a project with one chapter and an assembled
// manuscript, then releases the store.
func seedProject(t *testing.T, cfg *config.Config, title string) string {
	t.Helper()
	ctx := context.Background()
	catalog := project.NewCatalog(cfg, embedding.NewHasher(cfg.Store.Dimension), nil)
	id, _, err := catalog.Create(ctx, project.Params{Title: title, TargetLength: "short_story"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h, err := catalog.Hub(ctx, id)
	if err != nil {
		t.Fatalf("Hub: %v", err)
	}
	chapter := hub.Chapter{Index: 1, Title: "Storm", Text: "Mara climbed the tower as the storm broke."}
	put(t, h.Store(), hub.PartitionContent, hub.SchemaChapter, hub.TypeChapter, chapter)
	put(t, h.Store(), hub.PartitionAssembly, hub.SchemaManuscript, hub.TypeManuscript,
		hub.Manuscript{Title: title, Chapters: []hub.Chapter{chapter}, WordCount: 8})
	if err := catalog.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return id
}

func put(t *testing.T, store *artifact.Store, partition, schema, docType string, payload any) string {
	t.Helper()
	entry, err := artifact.NewEntry(partition, schema, docType, payload)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	return testsupport.MustPut(t, store, entry)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
