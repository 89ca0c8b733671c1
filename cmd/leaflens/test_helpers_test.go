package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"leaflens/internal/analysis"
	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/testsupport"
	"leaflens/internal/upload"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

// setupCLITestEnv writes a config backed by a fake control plane and
// analyzer that recognise every photo as an English oak.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	remote := httptest.NewServer(fakeRemoteHandler())
	t.Cleanup(remote.Close)

	base := []testsupport.ConfigOption{
		testsupport.WithControlPlane(remote.URL),
		testsupport.WithAnalyzer(remote.URL),
		testsupport.WithStrategies(config.StrategyInline),
	}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	env := &cliTestEnv{
		cfg:        cfg,
		configPath: filepath.Join(testsupport.BaseDir(cfg), "leaflens.toml"),
		baseDir:    testsupport.BaseDir(cfg),
	}
	writeTestConfig(t, env.configPath, cfg)
	return env
}

func (e *cliTestEnv) writeCatalog(t *testing.T) {
	t.Helper()
	if err := catalog.Write(e.cfg.Catalog.Path, []catalog.Entry{
		{ID: "quercus-robur", Name: "Quercus robur", Aliases: []string{"English oak"}, Tags: []string{"lobed leaf", "tree"}},
		{ID: "acer-rubrum", Name: "Acer rubrum", Aliases: []string{"Red maple"}, Tags: []string{"palmate leaf", "tree"}},
	}); err != nil {
		t.Fatalf("catalog.Write: %v", err)
	}
}

func (e *cliTestEnv) writePhotos(t *testing.T, n int) []string {
	t.Helper()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(e.baseDir, "photos", "leaf"+string(rune('a'+i))+".jpg")
		if err := os.MkdirAll(filepath.Dir(paths[i]), 0o755); err != nil {
			t.Fatalf("mkdir photos: %v", err)
		}
		if err := os.WriteFile(paths[i], testsupport.WriteJPEG(t, 64, 48), 0o644); err != nil {
			t.Fatalf("write photo: %v", err)
		}
	}
	return paths
}

func fakeRemoteHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/uploads/inline", func(w http.ResponseWriter, r *http.Request) {
		var req upload.Base64Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(upload.Stored{ID: "obj-" + req.Path})
	})
	mux.HandleFunc("POST /analyze", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(analysis.Payload{
			Labels: []analysis.PayloadFeature{{Description: "Lobed leaf", Score: 0.8}},
			Text:   "Quercus robur",
		})
	})
	return mux
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
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
