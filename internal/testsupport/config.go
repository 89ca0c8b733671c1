package testsupport

import (
	"path/filepath"
	"testing"

	"leaflens/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.APIToken = ""
	cfgVal.Database.Driver = config.DriverSQLite
	cfgVal.Database.Path = filepath.Join(base, "data", "leaflens.db")
	cfgVal.Catalog.Path = filepath.Join(base, "data", "catalog.json")
	cfgVal.Catalog.Watch = false
	cfgVal.Upload.OwnerID = "tester"
	cfgVal.Upload.Bucket = "scans"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithControlPlane points the control plane client at url.
func WithControlPlane(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ControlPlane.URL = url
	}
}

// WithAnalyzer selects the HTTP analysis backend at url.
func WithAnalyzer(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Analysis.Provider = config.ProviderHTTP
		b.cfg.Analyzer.URL = url
	}
}

// WithStrategies overrides the upload strategy order.
func WithStrategies(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.Strategies = append([]string(nil), names...)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
