package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Database selects the scan record store.
type Database struct {
	Driver string `toml:"driver"` // sqlite or pgx
	Path   string `toml:"path"`   // sqlite file, defaults under data_dir
	DSN    string `toml:"dsn"`    // postgres connection string for pgx
}

// Compression tunes the two-phase quality-then-resolution loop.
type Compression struct {
	TargetBytes    int     `toml:"target_bytes"`
	MaxDimension   int     `toml:"max_dimension"`
	MinDimension   int     `toml:"min_dimension"`
	InitialQuality float64 `toml:"initial_quality"`
	QualityStep    float64 `toml:"quality_step"`
	QualityFloor   float64 `toml:"quality_floor"`
	QualityReset   float64 `toml:"quality_reset"`
	DimensionRatio float64 `toml:"dimension_ratio"`
	MaxAttempts    int     `toml:"max_attempts"`
}

// Upload configures the upload broker strategy chain.
type Upload struct {
	OwnerID            string   `toml:"owner_id"`
	Bucket             string   `toml:"bucket"`
	Strategies         []string `toml:"strategies"`
	DelegatedMaxBytes  int      `toml:"delegated_max_bytes"`
	InlineCeilingBytes int      `toml:"inline_ceiling_bytes"`
	RequestTimeout     int      `toml:"request_timeout"`
}

// ControlPlane points at the primary control-plane API (credentials, finalize, inline uploads).
type ControlPlane struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// Ingest points at the optional lightweight ingestion endpoint.
type Ingest struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// ObjectStore enables a local S3-compatible credential issuer for signed transfers.
type ObjectStore struct {
	Enabled         bool   `toml:"enabled"`
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
	PresignTTL      int    `toml:"presign_ttl"`
}

// Analysis configures the analysis invoker and selects its backend.
type Analysis struct {
	Provider          string  `toml:"provider"` // vision, gemini, or http
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	MaxResults        int     `toml:"max_results"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	ImageBaseURL      string  `toml:"image_base_url"`
}

// Vision contains Google Cloud Vision credentials.
type Vision struct {
	APIKey          string `toml:"api_key"`
	CredentialsFile string `toml:"credentials_file"`
}

// Gemini contains settings for the Gemini multimodal backend.
type Gemini struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// Analyzer points at a generic HTTP analysis service.
type Analyzer struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// Catalog configures the reference catalog snapshot and the search fallback.
type Catalog struct {
	Path         string `toml:"path"`
	Watch        bool   `toml:"watch"`
	SearchURL    string `toml:"search_url"`
	SearchAPIKey string `toml:"search_api_key"`
	SearchLimit  int    `toml:"search_limit"`
}

// Matching holds the product-tuned scoring constants.
type Matching struct {
	RepetitionBonus float64 `toml:"repetition_bonus"`
	ConfidenceFloor int     `toml:"confidence_floor"`
	MaxCandidates   int     `toml:"max_candidates"`
	LabelWeight     float64 `toml:"label_weight"`
	EntityWeight    float64 `toml:"entity_weight"`
	NameWeight      float64 `toml:"name_weight"`
	AliasWeight     float64 `toml:"alias_weight"`
	Saturation      float64 `toml:"saturation"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	PollInterval          int `toml:"poll_interval"`
	HeartbeatInterval     int `toml:"heartbeat_interval"`
	HeartbeatTimeout      int `toml:"heartbeat_timeout"`
	StagingRetentionHours int `toml:"staging_retention_hours"`
	MaxImages             int `toml:"max_images"`
	MaxConcurrentScans    int `toml:"max_concurrent_scans"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Matched        bool   `toml:"matched"`
	Unmatched      bool   `toml:"unmatched"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for leaflens.
//
// Configuration sections by subsystem:
//   - Paths, Database: local state and the scan record store
//   - Compression, Upload, ControlPlane, Ingest, ObjectStore: ingestion
//   - Analysis, Vision, Gemini, Analyzer: annotation backends
//   - Catalog, Matching: reference catalog and scoring
//   - Workflow, Notifications, Logging: daemon behaviour
type Config struct {
	Paths         Paths         `toml:"paths"`
	Database      Database      `toml:"database"`
	Compression   Compression   `toml:"compression"`
	Upload        Upload        `toml:"upload"`
	ControlPlane  ControlPlane  `toml:"control_plane"`
	Ingest        Ingest        `toml:"ingest"`
	ObjectStore   ObjectStore   `toml:"object_store"`
	Analysis      Analysis      `toml:"analysis"`
	Vision        Vision        `toml:"vision"`
	Gemini        Gemini        `toml:"gemini"`
	Analyzer      Analyzer      `toml:"analyzer"`
	Catalog       Catalog       `toml:"catalog"`
	Matching      Matching      `toml:"matching"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Normalize applies path expansion and environment fallbacks. Load calls it;
// tests that build a Config by hand call it before Validate.
func (c *Config) Normalize() error {
	return c.normalize()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("leaflens.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Database.Driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(c.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	return nil
}

// AnalysisTimeout returns the bounded wait for one analysis submission.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutSeconds) * time.Second
}

// PollInterval returns the workflow poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// HeartbeatInterval returns how often in-flight scans refresh their heartbeat.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns the age after which an in-flight scan is considered abandoned.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeout) * time.Second
}

// StagingRetention returns how long raw images of a pending scan stay staged.
func (c *Config) StagingRetention() time.Duration {
	return time.Duration(c.Workflow.StagingRetentionHours) * time.Hour
}

// UploadTimeout returns the per-request timeout for upload collaborators.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Upload.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
