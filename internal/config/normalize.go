package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	c.normalizeUpload()
	c.normalizeCollaborators()
	c.normalizeObjectStore()
	c.normalizeAnalysis()
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = filepath.Join(c.Paths.DataDir, "staging")
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = envFallback(c.Paths.APIToken, "LEAFLENS_API_TOKEN")
	return nil
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "", "sqlite3", DriverSQLite:
		c.Database.Driver = DriverSQLite
	case "postgres", "postgresql", DriverPgx:
		c.Database.Driver = DriverPgx
	}
	c.Database.DSN = envFallback(c.Database.DSN, "LEAFLENS_DATABASE_DSN")
	if c.Database.Driver != DriverSQLite {
		return nil
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = filepath.Join(c.Paths.DataDir, defaultDatabaseFile)
	}
	var err error
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeUpload() {
	c.Upload.OwnerID = strings.TrimSpace(c.Upload.OwnerID)
	if c.Upload.OwnerID == "" {
		c.Upload.OwnerID = defaultOwnerID
	}
	c.Upload.Bucket = strings.TrimSpace(c.Upload.Bucket)
	if c.Upload.Bucket == "" {
		c.Upload.Bucket = defaultBucket
	}
	if len(c.Upload.Strategies) == 0 {
		c.Upload.Strategies = append([]string(nil), DefaultStrategies...)
	} else {
		strategies := make([]string, 0, len(c.Upload.Strategies))
		for _, name := range c.Upload.Strategies {
			if normalized := strings.ToLower(strings.TrimSpace(name)); normalized != "" {
				strategies = append(strategies, normalized)
			}
		}
		c.Upload.Strategies = strategies
	}
	if c.Upload.RequestTimeout <= 0 {
		c.Upload.RequestTimeout = defaultUploadTimeout
	}
	if c.Upload.InlineCeilingBytes <= 0 {
		c.Upload.InlineCeilingBytes = defaultInlineCeilingBytes
	}
	if c.Upload.DelegatedMaxBytes < 0 {
		c.Upload.DelegatedMaxBytes = 0
	}
}

func (c *Config) normalizeCollaborators() {
	c.ControlPlane.URL = strings.TrimSpace(c.ControlPlane.URL)
	c.ControlPlane.APIKey = envFallback(c.ControlPlane.APIKey, "LEAFLENS_CONTROL_PLANE_KEY")
	c.Ingest.URL = strings.TrimSpace(c.Ingest.URL)
	c.Ingest.APIKey = envFallback(c.Ingest.APIKey, "LEAFLENS_INGEST_KEY")
	c.Analyzer.URL = strings.TrimSpace(c.Analyzer.URL)
	c.Analyzer.APIKey = envFallback(c.Analyzer.APIKey, "LEAFLENS_ANALYZER_KEY")
	c.Vision.APIKey = envFallback(c.Vision.APIKey, "GOOGLE_API_KEY")
	c.Vision.CredentialsFile = strings.TrimSpace(c.Vision.CredentialsFile)
	if c.Vision.CredentialsFile != "" {
		if expanded, err := expandPath(c.Vision.CredentialsFile); err == nil {
			c.Vision.CredentialsFile = expanded
		}
	}
	c.Gemini.APIKey = envFallback(c.Gemini.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultGeminiModel
	}
}

func (c *Config) normalizeObjectStore() {
	c.ObjectStore.Endpoint = strings.TrimSpace(c.ObjectStore.Endpoint)
	c.ObjectStore.Bucket = strings.TrimSpace(c.ObjectStore.Bucket)
	if c.ObjectStore.Bucket == "" {
		c.ObjectStore.Bucket = c.Upload.Bucket
	}
	c.ObjectStore.Region = strings.TrimSpace(c.ObjectStore.Region)
	if c.ObjectStore.Region == "" {
		c.ObjectStore.Region = defaultObjectStoreRegion
	}
	c.ObjectStore.AccessKeyID = envFallback(c.ObjectStore.AccessKeyID, "AWS_ACCESS_KEY_ID")
	c.ObjectStore.SecretAccessKey = envFallback(c.ObjectStore.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	if c.ObjectStore.PresignTTL <= 0 {
		c.ObjectStore.PresignTTL = defaultObjectStorePresign
	}
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.Provider = strings.ToLower(strings.TrimSpace(c.Analysis.Provider))
	if c.Analysis.Provider == "" {
		c.Analysis.Provider = defaultAnalysisProvider
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = defaultAnalysisTimeout
	}
	if c.Analysis.MaxResults <= 0 {
		c.Analysis.MaxResults = 10
	}
	if c.Analysis.Burst <= 0 {
		c.Analysis.Burst = 1
	}
	c.Analysis.ImageBaseURL = strings.TrimRight(strings.TrimSpace(c.Analysis.ImageBaseURL), "/")
}

func (c *Config) normalizeCatalog() error {
	if strings.TrimSpace(c.Catalog.Path) == "" {
		c.Catalog.Path = filepath.Join(c.Paths.DataDir, defaultCatalogFile)
	}
	var err error
	if c.Catalog.Path, err = expandPath(c.Catalog.Path); err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	c.Catalog.SearchURL = strings.TrimSpace(c.Catalog.SearchURL)
	c.Catalog.SearchAPIKey = envFallback(c.Catalog.SearchAPIKey, "LEAFLENS_CATALOG_KEY")
	if c.Catalog.SearchLimit <= 0 {
		c.Catalog.SearchLimit = 5
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// envFallback trims value and, when empty, returns the first non-empty
// environment variable among keys.
func envFallback(value string, keys ...string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	for _, key := range keys {
		if env, ok := os.LookupEnv(key); ok && strings.TrimSpace(env) != "" {
			return strings.TrimSpace(env)
		}
	}
	return ""
}
