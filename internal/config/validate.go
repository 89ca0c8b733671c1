package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateDatabase,
		c.validateCompression,
		c.validateUpload,
		c.validateObjectStore,
		c.validateAnalysis,
		c.validateMatching,
		c.validateWorkflow,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database.path must be set for the sqlite driver")
		}
	case DriverPgx:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required for the pgx driver (or set LEAFLENS_DATABASE_DSN)")
		}
	default:
		return fmt.Errorf("database.driver: unsupported value %q (want sqlite or pgx)", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateCompression() error {
	cc := c.Compression
	if err := ensurePositiveMap(map[string]int{
		"compression.target_bytes":  cc.TargetBytes,
		"compression.max_dimension": cc.MaxDimension,
		"compression.min_dimension": cc.MinDimension,
		"compression.max_attempts":  cc.MaxAttempts,
	}); err != nil {
		return err
	}
	if cc.MinDimension > cc.MaxDimension {
		return errors.New("compression.min_dimension must not exceed compression.max_dimension")
	}
	for key, value := range map[string]float64{
		"compression.initial_quality": cc.InitialQuality,
		"compression.quality_floor":   cc.QualityFloor,
		"compression.quality_reset":   cc.QualityReset,
	} {
		if value <= 0 || value > 1 {
			return fmt.Errorf("%s must be in (0, 1]", key)
		}
	}
	if cc.QualityFloor > cc.InitialQuality {
		return errors.New("compression.quality_floor must not exceed compression.initial_quality")
	}
	if cc.QualityStep <= 0 || cc.QualityStep >= 1 {
		return errors.New("compression.quality_step must be in (0, 1)")
	}
	if cc.DimensionRatio <= 0 || cc.DimensionRatio >= 1 {
		return errors.New("compression.dimension_ratio must be in (0, 1)")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if len(c.Upload.Strategies) == 0 {
		return errors.New("upload.strategies must list at least one strategy")
	}
	seen := make(map[string]struct{}, len(c.Upload.Strategies))
	for _, name := range c.Upload.Strategies {
		switch name {
		case StrategySigned, StrategyDelegated, StrategyInline:
		default:
			return fmt.Errorf("upload.strategies: unknown strategy %q", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("upload.strategies: duplicate strategy %q", name)
		}
		seen[name] = struct{}{}
	}
	if c.Upload.InlineCeilingBytes <= 0 {
		return errors.New("upload.inline_ceiling_bytes must be positive")
	}
	return nil
}

func (c *Config) validateObjectStore() error {
	if !c.ObjectStore.Enabled {
		return nil
	}
	if strings.TrimSpace(c.ObjectStore.Bucket) == "" {
		return errors.New("object_store.bucket must be set when object_store.enabled is true")
	}
	if strings.TrimSpace(c.ObjectStore.Region) == "" {
		return errors.New("object_store.region must be set when object_store.enabled is true")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	switch c.Analysis.Provider {
	case ProviderVision, ProviderGemini:
	case ProviderHTTP:
		if c.Analyzer.URL == "" {
			return errors.New("analyzer.url must be set when analysis.provider is \"http\"")
		}
	default:
		return fmt.Errorf("analysis.provider: unsupported value %q (want vision, gemini, or http)", c.Analysis.Provider)
	}
	if c.Analysis.RequestsPerSecond < 0 {
		return errors.New("analysis.requests_per_second must be >= 0 (0 disables rate limiting)")
	}
	return nil
}

func (c *Config) validateMatching() error {
	m := c.Matching
	if m.RepetitionBonus < 0 || m.RepetitionBonus > 1 {
		return errors.New("matching.repetition_bonus must be between 0 and 1")
	}
	if m.ConfidenceFloor < 0 || m.ConfidenceFloor > 100 {
		return errors.New("matching.confidence_floor must be between 0 and 100")
	}
	if m.MaxCandidates <= 0 {
		return errors.New("matching.max_candidates must be positive")
	}
	for key, value := range map[string]float64{
		"matching.label_weight":  m.LabelWeight,
		"matching.entity_weight": m.EntityWeight,
		"matching.alias_weight":  m.AliasWeight,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	if m.NameWeight <= 0 {
		return errors.New("matching.name_weight must be positive")
	}
	if m.Saturation <= 0 {
		return errors.New("matching.saturation must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":           c.Workflow.PollInterval,
		"workflow.max_images":              c.Workflow.MaxImages,
		"workflow.max_concurrent_scans":    c.Workflow.MaxConcurrentScans,
		"workflow.staging_retention_hours": c.Workflow.StagingRetentionHours,
		"notifications.request_timeout":    c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
