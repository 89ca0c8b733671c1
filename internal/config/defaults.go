package config

const (
	defaultConfigPath          = "~/.config/leaflens/config.toml"
	defaultDataDir             = "~/.local/share/leaflens"
	defaultAPIBind             = "127.0.0.1:7650"
	defaultDatabaseFile        = "leaflens.db"
	defaultCatalogFile         = "catalog.json"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	defaultOwnerID             = "anonymous"
	defaultBucket              = "scans"
	defaultDelegatedMaxBytes   = 1 << 20
	defaultInlineCeilingBytes  = 3_300_000
	defaultUploadTimeout       = 30
	defaultAnalysisProvider    = ProviderVision
	defaultAnalysisTimeout     = 60
	defaultGeminiModel         = "gemini-2.0-flash"
	defaultObjectStoreRegion   = "us-east-1"
	defaultObjectStorePresign  = 300
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultNotifyTimeout       = 10

	// DriverSQLite selects the embedded modernc.org/sqlite store.
	DriverSQLite = "sqlite"
	// DriverPgx selects Postgres through the pgx stdlib driver.
	DriverPgx = "pgx"

	ProviderVision = "vision"
	ProviderGemini = "gemini"
	ProviderHTTP   = "http"

	StrategySigned    = "signed"
	StrategyDelegated = "delegated"
	StrategyInline    = "inline"
)

// DefaultStrategies is the upload chain order when none is configured.
var DefaultStrategies = []string{StrategySigned, StrategyDelegated, StrategyInline}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Database: Database{
			Driver: DriverSQLite,
		},
		Compression: Compression{
			TargetBytes:    1_500_000,
			MaxDimension:   2048,
			MinDimension:   256,
			InitialQuality: 0.92,
			QualityStep:    0.15,
			QualityFloor:   0.5,
			QualityReset:   0.85,
			DimensionRatio: 0.8,
			MaxAttempts:    6,
		},
		Upload: Upload{
			OwnerID:            defaultOwnerID,
			Bucket:             defaultBucket,
			Strategies:         append([]string(nil), DefaultStrategies...),
			DelegatedMaxBytes:  defaultDelegatedMaxBytes,
			InlineCeilingBytes: defaultInlineCeilingBytes,
			RequestTimeout:     defaultUploadTimeout,
		},
		ObjectStore: ObjectStore{
			Region:     defaultObjectStoreRegion,
			PresignTTL: defaultObjectStorePresign,
		},
		Analysis: Analysis{
			Provider:          defaultAnalysisProvider,
			TimeoutSeconds:    defaultAnalysisTimeout,
			MaxResults:        10,
			RequestsPerSecond: 2,
			Burst:             2,
		},
		Gemini: Gemini{
			Model: defaultGeminiModel,
		},
		Catalog: Catalog{
			Watch:       true,
			SearchLimit: 5,
		},
		Matching: Matching{
			RepetitionBonus: 0.15,
			ConfidenceFloor: 40,
			MaxCandidates:   5,
			LabelWeight:     1.0,
			EntityWeight:    1.0,
			NameWeight:      3.0,
			AliasWeight:     2.5,
			Saturation:      1.5,
		},
		Workflow: Workflow{
			PollInterval:          5,
			HeartbeatInterval:     defaultHeartbeatInterval,
			HeartbeatTimeout:      defaultHeartbeatTimeout,
			StagingRetentionHours: 24,
			MaxImages:             3,
			MaxConcurrentScans:    2,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Matched:        true,
			Unmatched:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
