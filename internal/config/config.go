package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/ingest"
	"github.com/Veraticus/the-trades-must-flow/internal/preset"
	"github.com/Veraticus/the-trades-must-flow/internal/sniffer"
	"github.com/Veraticus/the-trades-must-flow/internal/upsert"
)

// Storage and database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverLocal    = "local"
	DriverSupabase = "supabase"
)

// DefaultTimezone interprets timestamps that carry no zone.
const DefaultTimezone = "America/New_York"

// SetDefaults registers default values for every key.
func SetDefaults() {
	viper.SetDefault("database.driver", DriverSQLite)
	viper.SetDefault("database.path", DataPath("trades.db"))
	viper.SetDefault("storage.driver", DriverLocal)
	viper.SetDefault("storage.path", DataPath("blobs"))
	viper.SetDefault("storage.bucket", "imports")
	viper.SetDefault("import.chunk_size", ingest.DefaultChunkSize)
	viper.SetDefault("import.batch_size", upsert.DefaultBatchSize)
	viper.SetDefault("import.sample_size", sniffer.DefaultSampleSize)
	viper.SetDefault("import.preset_threshold", preset.DefaultThreshold)
	viper.SetDefault("import.strategy", string(upsert.StrategyBisect))
	viper.SetDefault("import.max_bisect_depth", upsert.DefaultMaxDepth)
	viper.SetDefault("import.lease_ttl", ingest.DefaultLeaseTTL)
	viper.SetDefault("import.errors_url_ttl", 7*24*time.Hour)
	viper.SetDefault("import.timezone", DefaultTimezone)
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("expiry.schedule", "@every 5m")
}

// DatabaseConfig selects the execution store.
type DatabaseConfig struct {
	Driver string
	Path   string
	URL    string
}

// LoadDatabaseConfig loads the store settings.
func LoadDatabaseConfig() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{
		Driver: strings.ToLower(viper.GetString("database.driver")),
		Path:   ExpandPath(viper.GetString("database.path")),
		URL:    viper.GetString("database.url"),
	}

	switch cfg.Driver {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: database.path is empty", common.ErrMissingConfig)
		}
	case DriverPostgres:
		if cfg.URL == "" {
			return nil, fmt.Errorf("%w: database.url is required for postgres", common.ErrMissingConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown database.driver %q", common.ErrInvalidConfig, cfg.Driver)
	}
	return cfg, nil
}

// StorageConfig selects the blob store.
type StorageConfig struct {
	Driver        string
	Path          string
	PublicURL     string
	SigningSecret string
	SupabaseURL   string
	SupabaseKey   string
	Bucket        string
}

// LoadStorageConfig loads the blob store settings. Local signed links are
// keyed with storage.signing_secret, falling back to auth.jwt_secret.
func LoadStorageConfig() (*StorageConfig, error) {
	cfg := &StorageConfig{
		Driver:        strings.ToLower(viper.GetString("storage.driver")),
		Path:          ExpandPath(viper.GetString("storage.path")),
		PublicURL:     viper.GetString("storage.public_url"),
		SigningSecret: viper.GetString("storage.signing_secret"),
		SupabaseURL:   viper.GetString("storage.supabase_url"),
		SupabaseKey:   viper.GetString("storage.supabase_key"),
		Bucket:        viper.GetString("storage.bucket"),
	}
	if cfg.SigningSecret == "" {
		cfg.SigningSecret = viper.GetString("auth.jwt_secret")
	}

	switch cfg.Driver {
	case DriverLocal:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: storage.path is empty", common.ErrMissingConfig)
		}
	case DriverSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" || cfg.Bucket == "" {
			return nil, fmt.Errorf("%w: storage.supabase_url, storage.supabase_key and storage.bucket are required", common.ErrMissingConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown storage.driver %q", common.ErrInvalidConfig, cfg.Driver)
	}
	return cfg, nil
}

// ImportConfig tunes the ingest pipeline.
type ImportConfig struct {
	Location        *time.Location
	Strategy        upsert.Strategy
	Timezone        string
	ChunkSize       int
	BatchSize       int
	SampleSize      int
	MaxBisectDepth  int
	PresetThreshold float64
	LeaseTTL        time.Duration
	ErrorsURLTTL    time.Duration
}

// LoadImportConfig loads and validates the import settings.
func LoadImportConfig() (*ImportConfig, error) {
	strategy, err := upsert.ParseStrategy(viper.GetString("import.strategy"))
	if err != nil {
		return nil, err
	}

	cfg := &ImportConfig{
		Strategy:        strategy,
		Timezone:        viper.GetString("import.timezone"),
		ChunkSize:       viper.GetInt("import.chunk_size"),
		BatchSize:       viper.GetInt("import.batch_size"),
		SampleSize:      viper.GetInt("import.sample_size"),
		MaxBisectDepth:  viper.GetInt("import.max_bisect_depth"),
		PresetThreshold: viper.GetFloat64("import.preset_threshold"),
		LeaseTTL:        viper.GetDuration("import.lease_ttl"),
		ErrorsURLTTL:    viper.GetDuration("import.errors_url_ttl"),
	}

	switch {
	case cfg.ChunkSize < 1 || cfg.ChunkSize > ingest.MaxChunkSize:
		return nil, fmt.Errorf("%w: import.chunk_size must be between 1 and %d", common.ErrInvalidConfig, ingest.MaxChunkSize)
	case cfg.BatchSize < 1 || cfg.BatchSize > upsert.MaxBatchSize:
		return nil, fmt.Errorf("%w: import.batch_size must be between 1 and %d", common.ErrInvalidConfig, upsert.MaxBatchSize)
	case cfg.PresetThreshold <= 0 || cfg.PresetThreshold > 1:
		return nil, fmt.Errorf("%w: import.preset_threshold must be in (0, 1]", common.ErrInvalidConfig)
	case cfg.LeaseTTL <= 0:
		return nil, fmt.Errorf("%w: import.lease_ttl must be positive", common.ErrInvalidConfig)
	}

	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: import.timezone: %w", common.ErrInvalidConfig, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// IngestOptions converts the settings for an ingest controller.
func (c *ImportConfig) IngestOptions() ingest.Options {
	return ingest.Options{
		Location:        c.Location,
		PresetThreshold: c.PresetThreshold,
		SampleSize:      c.SampleSize,
		LeaseTTL:        c.LeaseTTL,
		ErrorsURLTTL:    c.ErrorsURLTTL,
		Upsert: upsert.Options{
			Strategy:  c.Strategy,
			BatchSize: c.BatchSize,
			MaxDepth:  c.MaxBisectDepth,
		},
	}
}

// ServerConfig configures `trades serve`.
type ServerConfig struct {
	Addr           string
	JWTSecret      string
	ExpirySchedule string
}

// LoadServerConfig loads the HTTP server settings.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{
		Addr:           viper.GetString("server.addr"),
		JWTSecret:      viper.GetString("auth.jwt_secret"),
		ExpirySchedule: viper.GetString("expiry.schedule"),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: auth.jwt_secret is required to serve", common.ErrMissingConfig)
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: server.addr is empty", common.ErrMissingConfig)
	}
	return cfg, nil
}

// MatchingConfig points at the matching engine. An empty URL only logs.
type MatchingConfig struct {
	WebhookURL string
	Token      string
}

// LoadMatchingConfig loads the matching trigger settings.
func LoadMatchingConfig() MatchingConfig {
	return MatchingConfig{
		WebhookURL: viper.GetString("matching.webhook_url"),
		Token:      viper.GetString("matching.token"),
	}
}
