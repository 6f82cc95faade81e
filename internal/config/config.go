package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mauv0809/concession-impact/internal/models"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Warehouse sources.
const (
	SourcePostgres = "postgres"
	SourceHTTP     = "http"
)

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Port     string `mapstructure:"PORT"`

	WarehouseSource string `mapstructure:"WAREHOUSE_SOURCE"`
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32  `mapstructure:"DB_MIN_CONNS"`
	WarehouseAPIURL string `mapstructure:"WAREHOUSE_API_URL"`
	WarehouseAPIKey string `mapstructure:"WAREHOUSE_API_KEY"`

	DataDir             string `mapstructure:"DATA_DIR"`
	UseCacheConcessions bool   `mapstructure:"USE_CACHE_CONCESSIONS"`
	UseCacheTariff      bool   `mapstructure:"USE_CACHE_TARIFF"`
	UseCachePrescribing bool   `mapstructure:"USE_CACHE_PRESCRIBING"`

	PrescribingStart   string `mapstructure:"PRESCRIBING_START"`
	MeasurementWindow  int    `mapstructure:"MEASUREMENT_WINDOW"`
	ImpactExportPath   string `mapstructure:"IMPACT_EXPORT_PATH"`
	EpisodesExportPath string `mapstructure:"EPISODES_EXPORT_PATH"`
	ImpactParquetPath  string `mapstructure:"IMPACT_PARQUET_PATH"`
	SummaryMonths      int    `mapstructure:"SUMMARY_MONTHS"`
}

var defaults = map[string]interface{}{
	"ENV":                   "development",
	"LOG_LEVEL":             "info",
	"PORT":                  "8080",
	"WAREHOUSE_SOURCE":      SourcePostgres,
	"DB_MAX_CONNS":          4,
	"DB_MIN_CONNS":          1,
	"DATA_DIR":              "data",
	"USE_CACHE_CONCESSIONS": false,
	"USE_CACHE_TARIFF":      false,
	"USE_CACHE_PRESCRIBING": true,
	"PRESCRIBING_START":     "2022-04-01",
	"MEASUREMENT_WINDOW":    3,
	"IMPACT_EXPORT_PATH":    filepath.Join("data", "3_months_post.csv"),
	"SUMMARY_MONTHS":        24,
}

// unbound keys have no default but must still be read from the environment.
var unbound = []string{
	"DATABASE_URL",
	"WAREHOUSE_API_URL",
	"WAREHOUSE_API_KEY",
	"EPISODES_EXPORT_PATH",
	"IMPACT_PARQUET_PATH",
}

// Load reads configuration from the environment and an optional .env file.
// It does not validate; commands call Validate or RequireDatabase for the
// settings they need.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		v.BindEnv(key)
	}
	for _, key := range unbound {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// PrescribingSince returns PRESCRIBING_START as a month.
func (c *Config) PrescribingSince() (models.Month, error) {
	m, err := models.ParseMonth(c.PrescribingStart)
	if err != nil {
		return 0, fmt.Errorf("%w: PRESCRIBING_START %q: %v", ErrInvalidConfig, c.PrescribingStart, err)
	}
	return m, nil
}

// Validate checks the settings needed to run the pipeline.
func (c *Config) Validate() error {
	switch c.WarehouseSource {
	case SourcePostgres:
		if err := c.RequireDatabase(); err != nil {
			return err
		}
	case SourceHTTP:
		if c.WarehouseAPIURL == "" {
			return fmt.Errorf("%w: WAREHOUSE_API_URL is required for the http source", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown WAREHOUSE_SOURCE %q", ErrInvalidConfig, c.WarehouseSource)
	}

	if c.MeasurementWindow < 1 {
		return fmt.Errorf("%w: MEASUREMENT_WINDOW must be at least 1, got %d", ErrInvalidConfig, c.MeasurementWindow)
	}
	if _, err := c.PrescribingSince(); err != nil {
		return err
	}
	if c.ImpactExportPath == "" {
		return fmt.Errorf("%w: IMPACT_EXPORT_PATH is required", ErrInvalidConfig)
	}
	return nil
}

// RequireDatabase checks that a database connection is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required", ErrInvalidConfig)
	}
	return nil
}

// CachePath joins name onto the data directory.
func (c *Config) CachePath(name string) string {
	return filepath.Join(c.DataDir, name)
}
