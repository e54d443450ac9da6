// =============================================================================
// Branch P&L Dashboard - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing the application
// configuration and the branch directory.
//
// CONFIGURATION SOURCES (later wins):
//   1. Built-in defaults (SetDefaults)
//   2. Main config file (config.yaml)
//   3. Environment variables prefixed PNL_ (nested keys use "_", e.g.
//      PNL_STORE_DSN), optionally loaded from a .env file
//   4. Command line flags bound by the cmd package
//
// DIRECTORY:
//   The company map and branch ids are a separate YAML document (see
//   directory.go). The built-in copy seeds the store on first run.
//
// =============================================================================

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // inbox.timezone must resolve on hosts without zoneinfo

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/branchpnl/pnl-dashboard/internal/pnl"
	"github.com/branchpnl/pnl-dashboard/internal/store"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "PNL"

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is the inbox scanned by the process command and the scheduler.
	// Default: "./input"
	InputDir string `mapstructure:"input_dir" yaml:"input_dir"`

	// InputArchiveDir receives spreadsheets after a successful upload.
	// Default: "./input_archive"
	InputArchiveDir string `mapstructure:"input_archive_dir" yaml:"input_archive_dir"`

	// OutputDir receives exports, processing summaries and error logs.
	// Default: "./output"
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`

	// DirectoryFile optionally points at a YAML directory that replaces the
	// built-in one when the store is seeded.
	DirectoryFile string `mapstructure:"directory_file" yaml:"directory_file"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of inbox files parsed at once.
	// Default: 4
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`

	// ContinueOnError keeps processing the inbox after a file fails.
	// Default: true
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error"`

	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Parser ParserConfig `mapstructure:"parser" yaml:"parser"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Inbox  InboxConfig  `mapstructure:"inbox" yaml:"inbox"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level: "debug", "info", "warn", "error". Default: "info"
	Level string `mapstructure:"level" yaml:"level"`

	// Format: "console" (text) or "json". Default: "console"
	Format string `mapstructure:"format" yaml:"format"`
}

// ParserConfig selects the layout strategy.
type ParserConfig struct {
	// LayoutMode: "heuristic", "fixed" or "auto". Default: "heuristic"
	LayoutMode string `mapstructure:"layout_mode" yaml:"layout_mode"`

	// HeaderScanRows is the last row searched for "Quarter Ending".
	// Default: 20
	HeaderScanRows int `mapstructure:"header_scan_rows" yaml:"header_scan_rows"`

	// Fixed holds the legacy template offsets (zero-based rows).
	Fixed FixedLayoutConfig `mapstructure:"fixed" yaml:"fixed"`

	// NetIncomeKeys are the line-item keys used for net income when the
	// sheet has no "Net Income" row. Default: net_income, net_income_loss
	NetIncomeKeys []string `mapstructure:"net_income_keys" yaml:"net_income_keys"`
}

// FixedLayoutConfig is the legacy template.
type FixedLayoutConfig struct {
	LocationRow int `mapstructure:"location_row" yaml:"location_row"`
	ScanStart   int `mapstructure:"scan_start" yaml:"scan_start"`
	ScanEnd     int `mapstructure:"scan_end" yaml:"scan_end"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver: "sqlite" or "postgres". Default: "sqlite"
	Driver string `mapstructure:"driver" yaml:"driver"`

	// DSN is the database file (sqlite) or connection string (postgres).
	// Default: "./data/pnl.db"
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	// Addr is the listen address. Default: ":8080"
	Addr string `mapstructure:"addr" yaml:"addr"`

	// MaxUploadMB caps the size of an uploaded workbook. Default: 20
	MaxUploadMB int `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

// InboxConfig schedules inbox scans while serving.
type InboxConfig struct {
	// Schedule is a standard five-field cron spec; empty disables the job.
	Schedule string `mapstructure:"schedule" yaml:"schedule"`

	// Timezone is the IANA zone the schedule runs in. Default: "UTC"
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// SetDefaults registers every key with its default so that environment
// overrides resolve for nested keys too.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("input_dir", "./input")
	v.SetDefault("input_archive_dir", "./input_archive")
	v.SetDefault("output_dir", "./output")
	v.SetDefault("directory_file", "")
	v.SetDefault("max_concurrency", 4)
	v.SetDefault("continue_on_error", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("parser.layout_mode", pnl.ModeHeuristic)
	v.SetDefault("parser.header_scan_rows", pnl.DefaultHeaderScanRows)
	v.SetDefault("parser.fixed.location_row", pnl.DefaultFixedLocationRow)
	v.SetDefault("parser.fixed.scan_start", pnl.DefaultFixedScanStart)
	v.SetDefault("parser.fixed.scan_end", pnl.DefaultFixedScanEnd)
	v.SetDefault("parser.net_income_keys", pnl.DefaultNetIncomeKeys)
	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("store.dsn", "./data/pnl.db")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("inbox.schedule", "")
	v.SetDefault("inbox.timezone", "UTC")
}

// BindEnv enables PNL_ environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the configuration held by v, applies defaults and validates.
func Load(v *viper.Viper) (*MainConfig, error) {
	var config MainConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// LoadMainConfig reads a config file plus environment overrides. An empty
// path uses defaults and the environment only.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return Load(v)
}

// applyMainConfigDefaults fills values a config file may have zeroed.
func applyMainConfigDefaults(config *MainConfig) {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
	if config.Parser.LayoutMode == "" {
		config.Parser.LayoutMode = pnl.ModeHeuristic
	}
	if config.Parser.HeaderScanRows <= 0 {
		config.Parser.HeaderScanRows = pnl.DefaultHeaderScanRows
	}
	if len(config.Parser.NetIncomeKeys) == 0 {
		config.Parser.NetIncomeKeys = append([]string(nil), pnl.DefaultNetIncomeKeys...)
	}
	if config.Store.Driver == "" {
		config.Store.Driver = store.DriverSQLite
	}
	if config.Server.MaxUploadMB <= 0 {
		config.Server.MaxUploadMB = 20
	}
	if config.Inbox.Timezone == "" {
		config.Inbox.Timezone = "UTC"
	}
}

// validateMainConfig validates the main configuration.
func validateMainConfig(config *MainConfig) error {
	if _, err := ParseLevel(config.Log.Level); err != nil {
		return err
	}
	switch config.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", config.Log.Format)
	}

	if _, err := config.Locator(); err != nil {
		return err
	}

	switch strings.ToLower(config.Store.Driver) {
	case store.DriverSQLite, "sqlite3", store.DriverPostgres, "pgx":
	default:
		return fmt.Errorf("invalid store driver: %s", config.Store.Driver)
	}
	if strings.TrimSpace(config.Store.DSN) == "" {
		return fmt.Errorf("store.dsn must be set")
	}

	if _, err := time.LoadLocation(config.Inbox.Timezone); err != nil {
		return fmt.Errorf("invalid inbox timezone %q: %w", config.Inbox.Timezone, err)
	}
	if config.Inbox.Schedule != "" {
		if _, err := cron.ParseStandard(config.Inbox.Schedule); err != nil {
			return fmt.Errorf("invalid inbox schedule %q: %w", config.Inbox.Schedule, err)
		}
	}
	return nil
}

// EnsureDirs creates the inbox, archive and output directories.
func (c *MainConfig) EnsureDirs() error {
	for _, dir := range []string{c.InputDir, c.InputArchiveDir, c.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// Locator builds the configured layout strategy.
func (c *MainConfig) Locator() (pnl.HeaderLocator, error) {
	return pnl.NewLocator(c.Parser.LayoutMode,
		pnl.HeuristicLocator{MaxScanRow: c.Parser.HeaderScanRows},
		pnl.FixedLocator{
			LocationRow: c.Parser.Fixed.LocationRow,
			ScanStart:   c.Parser.Fixed.ScanStart,
			ScanEnd:     c.Parser.Fixed.ScanEnd,
		})
}

// ParserOptions returns the parser options for this configuration.
func (c *MainConfig) ParserOptions(logger *slog.Logger) (pnl.Options, error) {
	locator, err := c.Locator()
	if err != nil {
		return pnl.Options{}, err
	}
	return pnl.Options{
		Locator:       locator,
		NetIncomeKeys: c.Parser.NetIncomeKeys,
		Logger:        logger,
	}, nil
}

// Location returns the time zone of the inbox schedule.
func (c *MainConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Inbox.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
