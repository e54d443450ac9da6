// =============================================================================
// Branch P&L Dashboard - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every subcommand is
// attached here.
//
// COBRA CLI STRUCTURE:
//   rootCmd (pnl)
//   ├── parseCmd      (pnl parse FILE)
//   ├── uploadCmd     (pnl upload FILE --year --quarter)
//   ├── processCmd    (pnl process)
//   ├── quartersCmd   (pnl quarters list|show|delete)
//   ├── exportCmd     (pnl export ID)
//   ├── directoryCmd  (pnl directory show|import|reset)
//   ├── serveCmd      (pnl serve)
//   └── versionCmd    (pnl version)
//
// CONFIGURATION:
//   PersistentPreRunE loads .env, then config.yaml and PNL_ environment
//   overrides through viper, then installs the slog default logger.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/branchpnl/pnl-dashboard/internal/config"
	"github.com/branchpnl/pnl-dashboard/internal/converter"
	"github.com/branchpnl/pnl-dashboard/internal/pnl"
	"github.com/branchpnl/pnl-dashboard/internal/store"
	"github.com/branchpnl/pnl-dashboard/pkg/utils"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

var (
	// cfgFile is the main configuration file. Empty searches ./config.yaml.
	cfgFile string

	// envFile is loaded into the environment before the config is read.
	envFile string

	// v holds flags, file and environment settings for the current run.
	v = viper.New()

	// appConfig is the validated configuration, set by initConfig.
	appConfig *config.MainConfig

	logger = slog.Default()
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "pnl",
	Short: "Branch P&L Dashboard - ingest quarterly P&L workbooks per branch",
	Long: `pnl parses quarterly profit and loss workbooks into per-branch records,
stores one document per quarter and serves them to the dashboard.

Example Usage:
  pnl parse ./Q3_2024.xlsx               # Parse only, print a summary
  pnl upload ./report.xlsx --year 2024 --quarter Q3
  pnl process                            # Upload everything in the inbox
  pnl export 2024-Q3 --format xlsx       # Write the quarter to ./output
  pnl serve                              # HTTP API plus the inbox job`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("store-dsn", "", "database file (sqlite) or connection string (postgres)")

	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	config.SetDefaults(v)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func initConfig(cmd *cobra.Command, _ []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	config.BindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if dsn, _ := cmd.Flags().GetString("store-dsn"); dsn != "" {
		v.Set("store.dsn", dsn)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	appConfig = cfg

	return setupLogging(cfg.Log)
}

func setupLogging(lc config.LogConfig) error {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch lc.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger = slog.New(handler)
	slog.SetDefault(logger)
	return nil
}

// =============================================================================
// SHARED CONSTRUCTION
// =============================================================================

// openStore connects to the configured store and seeds the directory on
// first use.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, appConfig.Store.Driver, appConfig.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	seed, err := appConfig.SeedDirectory()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if _, err := store.EnsureDirectory(ctx, st, seed); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newParser() (*pnl.Parser, error) {
	opts, err := appConfig.ParserOptions(logger)
	if err != nil {
		return nil, err
	}
	return pnl.New(opts), nil
}

func newFileManager() *utils.FileManager {
	return utils.NewFileManager(appConfig.InputDir, appConfig.OutputDir, appConfig.InputArchiveDir)
}

// newConverter builds the upload pipeline. fm may be nil to skip archiving.
func newConverter(st store.Store, fm *utils.FileManager, dryRun bool) (*converter.Converter, error) {
	parser, err := newParser()
	if err != nil {
		return nil, err
	}
	seed, err := appConfig.SeedDirectory()
	if err != nil {
		return nil, err
	}
	return converter.New(st, parser, converter.Options{
		DryRun:            dryRun,
		FallbackDirectory: seed,
		FileManager:       fm,
		Logger:            logger,
	}), nil
}

func batchOptions(onResult func(converter.Result)) converter.BatchOptions {
	return converter.BatchOptions{
		MaxConcurrency:  appConfig.MaxConcurrency,
		ContinueOnError: appConfig.ContinueOnError,
		OnResult:        onResult,
	}
}
