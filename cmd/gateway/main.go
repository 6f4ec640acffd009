// Package main is the entry point for the openapigw gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vyrodovalexey/openapigw/internal/config"
	"github.com/vyrodovalexey/openapigw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	// A missing .env file is fine; real environments set variables directly.
	_ = godotenv.Load()

	flags := parseFlags(os.Args[1:])
	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	cfg := loadAndValidateConfig(flags.configPath, logger)
	logger = applyLoggingConfig(flags, cfg.Observability.Logging, logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", observability.Error(err))
	}

	if err := run(ctx, app, flags.configPath); err != nil {
		logger.Error("gateway exited with error", observability.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// parseFlags parses command line flags with environment fallbacks.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	configPath := fs.String("config", getEnvOrDefault("OPENAPIGW_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := fs.String("log-level", getEnvOrDefault("OPENAPIGW_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the config file")
	logFormat := fs.String("log-format", getEnvOrDefault("OPENAPIGW_LOG_FORMAT", ""),
		"Log format (json, console); overrides the config file")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("openapigw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger builds the bootstrap logger used while the config is loaded.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(mergeLogConfig(flags, observability.DefaultLogConfig()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting openapigw",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}
	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("forward_target", cfg.Forward.Target),
		observability.String("directory", cfg.Directory.Type),
		observability.String("registry", cfg.Registry.Type),
		observability.String("counter", cfg.Counter.Type),
		observability.String("granularity", cfg.Metering.Granularity),
		observability.Int("allowed_origins", len(cfg.Filter.AllowedOrigins)),
	)
	return cfg
}

// applyLoggingConfig rebuilds the logger from the config file; flags and
// environment keep precedence. The bootstrap logger stays on failure.
func applyLoggingConfig(flags cliFlags, cfg config.LoggingConfig, bootstrap observability.Logger) observability.Logger {
	logCfg := mergeLogConfig(flags, observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		bootstrap.Warn("ignoring logging configuration", observability.Error(err))
		return bootstrap
	}
	_ = bootstrap.Sync()
	observability.SetGlobalLogger(logger)
	return logger
}

func mergeLogConfig(flags cliFlags, base observability.LogConfig) observability.LogConfig {
	if flags.logLevel != "" {
		base.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		base.Format = flags.logFormat
	}
	return base
}
