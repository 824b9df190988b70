package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/msgxform/internal/config"
	"github.com/vyrodovalexey/msgxform/internal/observability"
)

var (
	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "msgxform",
	Short: "JSON message transform engine",
	Long: `msgxform rewrites JSON request and response messages with declarative
transform specs. Specs are bound to traffic by a profile and are reloaded
without a restart when the files change.

It runs as a reverse proxy in front of a single upstream, with an admin
API for health, metrics and on-demand reloads.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c",
		getEnvOrDefault(envConfigPath, "msgxform.yaml"), "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level",
		getEnvOrDefault(envLogLevel, ""), "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format",
		getEnvOrDefault(envLogFormat, ""), "log format override (json, console)")
}

// loadAndValidateConfig loads the config file and validates it.
func loadAndValidateConfig(path string) (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger builds the logger from the config with flag overrides applied
// and installs it as the global logger.
func initLogger(cfg config.LoggingConfig) (observability.Logger, error) {
	lc := observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	}
	if logLevel != "" {
		lc.Level = logLevel
	}
	if logFormat != "" {
		lc.Format = logFormat
	}

	logger, err := observability.NewLogger(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	observability.SetGlobalLogger(logger)
	return logger, nil
}
