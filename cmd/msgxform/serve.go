package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/msgxform/internal/observability"
)

const shutdownTimeout = 30 * time.Second

var watchEnabled bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transform proxy and admin API",
	Long: `Load the specs and profile named by the config file, start the admin API
and, when enabled, the reverse proxy. Spec and profile files are watched
and reloaded in place until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&watchEnabled, "watch", getEnvBool(envWatch, true),
		"reload specs when the files change")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadAndValidateConfig(cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("watch") || os.Getenv(envWatch) != "" {
		cfg.Watch.Enabled = watchEnabled
	}

	logger, err := initLogger(cfg.Observability.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting msgxform",
		observability.String("version", Version),
		observability.String("config", cfgFile),
		observability.String("specs_dir", cfg.Engine.SpecsDir),
		observability.String("error_mode", cfg.Engine.ErrorMode),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := initApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := app.start(ctx); err != nil {
		shutdown(app)
		return err
	}

	waitForShutdown(app)
	return nil
}

// waitForShutdown blocks until SIGINT or SIGTERM, then stops the
// application.
func waitForShutdown(app *application) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	app.logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	shutdown(app)
}

func shutdown(app *application) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.stop(ctx)
	app.logger.Info("msgxform stopped")
}
