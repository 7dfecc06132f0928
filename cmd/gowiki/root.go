package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gowiki/internal/config"
	"github.com/JakeFAU/gowiki/internal/logging"
	"github.com/JakeFAU/gowiki/internal/server"
)

// buildApp is a variable so tests can swap the factory.
var buildApp = server.Build

type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "gowiki",
		Short: "A small Markdown wiki backed by a single database consumer.",
		Long: `gowiki serves a Markdown wiki over HTTP. Pages are stored in SQLite,
Postgres, or memory, and every database call goes through one bus consumer.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML, TOML, or JSON)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newBackupCmd(opts))
	return cmd
}

// setup loads configuration and builds the application.
func setup(ctx context.Context, opts *options) (*server.App, *zap.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return app, logger, nil
}
