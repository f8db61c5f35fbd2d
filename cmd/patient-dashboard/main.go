package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/miradorstack/patient-dashboard/internal/cache"
	"github.com/miradorstack/patient-dashboard/internal/config"
	"github.com/miradorstack/patient-dashboard/internal/dataset"
	"github.com/miradorstack/patient-dashboard/internal/engine"
	"github.com/miradorstack/patient-dashboard/internal/services"
	"github.com/miradorstack/patient-dashboard/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "patient-dashboard",
		Short: "Hospital performance dashboard over a patient records file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newExportCmd(&configPath),
		newSummaryCmd(&configPath),
	)

	return rootCmd
}

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	loader  *dataset.Loader
	cache   cache.Provider
	service *services.DashboardService
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	provider, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Backend, cfg.Cache.MaxEntries, cache.ValkeyConfig{
		Addr:         cfg.Cache.Addr,
		Username:     cfg.Cache.Username,
		Password:     cfg.Cache.Password,
		DB:           cfg.Cache.DB,
		DialTimeout:  cfg.Cache.DialTimeout,
		ReadTimeout:  cfg.Cache.ReadTimeout,
		WriteTimeout: cfg.Cache.WriteTimeout,
		MaxRetries:   cfg.Cache.MaxRetries,
		TLS:          cfg.Cache.TLS,
		KeyPrefix:    "patient-dashboard:",
	})
	if err != nil {
		logger.Warn("export cache unavailable", slog.String("backend", cfg.Cache.Backend), slog.Any("error", err))
		provider = cache.NoopProvider{}
	}

	loader := dataset.NewLoader(cfg.Dataset.Path, logger)
	pipeline := engine.NewPipeline(logger, cfg.Dataset.PreviewRows)
	return &app{
		cfg:     cfg,
		logger:  logger,
		loader:  loader,
		cache:   provider,
		service: services.NewDashboardService(logger, loader, pipeline, provider, cfg.Cache.ExportTTL),
	}, nil
}

func (a *app) close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("close cache", slog.Any("error", err))
	}
}
