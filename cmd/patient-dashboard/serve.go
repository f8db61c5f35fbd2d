package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/patient-dashboard/internal/api"
	"github.com/miradorstack/patient-dashboard/internal/metrics"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the dataset and serve the dashboard over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger
	cfg := a.cfg
	logger.Info("starting patient-dashboard", slog.String("address", cfg.Server.Address), slog.String("dataset", cfg.Dataset.Path))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var probe *api.ProbeServer
	if cfg.Server.ProbeAddress != "" {
		probe, err = api.NewProbeServer(cfg.Server)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("probe server listening", slog.String("address", probe.Address()))
			if serveErr := probe.Start(); serveErr != nil {
				logger.Error("probe server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	handle, err := a.loader.Load()
	if err != nil {
		logger.Error("failed to load dataset", slog.String("path", cfg.Dataset.Path), slog.Any("error", err))
		return err
	}
	metrics.SetDatasetRows(handle.Len())
	if probe != nil {
		probe.SetServing(true)
	}

	router, err := api.NewRouter(a.service, logger)
	if err != nil {
		return err
	}
	server, err := api.NewServer(cfg.Server, router)
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("dashboard listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}
	if probe != nil {
		probe.Shutdown(shutdownCtx)
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("patient-dashboard stopped", slog.Duration("p95", a.service.LatencyP95()))
	return nil
}
