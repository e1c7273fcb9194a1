package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"audience/internal/config"
	"audience/internal/metrics"
	"audience/internal/metrics/datadog"
	"audience/internal/metrics/prompush"
	"audience/internal/server"
	"audience/internal/storage"

	// register every storage backend; the config picks one.
	_ "audience/internal/storage/all"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if addr != "" {
				cfg.Server.Addr = addr
			}

			issues := config.Validate(cfg)
			for _, iss := range issues {
				log.Warn("config issue", zap.String("severity", string(iss.Severity)), zap.String("path", iss.Path), zap.String("message", iss.Message))
			}
			if config.HasErrors(issues) {
				return fmt.Errorf("configuration is invalid")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	flush, err := setupMetrics(cfg, log)
	if err != nil {
		return err
	}
	defer flush()

	var repo storage.Repository
	if cfg.Storage.Kind != "" {
		repo, err = storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN, Table: cfg.Storage.Table})
		if err != nil {
			return err
		}
		defer repo.Close()
		if cfg.Storage.AutoCreateTable {
			if err := repo.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		log.Info("storage enabled", zap.String("kind", cfg.Storage.Kind), zap.String("table", cfg.Storage.Table))
	}

	opt, err := cfg.UploadOptions(log)
	if err != nil {
		return err
	}
	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxConcurrent:  cfg.Server.MaxConcurrent,
		Upload:         opt,
		SaveBatchSize:  cfg.Storage.BatchSize,
	}, repo, log)
	return srv.ListenAndServe(ctx)
}

// setupMetrics installs the configured backend. The returned func flushes it.
func setupMetrics(cfg config.Config, log *zap.Logger) (func(), error) {
	nop := func() {}
	switch cfg.Metrics.Backend {
	case "", "none":
		log.Debug("metrics disabled")
		return nop, nil
	case "prometheus":
		b, err := prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
		if err != nil {
			return nop, fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.DatadogAddr,
			GlobalTags: []string{"job:" + cfg.Job},
		})
		if err != nil {
			return nop, fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)
	default:
		return nop, fmt.Errorf("metrics: unknown backend %q", cfg.Metrics.Backend)
	}
	log.Info("metrics enabled", zap.String("backend", cfg.Metrics.Backend))
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush", zap.Error(err))
		}
	}, nil
}
