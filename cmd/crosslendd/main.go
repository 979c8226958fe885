package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crosslend/config"
	"crosslend/host"
	"crosslend/indexer"
	"crosslend/native/common"
	"crosslend/observability/logging"
	telemetry "crosslend/observability/otel"
	"crosslend/rpc"
	"crosslend/storage"
)

const (
	serviceName     = "crosslendd"
	shutdownTimeout = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "crosslendd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(serviceName, cfg.Node.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Node.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.Open(cfg.Node.Backend, cfg.Node.DataDir)
	if err != nil {
		return fmt.Errorf("open %s state: %w", cfg.Node.Backend, err)
	}
	defer db.Close()

	accounts, err := cfg.Accounts()
	if err != nil {
		return err
	}
	scheme, err := common.ParseScheme(cfg.Loans.CommitmentScheme)
	if err != nil {
		return err
	}

	opts := []host.Option{
		host.WithLogger(logger),
		host.WithScheme(scheme),
		host.WithEscrowAccounts(accounts.LoansEscrow, accounts.CollateralEscrow),
	}
	var archive *indexer.Store
	if cfg.Indexer.Driver != "" {
		archive, err = indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer archive.Close()
		opts = append(opts, host.WithSubscriber(archive))
	}
	rt := host.New(db, opts...)

	seeds, err := config.LoadAssets(cfg.Loans.AssetsFile)
	if err != nil {
		return err
	}
	genesis, err := host.GenesisFromConfig(cfg, seeds)
	if err != nil {
		return err
	}
	seeded, err := rt.Bootstrap(ctx, genesis)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	logger.Info("state ready",
		slog.String("backend", cfg.Node.Backend),
		slog.String("data_dir", cfg.Node.DataDir),
		slog.Bool("genesis", seeded),
		slog.String("scheme", string(scheme)))

	var events rpc.EventSource
	if archive != nil {
		events = archive
	}
	api := rpc.NewServer(rt, events, rpc.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, logger)
	srv := &http.Server{
		Addr:              cfg.Node.ListenAddress,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("query API listening", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
