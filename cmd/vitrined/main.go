package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vitrine/config"
	"vitrine/observability/logging"
	telemetry "vitrine/observability/otel"
)

var version = "dev"

func main() {
	var (
		cfgPath  string
		seedPath string
	)
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to daemon configuration")
	flag.StringVar(&seedPath, "seed", "", "YAML fixtures applied when no snapshot exists")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("VITRINE_ENV"))
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "vitrined",
		Env:        env,
		Level:      cfg.Log.SlogLevel(),
		File:       cfg.ResolvePath(cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, seedPath, env, logger); err != nil {
		logger.Error("vitrined exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, seedPath, env string, logger *slog.Logger) error {
	tel := cfg.Telemetry
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "vitrined",
		ServiceVersion: version,
		Environment:    env,
		Network:        cfg.NetworkName,
		Endpoint:       tel.Endpoint,
		Insecure:       tel.Insecure,
		Headers:        telemetry.ParseHeaders(tel.Headers),
		Metrics:        tel.Metrics,
		Traces:         tel.Traces,
		SampleRatio:    tel.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	d, err := newDaemon(ctx, cfg, seedPath, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	handler := d.handler
	if tel.Traces {
		handler = otelhttp.NewHandler(handler, "vitrined")
	}
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	snapCtx, cancelSnapshots := context.WithCancel(ctx)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		d.runSnapshots(snapCtx, cfg.Market.SnapshotInterval())
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", listener.Addr().String()), slog.String("version", version))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	cancelSnapshots()
	<-snapDone

	snap, err := d.snapshot(shutdownCtx)
	if err != nil {
		logger.Error("final snapshot failed", slog.Any("error", err))
		if runErr == nil {
			runErr = err
		}
	} else {
		logger.Info("final snapshot saved", slog.Uint64("sequence", snap.Sequence))
	}
	return runErr
}
