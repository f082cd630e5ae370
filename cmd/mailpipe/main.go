package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailpipe/internal/config"
	"mailpipe/internal/constants"
	"mailpipe/internal/forwarder"
	"mailpipe/internal/normalize"
	"mailpipe/internal/ratelimit"
	"mailpipe/internal/realtime"
	"mailpipe/internal/smtpserver"
	"mailpipe/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes message metadata)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("mailpipe %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting mailpipe")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled")
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	registry := realtime.NewRegistry(realtime.Config{
		KeepAlive:         time.Duration(cfg.Realtime.KeepAliveSec) * time.Second,
		ConnectionTimeout: time.Duration(cfg.Realtime.ConnectionTimeoutSec) * time.Second,
		SweepInterval:     time.Duration(cfg.Realtime.SweepIntervalSec) * time.Second,
		ProgressTTL:       time.Duration(cfg.Realtime.ProgressTTLSec) * time.Second,
		EventLogSize:      cfg.Realtime.EventLogSize,
	}, logger)
	registry.Start(ctx)
	defer registry.Stop()

	limiter := ratelimit.NewLimiter(
		cfg.SMTP.RateLimit.MaxPerWindow,
		time.Duration(cfg.SMTP.RateLimit.WindowSec)*time.Second,
	)
	normalizer := normalize.New(normalize.Options{}, logger)
	fwd := forwarder.New(cfg.Webhook, cfg.Retry, logger)

	backend := smtpserver.NewBackend(cfg.SMTP, limiter, normalizer, fwd, logger)
	smtpSrv := smtpserver.NewServer(cfg.SMTP, backend, logger)

	httpSrv := NewServer(cfg, registry, logger)

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := smtpSrv.Start(); err != nil {
			serverErrCh <- fmt.Errorf("smtp server error: %w", err)
		}
	}()
	go func() {
		if err := httpSrv.Start(); err != nil {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := smtpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Failed to shutdown SMTP server gracefully: %v", err)
		_ = smtpSrv.Close()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
