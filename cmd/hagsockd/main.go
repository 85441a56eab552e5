package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haglib/hagsock/internal/admin"
	"github.com/haglib/hagsock/internal/config"
	"github.com/haglib/hagsock/internal/journal"
	"github.com/haglib/hagsock/internal/metrics"
	"github.com/haglib/hagsock/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: hagsockd <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the routing server")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting hagsockd",
		zap.String("listen", cfg.Service.Listen),
		zap.String("admin_listen", cfg.Service.AdminListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(server.Config{
		ListenAddr:      cfg.Service.Listen,
		MaxPayloadBytes: uint32(cfg.Limits.MaxPayloadBytes),
		Name:            cfg.Service.Name,
	}, logger.Named("server"))

	var jw *journal.Writer
	if cfg.Journal.Enabled {
		var err error
		jw, err = journal.NewWriter(cfg.Journal.Path, cfg.Journal.Compress, logger.Named("journal"))
		if err != nil {
			logger.Fatal("failed to open journal", zap.Error(err))
		}
		srv.SetSink(jw)
	}

	// Server log messages go to the process log alongside any listeners
	// applications register.
	srv.Hub().AddLogMessageListener(func(msg string) {
		logger.Info(msg)
	})

	adminSrv := admin.NewServer(cfg.Service.AdminListen, srv, srv.Sessions(), logger.Named("admin"))
	if err := adminSrv.Start(); err != nil {
		logger.Fatal("failed to start admin HTTP server", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })

	select {
	case <-srv.Ready():
		logger.Info("server started")
	case <-gctx.Done():
	}

	// Wait for shutdown signal or server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-gctx.Done():
	}

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop admin traffic first, then the routing server.
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin HTTP server shutdown error", zap.Error(err))
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("server exited with error", zap.Error(err))
		} else {
			logger.Info("server stopped gracefully")
		}
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, some connections may not have drained")
	}

	if jw != nil {
		if err := jw.Close(); err != nil {
			logger.Error("journal close error", zap.Error(err))
		}
	}

	logger.Info("hagsockd stopped")
}
