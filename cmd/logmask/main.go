package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/logmask/internal/alerts"
	"github.com/raaihank/logmask/internal/audit"
	"github.com/raaihank/logmask/internal/config"
	"github.com/raaihank/logmask/internal/logger"
	"github.com/raaihank/logmask/internal/masking"
	"github.com/raaihank/logmask/internal/server"
	"github.com/raaihank/logmask/internal/stats"
	"github.com/raaihank/logmask/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the server at this base URL and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("logmask %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Perform health check and exit
	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	// Load configuration
	source := config.NewSource(*configPath)
	cfg, err := source.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	baseLog, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer baseLog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal consumers log through the unmasked logger so a masking failure
	// cannot feed back into itself.
	notifier := alerts.NewNotifier(alerts.Config{
		WarnPerSecond:  cfg.Alerts.WarnPerSecond,
		Burst:          cfg.Alerts.Burst,
		BufferSize:     cfg.Alerts.BufferSize,
		ForwardTimeout: cfg.Alerts.ForwardTimeout,
	}, baseLog.WithComponent("alerts").Logger)

	failMode := masking.FailMode(cfg.Masking.FailMode)
	masker := masking.NewMasker(notifier, masking.WithMaxMessageBytes(cfg.Masking.MaxMessageBytes))
	if err := masker.Reload(cfg.Masking.Options); err != nil {
		baseLog.Warn("Some masking options were skipped", zap.Error(err))
	}

	log := baseLog.WithMasking(masker, failMode)

	log.Info("Starting logmask",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("config_file", source.File()),
		zap.Int("rules", masker.Snapshot().Len()),
	)

	deps := server.Deps{Masker: masker, Notifier: notifier}

	if cfg.WebSocket.Enabled {
		hub := websocket.NewHub(&websocket.HubConfig{
			BroadcastWarnings:     cfg.WebSocket.Events.BroadcastWarnings,
			BroadcastConfigErrors: cfg.WebSocket.Events.BroadcastConfigErrors,
			BroadcastRenderErrors: cfg.WebSocket.Events.BroadcastRenderErrors,
			BroadcastReloads:      cfg.WebSocket.Events.BroadcastReloads,
			BroadcastConnections:  cfg.WebSocket.Events.BroadcastConnections,
			Username:              cfg.WebSocket.Username,
			Password:              cfg.WebSocket.Password,
			ReadBufferSize:        cfg.WebSocket.ReadBufferSize,
			WriteBufferSize:       cfg.WebSocket.WriteBufferSize,
			AllowedOrigins:        cfg.WebSocket.AllowedOrigins,
			WriteWait:             cfg.WebSocket.WriteTimeout,
			PongWait:              cfg.WebSocket.PongTimeout,
			PingPeriod:            cfg.WebSocket.PingInterval,
			MaxMessageSize:        cfg.WebSocket.MaxMessageSize,
		}, baseLog.WithComponent("websocket").Logger)
		notifier.AddForwarder(hub)
		deps.Hub = hub
		go hub.Run(ctx)
	}

	if cfg.Database.Enabled {
		store, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Database.DatabaseURL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, baseLog.WithComponent("audit").Logger)
		if err != nil {
			log.Fatal("Failed to initialize audit store", zap.Error(err))
		}
		defer store.Close()
		notifier.AddForwarder(store)
	}

	if cfg.Redis.Enabled {
		counters, err := stats.NewCounters(&stats.Config{
			RedisURL:       cfg.Redis.RedisURL,
			MaxConnections: cfg.Redis.MaxConnections,
			MinIdleConns:   cfg.Redis.MinIdleConns,
			KeyPrefix:      cfg.Redis.KeyPrefix,
		}, baseLog.WithComponent("stats").Logger)
		if err != nil {
			log.Fatal("Failed to initialize counters", zap.Error(err))
		}
		defer counters.Close()
		notifier.AddForwarder(counters)
		deps.Hits = counters
		deps.Counters = counters
	}

	go notifier.Run(ctx)

	// Hot reload masking rules when the config file changes
	if source.File() != "" {
		source.Watch(func(next *config.Config) {
			err := masker.Reload(next.Masking.Options)
			rules := masker.Snapshot().Len()
			errs := 0
			if joined, ok := err.(interface{ Unwrap() []error }); ok {
				errs = len(joined.Unwrap())
			}
			log.Info("Masking rules reloaded",
				zap.String("source", "file"),
				zap.Int("rules", rules),
				zap.Int("errors", errs),
			)
			if deps.Hub != nil {
				deps.Hub.RulesReloaded("file", rules, errs)
			}
		}, func(err error) {
			log.Error("Config reload rejected", zap.Error(err))
		})
	}

	// Create HTTP server
	srv, err := server.New(cfg, log, deps)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}
	if limiter := srv.RateLimiter(); limiter != nil {
		go limiter.Run(ctx)
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(baseURL string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
