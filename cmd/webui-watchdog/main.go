package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/yourusername/webui-watchdog/internal/config"
	"github.com/yourusername/webui-watchdog/internal/controller"
	"github.com/yourusername/webui-watchdog/internal/metrics"
	"github.com/yourusername/webui-watchdog/internal/session"
)

var (
	// Version information (set via -ldflags)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// CLI flags
	logLevel   string
	mode       string
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "webui-watchdog",
		Short: "Reconnect watchdog for an image-generation web UI",
		Long: `webui-watchdog waits for the web UI to finish rendering, resumes progress
tracking for a task that was in flight before a reload, follows server
restarts, and pushes state and progress to browsers over a websocket.`,
		RunE: run,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional YAML config file (environment variables take precedence)")
	rootCmd.Flags().StringVar(&mode, "mode", "", "Run mode: reconnect, restart or wait (overrides MODE env var)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webui-watchdog %s\n", version)
			fmt.Printf("  git commit: %s\n", gitCommit)
			fmt.Printf("  build date: %s\n", buildDate)
		},
	}

	rootCmd.AddCommand(versionCmd, newTaskCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Load configuration first so LOG_LEVEL and log_level apply
	cfg, err := config.Load(configPath)
	if err != nil {
		bootLogger := setupLogging(logLevel)
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applyFlagOverrides(cmd, cfg)

	// Setup logging
	logger := setupLogging(cfg.LogLevel)

	logger.Info().
		Str("version", version).
		Str("git_commit", gitCommit).
		Str("build_date", buildDate).
		Msg("Starting webui-watchdog")

	logger.Info().
		Str("mode", cfg.Mode).
		Str("webui_url", cfg.WebUIURL).
		Str("anchor_id", cfg.AnchorID).
		Str("state_path", cfg.StatePath).
		Str("log_level", cfg.LogLevel).
		Dur("reconnect_interval", cfg.ReconnectInterval).
		Dur("restart_interval", cfg.RestartInterval).
		Msg("Configuration loaded")

	store, err := session.Open(cfg.StatePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer store.Close()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Create controller
	ctrl, err := controller.NewController(cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create controller")
	}

	// Start metrics server
	metricsServer := startMetricsServer(cfg.MetricsPort, logger)
	defer shutdown(metricsServer, "Metrics", logger)

	// Start health and websocket server
	healthServer := startHealthServer(cfg.HealthPort, ctrl, logger)
	defer shutdown(healthServer, "Health", logger)

	logger.Info().Msg("Controller initialized, starting watchdog")

	if err := ctrl.Run(ctx); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("Controller error")
		metrics.HealthStatus.Set(0)
		return err
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

// applyFlagOverrides lets flags given on the command line win over the
// environment and the config file
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if mode != "" {
		cfg.Mode = mode
	}
}

// setupLogging configures structured JSON logging
func setupLogging(level string) zerolog.Logger {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)
	zerolog.TimeFieldFormat = time.RFC3339

	// JSON output to stdout
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "webui-watchdog").
		Logger()

	return logger
}

func shutdown(server *http.Server, name string, logger zerolog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msgf("%s server shutdown error", name)
	}
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(port int, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", port).Msg("Starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return server
}

// startHealthServer starts the health check and websocket HTTP server
func startHealthServer(port int, ctrl *controller.Controller, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	// Liveness probe - always returns 200 if server is running
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness probe - returns 200 once the UI has been confirmed, 503 before
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ctrl.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("waiting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	// Browser clients subscribe here for state, progress and reload messages
	mux.Handle("/ws", ctrl.Hub())

	// No WriteTimeout: websocket connections are long-lived
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", port).Msg("Starting health server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Health server error")
		}
	}()

	return server
}
