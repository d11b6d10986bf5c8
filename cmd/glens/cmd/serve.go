package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/glens/internal/config"
	"github.com/MeKo-Tech/glens/internal/crop"
	"github.com/MeKo-Tech/glens/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP search API",
	Long: `Start an HTTP server that exposes the reverse image search.

The server provides the following endpoints:
  POST /glens      - Search by uploaded image (image) or URL (pic_url), optionally cropped
  GET  /ws/search  - Stream result pages over a WebSocket
  GET  /history    - Recent searches (when history is enabled)
  GET  /health     - Health check endpoint
  GET  /metrics    - Prometheus metrics

Examples:
  glens serve
  glens serve --port 8080
  glens serve --host 127.0.0.1 --port 3000 --max-pages 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		var release cleanup
		defer func() { release.run() }()

		source := newImageLoader(cfg)
		croppers := map[crop.Kind]server.Cropper{}
		for _, kind := range []crop.Kind{crop.KindForeground, crop.KindObjectDetection} {
			c, done, err := newCropper(cfg, source, kind, cfg.Server.TempDir)
			if err != nil {
				slog.Warn("Crop strategy disabled", "strategy", kind.String(), "error", err)
				continue
			}
			release.add(done)
			croppers[kind] = c
		}

		orchestrator, done, err := newOrchestrator(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize search: %w", err)
		}
		release.add(done)

		deps := server.Dependencies{Searcher: orchestrator, Croppers: croppers}
		store, err := newHistoryStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize search history: %w", err)
		}
		if store != nil {
			release.add(store.Close)
			deps.History = store
		}

		glensServer, err := server.NewServer(serverConfig(cfg), deps)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           glensServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       timeout,
			WriteTimeout:      timeout + 5*time.Second,
		}

		go func() {
			slog.Info("Starting glens server", "addr", addr, "croppers", len(croppers), "history", store != nil)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Changed("max-upload-size") {
		cfg.Server.MaxUploadMB, _ = flags.GetInt("max-upload-size")
	}
	if flags.Changed("timeout") {
		cfg.Server.TimeoutSec, _ = flags.GetInt("timeout")
	}
	if flags.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = flags.GetInt("shutdown-timeout")
	}
	if flags.Changed("temp-dir") {
		cfg.Server.TempDir, _ = flags.GetString("temp-dir")
	}
	if flags.Changed("max-pages") {
		cfg.Search.MaxPages, _ = flags.GetInt("max-pages")
	}
	if flags.Changed("proxy") {
		cfg.Search.Proxy, _ = flags.GetString("proxy")
	}
	if flags.Changed("lazy-detector") {
		cfg.Detector.Lazy, _ = flags.GetBool("lazy-detector")
	}
	if flags.Changed("rate-limit-enabled") {
		cfg.Server.RateLimitEnabled, _ = flags.GetBool("rate-limit-enabled")
	}
	if flags.Changed("requests-per-minute") {
		cfg.Server.RequestsPerMinute, _ = flags.GetInt("requests-per-minute")
	}
	if flags.Changed("requests-per-hour") {
		cfg.Server.RequestsPerHour, _ = flags.GetInt("requests-per-hour")
	}
	if flags.Changed("max-requests-per-day") {
		cfg.Server.MaxRequestsPerDay, _ = flags.GetInt("max-requests-per-day")
	}
	if flags.Changed("max-data-per-day") {
		cfg.Server.MaxDataPerDay, _ = flags.GetInt64("max-data-per-day")
	}
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		CORSOrigin:      cfg.Server.CORSOrigin,
		MaxUploadMB:     int64(cfg.Server.MaxUploadMB),
		TimeoutSec:      cfg.Server.TimeoutSec,
		TempDir:         cfg.Server.TempDir,
		DefaultMaxPages: cfg.Search.MaxPages,
		DefaultCropKind: cfg.DefaultCropKind(),
		RateLimit: server.RateLimitConfig{
			Enabled:           cfg.Server.RateLimitEnabled,
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
			RequestsPerHour:   cfg.Server.RequestsPerHour,
			MaxRequestsPerDay: cfg.Server.MaxRequestsPerDay,
			MaxDataPerDay:     cfg.Server.MaxDataPerDay,
		},
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "0.0.0.0", "server host")
	serveCmd.Flags().IntP("port", "p", 8000, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 20, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 60, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().String("temp-dir", "", "directory for request temp files (default: OS temp dir)")
	serveCmd.Flags().Int("max-pages", 2, "default number of result pages per search")
	serveCmd.Flags().String("proxy", "", "HTTP proxy for search provider requests")
	serveCmd.Flags().Bool("lazy-detector", false, "load the object detection model on first use")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 30, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 500, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 0, "maximum requests per day per client (0 = unlimited)")
	serveCmd.Flags().Int64("max-data-per-day", 0, "maximum uploaded bytes per day per client (0 = unlimited)")
}
