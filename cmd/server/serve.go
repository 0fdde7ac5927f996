package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/formtagger-api/internal/auth"
	"github.com/Brownie44l1/formtagger-api/internal/config"
	"github.com/Brownie44l1/formtagger-api/internal/handlers"
	"github.com/Brownie44l1/formtagger-api/internal/imaging"
	"github.com/Brownie44l1/formtagger-api/internal/layoutlm"
	"github.com/Brownie44l1/formtagger-api/internal/storage"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inference HTTP server",
		Long: `Loads the model once, selects the compute device, and serves
POST /inference_image/ until interrupted.

Requires SECRET_KEY in the environment (or .env).`,
		Example: `  # Start on the configured port (default 8080)
  formtagger serve

  # Force CPU inference on a custom port
  DEVICE=cpu formtagger serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(true)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")

	return cmd
}

func loadEngine(cfg *config.Config) (*layoutlm.Server, error) {
	slog.Info("Loading model", "dir", cfg.ModelDir, "device", cfg.Device)

	server, err := layoutlm.NewServer(layoutlm.ServerConfig{
		ModelDir:    cfg.ModelDir,
		LibraryPath: cfg.ORTLibraryPath,
		Device:      cfg.Device,
		Language:    cfg.TesseractLang,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model server: %w", err)
	}

	slog.Info("Model loaded", "device", server.Device(), "labels", server.Labels())
	return server, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	engine, err := loadEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	deps := handlers.Deps{
		Engine:         engine,
		Verifier:       auth.NewVerifier(cfg.SecretKey),
		Gate:           imaging.NewContentGate(imaging.DefaultAllowList),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	if cfg.RedisURL != "" {
		cache, err := storage.NewRedisCache(cfg.RedisURL, time.Duration(cfg.CacheTTLSeconds)*time.Second)
		if err != nil {
			return err
		}
		defer cache.Close()
		deps.Cache = cache
		slog.Info("Prediction cache enabled", "ttl_seconds", cfg.CacheTTLSeconds)
	}

	if cfg.DatabaseURL != "" {
		audit, err := storage.NewPostgresAudit(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer audit.Close()
		deps.Audit = audit
		slog.Info("Audit log enabled")
	}

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           handlers.NewHandler(deps).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", addr, "endpoint", "POST /inference_image/")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "err", err)
			return err
		}
		slog.Info("Server stopped")
		return nil
	case err := <-serverErr:
		return err
	}
}
