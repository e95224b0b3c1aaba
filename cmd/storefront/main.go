// RBN storefront order service - checkout confirmation, local order cache,
// and backend reconciliation behind a small REST + MCP surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rbn-storefront/internal/cache"
	"rbn-storefront/internal/config"
	"rbn-storefront/internal/gateway"
	"rbn-storefront/internal/handler"
	"rbn-storefront/internal/middleware"
	"rbn-storefront/internal/reconcile"
	"rbn-storefront/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("backend", cfg.Backend.APIBaseURL),
		slog.Bool("browser_tls", cfg.Backend.BrowserTLS),
		slog.Bool("persistent_cache", cfg.CachePath != ""),
	)

	// The backend sits behind a fingerprint-sensitive CDN in some
	// deployments; the browser-TLS transport keeps those from rejecting us.
	var rt http.RoundTripper
	if cfg.Backend.BrowserTLS {
		rt = transport.NewBrowserTLS(10 * time.Second)
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:       cfg.Backend.APIBaseURL,
		APIKey:        cfg.Backend.APIKey,
		MinAPIVersion: cfg.Backend.MinAPIVersion,
		Transport:     rt,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating gateway client: %w", err)
	}

	// Confirm the backend is reachable and pick up the Paystack public key
	// the widget charge uses. Best effort: checkout still works without it
	// when the config provides the key directly.
	if cfg.Backend.PaystackPublicKey == "" {
		keyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		key, err := gw.FetchPublicKey(keyCtx)
		cancel()
		if err != nil {
			logger.Warn("fetching payment public key failed",
				slog.String("error", err.Error()),
			)
		} else {
			cfg.Backend.PaystackPublicKey = key
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening order cache: %w", err)
	}
	orders := cache.NewOrders(store, logger)

	sync := reconcile.New(gw, orders, logger, nil)

	h := handler.New(gw, orders, sync, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery outermost so panics in the other middleware are caught too.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// openStore picks the cache backing: file-backed when CachePath is set,
// memory-only otherwise. Memory-only loses local fallback orders on restart,
// so production deployments should always set a path.
func openStore(cfg *config.Config) (cache.Store, error) {
	if cfg.CachePath == "" {
		return cache.NewMemory(), nil
	}
	return cache.OpenFile(cfg.CachePath)
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if cfg.Environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
