// Package main is the entry point for the source-gateway S3-compatible
// HTTP gateway.
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

	"github.com/sourcegw/gateway/internal/config"
	"github.com/sourcegw/gateway/internal/controlplane"
	"github.com/sourcegw/gateway/internal/logging"
	"github.com/sourcegw/gateway/internal/metrics"
	"github.com/sourcegw/gateway/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	metrics.Register()

	cp, err := controlplane.New(controlplane.Config{
		BaseURL:    cfg.ControlPlaneURL,
		ServiceKey: cfg.ServiceKey,
		ProxyURL:   cfg.ProxyURL,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create control-plane client: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, cp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	// Crash-only design: every startup is recovery. There is no local state
	// to reconcile (the control plane is the source of truth), so there is
	// no recovery step beyond starting the listener.

	errCh := make(chan error, 1)
	go func() {
		slog.Info("source-gateway listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		slog.Info("server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}
