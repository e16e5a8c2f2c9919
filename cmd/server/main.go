package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	webAdapter "fieldstock/internal/adapters/web"
	"fieldstock/internal/bootstrap"
	"fieldstock/internal/config"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("FIELDSTOCK_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.New(ctx, cfg, os.Stderr)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer c.Close()

	var gatherer prometheus.Gatherer
	if c.Registry != nil {
		gatherer = c.Registry
	}
	handler := webAdapter.NewHandler(webAdapter.Config{
		Service:        c.App,
		Logger:         c.Logger,
		HTTPMetrics:    c.HTTP,
		Gatherer:       gatherer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		JWTSecret:      cfg.Server.JWTSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Logger.Info("server starting", "addr", srv.Addr, "storage", cfg.Storage)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			c.Logger.Error("server failed", "error", err)
		}
	case <-ctx.Done():
		c.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			c.Logger.Error("shutdown failed", "error", err)
		}
	}
}
