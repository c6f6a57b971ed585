package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shippingquote/internal/app"
	"shippingquote/internal/config"
	"shippingquote/internal/logger"
	"shippingquote/internal/server"
	"shippingquote/internal/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer func() { _ = lg.Sync() }()

	shutdownTelemetry, err := telemetry.Setup(context.Background(), telemetry.Config{
		Enabled:         cfg.Telemetry.Enabled,
		ZipkinURL:       cfg.Telemetry.ZipkinURL,
		ServiceName:     cfg.Telemetry.ServiceName,
		ServiceVersion:  version,
		SamplingRatio:   cfg.Telemetry.SamplingRatio,
		MetricsEnabled:  cfg.Telemetry.MetricsEnabled,
		MetricsEndpoint: cfg.Telemetry.MetricsEndpoint,
		MetricsInsecure: cfg.Telemetry.MetricsInsecure,
		MetricsInterval: cfg.Telemetry.MetricsInterval,
	})
	if err != nil {
		lg.Fatal("telemetry setup failed", zap.Error(err))
	}

	a, err := app.Build(cfg, lg)
	if err != nil {
		lg.Fatal("building providers failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: server.New(a.Service, server.Options{
			Logger:         lg.Named("http"),
			FreeShipping:   a.FreeShipping,
			RequestTimeout: cfg.Server.RequestTimeout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("server listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		lg.Warn("telemetry shutdown", zap.Error(err))
	}
	if err := a.Close(); err != nil {
		lg.Warn("closing connections", zap.Error(err))
	}
}
