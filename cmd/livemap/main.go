package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transit-tracker/internal/client"
	"transit-tracker/internal/config"
	"transit-tracker/internal/livesync"
	"transit-tracker/internal/logging"
	"transit-tracker/internal/metrics"
)

func main() {
	logging.Init()

	cfg, err := config.LoadLiveSync()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector()
	mcol.PollIntervalS.Set(cfg.PollInterval.Seconds())
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	syncer := livesync.NewSyncer(client.New(cfg.TrackerURL, nil), livesync.Options{
		Interval:   cfg.PollInterval,
		StaleAfter: cfg.StaleAfter,
		RouteID:    cfg.RouteID,
	}, nil, mcol)
	hub := livesync.NewHub(syncer.View, mcol)
	syncer.SetBroadcaster(hub)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           livesync.NewRouter(syncer, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("live map listening", "addr", cfg.ListenAddr, "tracker", cfg.TrackerURL, "interval", cfg.PollInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	syncer.Run(ctx)

	hub.Close()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	slog.Info("shutdown complete")
}
