package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transit-tracker/internal/client"
	"transit-tracker/internal/config"
	"transit-tracker/internal/logging"
	"transit-tracker/internal/messaging"
	"transit-tracker/internal/metrics"
	"transit-tracker/internal/sim"
)

func main() {
	logging.Init()

	cfg, err := config.LoadSimulator()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector()
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	tracker := client.New(cfg.TrackerURL, nil)

	var sender sim.Sender
	switch cfg.Transport {
	case "nats":
		nc, err := messaging.Connect(cfg.NATS.URL, "transit-simulator", mcol)
		if err != nil {
			slog.Error("nats error", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		pub := messaging.NewPublisher(nc, cfg.NATS.StateSubjectPrefix, cfg.NATS.LogSubjects, mcol)
		sender = sim.NewNATSSender(pub, cfg.NATS.ReportSubject)
	default:
		sender = sim.NewHTTPSender(tracker)
	}

	mgr := sim.NewManager(tracker, sender, sim.Options{
		PublishInterval:  cfg.PublishInterval,
		RefreshInterval:  time.Minute,
		SpeedKmh:         cfg.SpeedKmh,
		SpeedMultiplier:  cfg.SpeedMultiplier,
		VehiclesPerRoute: cfg.VehiclesPerRoute,
	}, mcol)
	slog.Info("simulator starting",
		"tracker", cfg.TrackerURL,
		"transport", cfg.Transport,
		"vehicles_per_route", cfg.VehiclesPerRoute,
		"speed_kmh", cfg.SpeedKmh,
		"speed_multiplier", cfg.SpeedMultiplier,
		"interval", cfg.PublishInterval,
	)
	mgr.StartRefresher(ctx)

	<-ctx.Done()
	mgr.Stop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	slog.Info("shutdown complete")
}
