package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"transit-tracker/internal/api"
	"transit-tracker/internal/catalog"
	"transit-tracker/internal/config"
	"transit-tracker/internal/db"
	"transit-tracker/internal/eta"
	"transit-tracker/internal/fleet"
	"transit-tracker/internal/ingest"
	"transit-tracker/internal/logging"
	"transit-tracker/internal/messaging"
	"transit-tracker/internal/metrics"
	"transit-tracker/internal/profiling"
	"transit-tracker/internal/tracing"
)

const serviceName = "transit-tracker"

type stores struct {
	states fleet.Store
	cat    interface {
		catalog.Catalog
		catalog.Admin
	}
	close func()
}

func main() {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(serviceName)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		defer shutdownTracing()
	}
	stopProfiling, err := profiling.Init(serviceName)
	if err != nil {
		slog.Warn("profiling disabled", "error", err)
	} else {
		defer stopProfiling()
	}

	st, err := openStores(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("storage error", "error", err)
		os.Exit(1)
	}
	defer st.close()

	if cfg.CatalogSeedFile != "" {
		seed, err := catalog.LoadSeed(cfg.CatalogSeedFile)
		if err != nil {
			slog.Error("catalog seed", "error", err)
			os.Exit(1)
		}
		routes, stops, err := seed.Apply(ctx, st.cat)
		if err != nil {
			slog.Error("catalog seed", "error", err)
			os.Exit(1)
		}
		slog.Info("catalog seeded", "file", cfg.CatalogSeedFile, "routes", routes, "stops", stops)
	}

	mcol := metrics.NewCollector()
	mcol.SnapshotLimit.Set(float64(cfg.SnapshotLimit))
	mcol.MinSpeedKmh.Set(cfg.MinSpeedKmh)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	gwOpts := []ingest.Option{ingest.WithObserver(mcol)}

	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = messaging.Connect(cfg.NATS.URL, serviceName, mcol)
		if err != nil {
			slog.Error("nats error", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		if cfg.NATS.StreamName != "" {
			if err := messaging.EnsureStream(nc, cfg.NATS.StreamName, cfg.NATS.StateSubjectPrefix+".>"); err != nil {
				slog.Warn("jetstream stream unavailable, publishing on core nats only", "stream", cfg.NATS.StreamName, "error", err)
			}
		}
		pub := messaging.NewPublisher(nc, cfg.NATS.StateSubjectPrefix, cfg.NATS.LogSubjects, mcol)
		gwOpts = append(gwOpts, ingest.WithSink(pub))
	}

	gateway := ingest.NewGateway(st.states, gwOpts...)
	index := catalog.NewIndex(st.cat)
	estimator := eta.NewEstimator(st.states, index,
		eta.WithObserver(mcol),
		eta.WithDefaults(eta.Options{NearestCount: cfg.NearestCount, MinSpeedKmh: cfg.MinSpeedKmh}),
	)

	subDone := make(chan struct{})
	go func() {
		defer close(subDone)
		if nc == nil {
			return
		}
		sub := messaging.NewSubscriber(nc, cfg.NATS.ReportSubject, gateway, mcol)
		if err := sub.Run(ctx); err != nil {
			slog.Error("nats subscriber", "error", err)
		}
	}()

	handler := api.NewHandler(api.Deps{
		Reporter:      gateway,
		States:        st.states,
		Estimator:     estimator,
		Catalog:       index,
		Admin:         st.cat,
		SnapshotLimit: cfg.SnapshotLimit,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("tracker listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	<-subDone
	slog.Info("shutdown complete")
}

// openStores picks the backing store from the database URL: memory:// keeps
// everything in process, anything else goes through database/sql.
func openStores(ctx context.Context, dsn string) (*stores, error) {
	if strings.HasPrefix(dsn, "memory://") {
		slog.Info("using in-memory storage")
		return &stores{
			states: fleet.NewMemoryStore(),
			cat:    catalog.NewMemoryCatalog(),
			close:  func() {},
		}, nil
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	slog.Info("database ready", "driver", sqlDB.Driver())
	return &stores{
		states: db.NewVehicleStore(sqlDB),
		cat:    db.NewCatalogStore(sqlDB),
		close:  func() { _ = sqlDB.Close() },
	}, nil
}
