package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ReportsAccepted prometheus.Counter
	ReportsRejected *prometheus.CounterVec // kind label: MissingField|InvalidType|OutOfRange|StorageError
	StoreWrite      prometheus.Histogram

	Estimates        *prometheus.CounterVec // outcome label: ok|NotFound|Unassigned|NoStops|StorageError
	EstimateDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSReceived    prometheus.Counter
	NATSConnected   prometheus.Gauge

	SimVehicles prometheus.Gauge
	SimReports  *prometheus.CounterVec // result label: ok|error

	SyncPolls     *prometheus.CounterVec // result label: ok|error
	SyncVehicles  prometheus.Gauge
	SyncWSClients prometheus.Gauge
	SnapshotLimit prometheus.Gauge
	MinSpeedKmh   prometheus.Gauge
	PollIntervalS prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ReportsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_reports_accepted_total",
			Help: "Position reports accepted and stored.",
		}),
		ReportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_reports_rejected_total",
			Help: "Position reports rejected, by error kind.",
		}, []string{"kind"}),
		StoreWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_store_write_duration_seconds",
			Help:    "Duration of a vehicle state upsert.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		Estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_eta_estimates_total",
			Help: "ETA estimates, by outcome.",
		}, []string{"outcome"}),
		EstimateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_eta_duration_seconds",
			Help:    "Duration of an ETA estimate including store and catalog reads.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_received_total",
			Help: "Total position reports received over NATS.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		SimVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_active_vehicles",
			Help: "Number of currently running simulated vehicles.",
		}),
		SimReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_reports_total",
			Help: "Reports sent by the simulator, by result.",
		}, []string{"result"}),
		SyncPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livesync_polls_total",
			Help: "Fleet snapshot polls, by result.",
		}, []string{"result"}),
		SyncVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livesync_vehicles",
			Help: "Vehicles in the last synced snapshot.",
		}),
		SyncWSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livesync_websocket_clients",
			Help: "Connected websocket clients.",
		}),
		SnapshotLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_snapshot_limit",
			Help: "Configured fleet snapshot cap.",
		}),
		MinSpeedKmh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_eta_min_speed_kmh",
			Help: "Configured ETA speed floor.",
		}),
		PollIntervalS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livesync_poll_interval_seconds",
			Help: "Live sync poll interval in seconds.",
		}),
	}

	// Register
	reg.MustRegister(
		c.ReportsAccepted, c.ReportsRejected, c.StoreWrite,
		c.Estimates, c.EstimateDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSReceived, c.NATSConnected,
		c.SimVehicles, c.SimReports,
		c.SyncPolls, c.SyncVehicles, c.SyncWSClients,
		c.SnapshotLimit, c.MinSpeedKmh, c.PollIntervalS,
	)
	return c
}

// ReportAccepted implements ingest.Observer.
func (c *Collector) ReportAccepted(storeLatency time.Duration) {
	c.ReportsAccepted.Inc()
	c.StoreWrite.Observe(storeLatency.Seconds())
}

// ReportRejected implements ingest.Observer.
func (c *Collector) ReportRejected(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	c.ReportsRejected.WithLabelValues(kind).Inc()
}

// EstimateDone implements eta.Observer.
func (c *Collector) EstimateDone(outcome string, d time.Duration) {
	c.Estimates.WithLabelValues(outcome).Inc()
	c.EstimateDuration.Observe(d.Seconds())
}

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }
func (c *Collector) NATSReceivedInc()   { c.NATSReceived.Inc() }
func (c *Collector) NATSSetConnected(b bool) {
	if b {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

// SimVehicleRunning implements sim.Metrics.
func (c *Collector) SimVehicleRunning(n int) { c.SimVehicles.Set(float64(n)) }

func (c *Collector) SimReportSent(err error) {
	if err != nil {
		c.SimReports.WithLabelValues("error").Inc()
		return
	}
	c.SimReports.WithLabelValues("ok").Inc()
}

// SyncDone implements livesync.Metrics.
func (c *Collector) SyncDone(vehicles int, err error) {
	if err != nil {
		c.SyncPolls.WithLabelValues("error").Inc()
		return
	}
	c.SyncPolls.WithLabelValues("ok").Inc()
	c.SyncVehicles.Set(float64(vehicles))
}

func (c *Collector) SetWSClients(n int) { c.SyncWSClients.Set(float64(n)) }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	slog.Info("metrics listening", "addr", addr)
	return srv
}
