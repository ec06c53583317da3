package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Collector struct {
	reg *prometheus.Registry

	TrackingActive prometheus.Gauge
	LastEtaSeconds prometheus.Gauge // -1 when unknown

	Cycles        *prometheus.CounterVec // source label: baseline|fallback|unknown
	AlertsFired   prometheus.Counter
	SurveysSent   *prometheus.CounterVec // outcome label: ok|remote_error|invalid
	StoreWriteErr prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	CycleDuration   prometheus.Histogram
	PublishDuration prometheus.Histogram

	PollInterval     prometheus.Gauge // seconds
	ThresholdSeconds prometheus.Gauge
}

func NewCollector(pollInterval time.Duration, thresholdSeconds int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TrackingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unibus_tracking_active",
			Help: "1 while a stop is being tracked, 0 otherwise.",
		}),
		LastEtaSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unibus_last_eta_seconds",
			Help: "Most recent estimate in seconds, -1 when unknown.",
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unibus_estimate_cycles_total",
			Help: "Estimator cycles by the source that answered.",
		}, []string{"source"}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unibus_alerts_fired_total",
			Help: "Total near-arrival alerts fired.",
		}),
		SurveysSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unibus_surveys_total",
			Help: "Ride surveys handled by outcome.",
		}, []string{"outcome"}),
		StoreWriteErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unibus_store_write_errors_total",
			Help: "Failed writes to the alert history store.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unibus_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unibus_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unibus_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "unibus_cycle_duration_seconds",
			Help:    "Duration of one estimator cycle including remote calls.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "unibus_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unibus_poll_interval_seconds",
			Help: "Tracker poll interval in seconds.",
		}),
		ThresholdSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unibus_alert_threshold_seconds",
			Help: "Near-arrival alert threshold in seconds.",
		}),
	}

	reg.MustRegister(
		c.TrackingActive, c.LastEtaSeconds,
		c.Cycles, c.AlertsFired, c.SurveysSent, c.StoreWriteErr,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.CycleDuration, c.PublishDuration,
		c.PollInterval, c.ThresholdSeconds,
	)

	c.PollInterval.Set(pollInterval.Seconds())
	c.ThresholdSeconds.Set(float64(thresholdSeconds))

	return c
}

// ObserveCycle records one estimator cycle.
func (c *Collector) ObserveCycle(source string, etaSeconds int, known, alerted bool, d time.Duration) {
	c.Cycles.WithLabelValues(source).Inc()
	c.CycleDuration.Observe(d.Seconds())
	if known {
		c.LastEtaSeconds.Set(float64(etaSeconds))
	} else {
		c.LastEtaSeconds.Set(-1)
	}
	if alerted {
		c.AlertsFired.Inc()
	}
}

func (c *Collector) SetTracking(active bool) {
	if active {
		c.TrackingActive.Set(1)
		return
	}
	c.TrackingActive.Set(0)
}

func (c *Collector) SurveyOutcome(outcome string) { c.SurveysSent.WithLabelValues(outcome).Inc() }

func (c *Collector) StoreWriteErrInc() { c.StoreWriteErr.Inc() }

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}
