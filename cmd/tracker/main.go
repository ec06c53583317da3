package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"unibus-tracker/internal/api"
	"unibus-tracker/internal/campus"
	"unibus-tracker/internal/config"
	"unibus-tracker/internal/db"
	"unibus-tracker/internal/eta"
	"unibus-tracker/internal/feedback"
	"unibus-tracker/internal/metrics"
	"unibus-tracker/internal/notify"
	"unibus-tracker/internal/publisher"
	"unibus-tracker/internal/relay"
	"unibus-tracker/internal/session"
	"unibus-tracker/internal/unibus"
)

const shutdownTimeout = 3 * time.Second

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "unibus-tracker").Logger()

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	var shutdowns []func(context.Context) error
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.PollInterval, cfg.ThresholdSeconds)
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		shutdowns = append(shutdowns, srv.Shutdown)
	}

	// Event fan-out
	var pub relay.Publisher
	if cfg.NATSURL != "" {
		np, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats error")
		}
		defer np.Close()
		pub = np
	}

	// Alert history
	var store *db.Store
	if cfg.AlertStoreDSN != "" {
		store, err = db.Open(cfg.AlertStoreDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("db open error")
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("db ping error")
		}
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("db schema error")
		}
		logger.Info().Str("driver", store.Driver()).Msg("alert history enabled")
	}

	// Rider session
	notes := notify.NewStore(cfg.Location)
	sess := session.New(notes)
	if cfg.AccessToken != "" {
		sess.SetToken(cfg.AccessToken)
	}

	client, err := unibus.New(cfg.BaseURL, sess, unibus.Options{Timeout: cfg.HTTPTimeout, CacheTTL: cfg.CacheTTL}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("unibus client error")
	}

	stops := campus.NewStopTable()
	refresher := campus.NewRefresher(client, cfg.RouteID, cfg.RouteRefresh, stops, logger)
	refresher.Start(ctx)

	estimator := eta.NewEstimator(client, client, stops, logger)
	tracker := eta.NewTracker(estimator, notes, eta.TrackerOptions{
		PollInterval:     cfg.PollInterval,
		CycleTimeout:     cfg.HTTPTimeout,
		ThresholdSeconds: cfg.ThresholdSeconds,
		OnTracking:       trackingGauge(mcol),
	}, logger)

	var recorder relay.Recorder
	var surveyRecorder feedback.Recorder
	if store != nil {
		recorder = store
		surveyRecorder = store
	}
	var rm relay.Metrics
	if mcol != nil {
		rm = mcol
	}
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.New(pub, recorder, rm, logger).Run(tracker.Updates())
	}()

	deps := api.Deps{
		Tracker:   tracker,
		Session:   sess,
		Stops:     stops,
		Guides:    client,
		Surveys:   &countedSurveys{svc: feedback.NewService(client, surveyRecorder, logger), m: mcol},
		Auth:      client,
		VehicleID: cfg.VehicleID,
		Origins:   cfg.CORSOrigins,
	}
	if store != nil {
		deps.History = store
	}
	apiSrv := api.New(ctx, deps, logger).Serve(cfg.HTTPAddr)
	shutdowns = append([]func(context.Context) error{apiSrv.Shutdown}, shutdowns...)

	logger.Info().
		Str("vehicle", cfg.VehicleID).
		Str("route", cfg.RouteID).
		Dur("poll_interval", cfg.PollInterval).
		Int("threshold_sec", cfg.ThresholdSeconds).
		Msg("tracker ready")

	// Block until context cancelled
	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	for _, shutdown := range shutdowns {
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("server shutdown")
		}
	}
	tracker.Stop()
	<-relayDone
	refresher.Stop()
	logger.Info().Msg("shutdown complete")
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return c
}

// trackingGauge mirrors the tracker's loop state into the metrics gauge.
func trackingGauge(c *metrics.Collector) func(bool) {
	if c == nil {
		return nil
	}
	return c.SetTracking
}

type countedSurveys struct {
	svc *feedback.Service
	m   *metrics.Collector
}

func (s *countedSurveys) Submit(ctx context.Context, sv feedback.Survey) (feedback.Result, error) {
	res, err := s.svc.Submit(ctx, sv)
	if s.m != nil {
		switch {
		case err == nil:
			s.m.SurveyOutcome("ok")
		case errors.Is(err, feedback.ErrInvalidSurvey):
			s.m.SurveyOutcome("invalid")
		default:
			s.m.SurveyOutcome("remote_error")
		}
	}
	return res, err
}
