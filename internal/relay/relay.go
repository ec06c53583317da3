package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"unibus-tracker/internal/eta"
)

const defaultWriteTimeout = 3 * time.Second

type Publisher interface {
	PublishUpdate(u eta.Update) error
}

type Recorder interface {
	RecordUpdate(ctx context.Context, u eta.Update) error
}

type Metrics interface {
	ObserveCycle(source string, etaSeconds int, known, alerted bool, d time.Duration)
	StoreWriteErrInc()
}

// Relay forwards tracker updates to the event bus, the history store and
// metrics. Any of them may be nil.
type Relay struct {
	pub          Publisher
	rec          Recorder
	m            Metrics
	writeTimeout time.Duration
	log          zerolog.Logger
}

func New(pub Publisher, rec Recorder, m Metrics, logger zerolog.Logger) *Relay {
	return &Relay{
		pub:          pub,
		rec:          rec,
		m:            m,
		writeTimeout: defaultWriteTimeout,
		log:          logger.With().Str("component", "relay").Logger(),
	}
}

// Run handles updates until the channel is closed.
func (r *Relay) Run(updates <-chan eta.Update) {
	for u := range updates {
		r.Handle(u)
	}
	r.log.Debug().Msg("updates closed")
}

// Handle forwards one update. Failures are logged and counted.
func (r *Relay) Handle(u eta.Update) {
	lg := r.log.With().Str("stop", u.Selection.StopID).Logger()

	if r.m != nil {
		r.m.ObserveCycle(string(u.Estimate.Source), u.Estimate.Seconds, u.Estimate.Known(), u.Alerted, u.Duration)
	}
	if r.pub != nil {
		if err := r.pub.PublishUpdate(u); err != nil {
			lg.Warn().Err(err).Msg("publish update")
		}
	}
	if r.rec != nil {
		// detached from tracking cancellation
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		err := r.rec.RecordUpdate(ctx, u)
		cancel()
		if err != nil {
			if r.m != nil {
				r.m.StoreWriteErrInc()
			}
			lg.Error().Err(err).Msg("record update")
		}
	}
	lg.Debug().
		Int("eta_seconds", u.Estimate.Seconds).
		Str("source", string(u.Estimate.Source)).
		Bool("alerted", u.Alerted).
		Msg("cycle")
}
