package eta

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"unibus-tracker/internal/campus"
	"unibus-tracker/internal/geo"
)

const (
	// MinSpeedMPS floors the reported speed so a stopped bus does not divide by zero.
	MinSpeedMPS = 3.0
	// DefaultSpeedMPS is assumed when the vehicle reports no speed.
	DefaultSpeedMPS = 5.0
	// MinEstimateSeconds is the smallest estimate the fallback produces.
	MinEstimateSeconds = 1
)

type Source string

const (
	SourceBaseline Source = "baseline"
	SourceFallback Source = "fallback"
	SourceUnknown  Source = "unknown"
)

// Estimate is the seconds-to-arrival produced by one cycle. Seconds is only
// meaningful when Known reports true.
type Estimate struct {
	Seconds int    `json:"eta_seconds"`
	Source  Source `json:"source"`
}

func Unknown() Estimate { return Estimate{Source: SourceUnknown} }

func (e Estimate) Known() bool { return e.Source == SourceBaseline || e.Source == SourceFallback }

type BaselineSource interface {
	EtaBaseline(ctx context.Context, vehicleID, stopID string) (int, error)
}

type PositionSource interface {
	VehicleLatest(ctx context.Context, vehicleID string) (campus.VehiclePosition, error)
}

type StopLocator interface {
	Coordinates(stopID string) (geo.Point, bool)
}

// Estimating is what the tracker needs from an estimator.
type Estimating interface {
	Estimate(ctx context.Context, vehicleID, stopID string) Estimate
}

type Estimator struct {
	baseline  BaselineSource
	positions PositionSource
	stops     StopLocator
	log       zerolog.Logger
}

func NewEstimator(baseline BaselineSource, positions PositionSource, stops StopLocator, logger zerolog.Logger) *Estimator {
	return &Estimator{
		baseline:  baseline,
		positions: positions,
		stops:     stops,
		log:       logger.With().Str("component", "estimator").Logger(),
	}
}

// Estimate prefers the server baseline and falls back to distance over speed.
// Source failures are absorbed; the next cycle is the retry.
func (e *Estimator) Estimate(ctx context.Context, vehicleID, stopID string) Estimate {
	if stopID == "" {
		return Unknown()
	}
	if e.baseline != nil {
		sec, err := e.baseline.EtaBaseline(ctx, vehicleID, stopID)
		if err == nil {
			return Estimate{Seconds: sec, Source: SourceBaseline}
		}
		e.log.Debug().Err(err).Str("vehicle", vehicleID).Str("stop", stopID).Msg("baseline unavailable")
	}

	if e.positions == nil || e.stops == nil {
		return Unknown()
	}
	target, ok := e.stops.Coordinates(stopID)
	if !ok {
		e.log.Debug().Str("stop", stopID).Msg("no coordinates for stop")
		return Unknown()
	}
	pos, err := e.positions.VehicleLatest(ctx, vehicleID)
	if err != nil {
		e.log.Debug().Err(err).Str("vehicle", vehicleID).Msg("vehicle position unavailable")
		return Unknown()
	}
	dist := geo.Haversine(pos.Point(), target)
	return Estimate{Seconds: SecondsFromDistance(dist, EffectiveSpeed(pos.SpeedMPS)), Source: SourceFallback}
}

// EffectiveSpeed returns the speed used by the fallback: the reported speed
// (DefaultSpeedMPS if absent) floored at MinSpeedMPS.
func EffectiveSpeed(reported *float64) float64 {
	v := DefaultSpeedMPS
	if reported != nil && !math.IsNaN(*reported) && !math.IsInf(*reported, 0) {
		v = *reported
	}
	return math.Max(MinSpeedMPS, v)
}

// SecondsFromDistance rounds meters/speed to whole seconds, at least MinEstimateSeconds.
func SecondsFromDistance(meters, speedMPS float64) int {
	if speedMPS <= 0 {
		speedMPS = MinSpeedMPS
	}
	sec := int(math.Round(meters / speedMPS))
	if sec < MinEstimateSeconds {
		sec = MinEstimateSeconds
	}
	return sec
}
