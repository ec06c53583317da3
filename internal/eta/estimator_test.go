package eta

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"unibus-tracker/internal/campus"
	"unibus-tracker/internal/geo"
)

type fakeBaseline struct {
	seconds int
	err     error
	calls   int
}

func (f *fakeBaseline) EtaBaseline(_ context.Context, _, _ string) (int, error) {
	f.calls++
	return f.seconds, f.err
}

type fakePositions struct {
	pos   campus.VehiclePosition
	err   error
	calls int
}

func (f *fakePositions) VehicleLatest(_ context.Context, vehicleID string) (campus.VehiclePosition, error) {
	f.calls++
	p := f.pos
	p.VehicleID = vehicleID
	return p, f.err
}

type fakeStops map[string]geo.Point

func (f fakeStops) Coordinates(stopID string) (geo.Point, bool) {
	p, ok := f[stopID]
	return p, ok
}

func speed(v float64) *float64 { return &v }

var gate = geo.Point{Lat: 37.3775, Lon: 126.6354}

func TestEstimateSourcePrecedence(t *testing.T) {
	baseline := &fakeBaseline{seconds: 240}
	positions := &fakePositions{pos: campus.VehiclePosition{Lat: 37.38, Lon: 126.635}}
	e := NewEstimator(baseline, positions, fakeStops{"gate": gate}, zerolog.Nop())

	got := e.Estimate(context.Background(), "bus-01", "gate")

	assert.Equal(t, Estimate{Seconds: 240, Source: SourceBaseline}, got)
	assert.Equal(t, 1, baseline.calls)
	assert.Equal(t, 0, positions.calls, "fallback must not run when the baseline answers")
}

func TestEstimateFallback(t *testing.T) {
	tests := []struct {
		name     string
		pos      campus.VehiclePosition
		expected int
	}{
		{
			name:     "speed unreported uses default",
			pos:      campus.VehiclePosition{Lat: 37.3800, Lon: 126.6350},
			expected: 56,
		},
		{
			name:     "identical coordinates clamp to one second",
			pos:      campus.VehiclePosition{Lat: gate.Lat, Lon: gate.Lon, SpeedMPS: speed(8)},
			expected: 1,
		},
		{
			name:     "zero speed floored",
			pos:      campus.VehiclePosition{Lat: 37.3800, Lon: 126.6350, SpeedMPS: speed(0)},
			expected: 93,
		},
		{
			name:     "reported speed used",
			pos:      campus.VehiclePosition{Lat: 37.3800, Lon: 126.6350, SpeedMPS: speed(10)},
			expected: 28,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseline := &fakeBaseline{err: ErrNoValue}
			positions := &fakePositions{pos: tt.pos}
			e := NewEstimator(baseline, positions, fakeStops{"gate": gate}, zerolog.Nop())

			got := e.Estimate(context.Background(), "bus-01", "gate")

			assert.Equal(t, SourceFallback, got.Source)
			assert.Equal(t, tt.expected, got.Seconds)
			assert.Equal(t, 1, positions.calls)
		})
	}
}

func TestEstimateUnknown(t *testing.T) {
	t.Run("both sources fail", func(t *testing.T) {
		e := NewEstimator(
			&fakeBaseline{err: errors.New("connection refused")},
			&fakePositions{err: errors.New("404")},
			fakeStops{"gate": gate},
			zerolog.Nop(),
		)
		assert.False(t, e.Estimate(context.Background(), "bus-01", "gate").Known())
	})

	t.Run("stop without coordinates skips position fetch", func(t *testing.T) {
		positions := &fakePositions{}
		e := NewEstimator(&fakeBaseline{err: ErrNoValue}, positions, fakeStops{}, zerolog.Nop())
		assert.Equal(t, Unknown(), e.Estimate(context.Background(), "bus-01", "gate"))
		assert.Equal(t, 0, positions.calls)
	})

	t.Run("empty stop", func(t *testing.T) {
		baseline := &fakeBaseline{seconds: 10}
		e := NewEstimator(baseline, nil, nil, zerolog.Nop())
		assert.False(t, e.Estimate(context.Background(), "bus-01", "").Known())
		assert.Equal(t, 0, baseline.calls)
	})
}

func TestEffectiveSpeed(t *testing.T) {
	assert.Equal(t, DefaultSpeedMPS, EffectiveSpeed(nil))
	assert.Equal(t, MinSpeedMPS, EffectiveSpeed(speed(0)))
	assert.Equal(t, MinSpeedMPS, EffectiveSpeed(speed(-4)))
	assert.Equal(t, 12.5, EffectiveSpeed(speed(12.5)))
}

func TestSecondsFromDistance(t *testing.T) {
	assert.Equal(t, 1, SecondsFromDistance(0, 5))
	assert.Equal(t, 1, SecondsFromDistance(2, 5))
	assert.Equal(t, 3, SecondsFromDistance(12.5, 5), "halves round up")
	assert.Equal(t, 100, SecondsFromDistance(500, 5))
	assert.Equal(t, 4, SecondsFromDistance(12, 0), "non-positive speed is floored")
}
