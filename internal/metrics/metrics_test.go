package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unibus-tracker/internal/campus"
	"unibus-tracker/internal/eta"
)

func TestObserveCycle(t *testing.T) {
	c := NewCollector(10*time.Second, 60)

	c.ObserveCycle("baseline", 120, true, false, 20*time.Millisecond)
	c.ObserveCycle("fallback", 45, true, true, 30*time.Millisecond)
	c.ObserveCycle("unknown", 0, false, false, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Cycles.WithLabelValues("baseline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Cycles.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AlertsFired))
	assert.Equal(t, -1.0, testutil.ToFloat64(c.LastEtaSeconds))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.PollInterval))
	assert.Equal(t, 60.0, testutil.ToFloat64(c.ThresholdSeconds))
}

func TestGauges(t *testing.T) {
	c := NewCollector(time.Second, 60)

	c.SetTracking(true)
	c.NATSSetConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TrackingActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))

	c.SetTracking(false)
	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.TrackingActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))
}

type steadyEstimator struct{}

func (steadyEstimator) Estimate(context.Context, string, string) eta.Estimate {
	return eta.Estimate{Seconds: 300, Source: eta.SourceBaseline}
}

func TestTrackingGaugeFollowsTracker(t *testing.T) {
	c := NewCollector(time.Millisecond, 60)
	tr := eta.NewTracker(steadyEstimator{}, nil, eta.TrackerOptions{
		PollInterval: time.Millisecond,
		OnTracking:   c.SetTracking,
	}, zerolog.Nop())
	defer tr.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	sel := eta.Selection{VehicleID: "bus-01", StopID: "stop-eng", Direction: campus.ToCampus}
	require.NoError(t, tr.Select(ctx, sel))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TrackingActive))

	cancel()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c.TrackingActive) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(time.Second, 60)
	c.NATSPublishedInc()
	c.SurveyOutcome("ok")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "unibus_nats_published_total 1")
	assert.Contains(t, string(body), `unibus_surveys_total{outcome="ok"} 1`)
}
