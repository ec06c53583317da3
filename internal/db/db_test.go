package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unibus-tracker/internal/campus"
	"unibus-tracker/internal/eta"
	"unibus-tracker/internal/feedback"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name, dsn      string
		driver, source string
		wantErr        bool
	}{
		{name: "postgres", dsn: "postgres://u:p@localhost:5432/unibus", driver: DriverPostgres, source: "postgres://u:p@localhost:5432/unibus"},
		{name: "postgresql", dsn: "postgresql://localhost/unibus", driver: DriverPostgres, source: "postgresql://localhost/unibus"},
		{name: "no scheme", dsn: "localhost:5432/unibus", driver: DriverPostgres, source: "postgres://localhost:5432/unibus"},
		{name: "sqlite file", dsn: "sqlite:///var/lib/unibus.db", driver: DriverSQLite, source: "/var/lib/unibus.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
		{name: "sqlite memory", dsn: "sqlite::memory:", driver: DriverSQLite, source: "file::memory:?cache=shared"},
		{name: "empty", dsn: "  ", wantErr: true},
		{name: "sqlite no path", dsn: "sqlite://", wantErr: true},
		{name: "mysql", dsn: "mysql://localhost/db", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, source, err := ParseDSN(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestPlaceholderRewrite(t *testing.T) {
	s := &Store{driver: DriverSQLite}
	assert.Equal(t, "SELECT ? , ?, ?", s.q("SELECT $1 , $2, $10"))
	s.driver = DriverPostgres
	assert.Equal(t, "SELECT $1", s.q("SELECT $1"))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite://" + filepath.Join(t.TempDir(), "unibus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func update(stopID string, est eta.Estimate, alerted bool, at time.Time) eta.Update {
	return eta.Update{
		Selection: eta.Selection{VehicleID: "bus-01", StopID: stopID, StopName: "Main Gate", Direction: campus.ToCampus},
		Estimate:  est,
		Alerted:   alerted,
		At:        at,
	}
}

func TestRecordUpdateAndListAlerts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 17, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordUpdate(ctx, update("stop-main-gate", eta.Estimate{Seconds: 120, Source: eta.SourceBaseline}, false, base)))
	require.NoError(t, s.RecordUpdate(ctx, update("stop-main-gate", eta.Unknown(), false, base.Add(10*time.Second))))
	require.NoError(t, s.RecordUpdate(ctx, update("stop-main-gate", eta.Estimate{Seconds: 45, Source: eta.SourceFallback}, true, base.Add(20*time.Second))))
	require.NoError(t, s.RecordUpdate(ctx, update("stop-dorm", eta.Estimate{Seconds: 30, Source: eta.SourceBaseline}, true, base.Add(30*time.Second))))

	n, err := s.CountObservations(ctx, "stop-main-gate")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	alerts, err := s.ListAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "stop-dorm", alerts[0].StopID)
	assert.Equal(t, "stop-main-gate", alerts[1].StopID)
	assert.Equal(t, 45, alerts[1].EtaSeconds)
	assert.Equal(t, "fallback", alerts[1].Source)
	assert.Equal(t, "Shuttle A", alerts[1].BusLabel)
	assert.True(t, alerts[1].FiredAt.Equal(base.Add(20*time.Second)))

	limited, err := s.ListAlerts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "stop-dorm", limited[0].StopID)
}

func TestListAlertsEmpty(t *testing.T) {
	s := openTestStore(t)
	alerts, err := s.ListAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.EnsureSchema(context.Background()))
}

func TestSurveys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kst := time.FixedZone("KST", 9*3600)
	sv := feedback.Survey{
		VehicleID:      "bus-01",
		BoardStop:      "stop-incheon-univ-stn",
		BoardTime:      time.Date(2025, 11, 17, 9, 5, 0, 0, kst),
		ClassBuilding:  "7",
		ClassRoom:      "301",
		ClassStartTime: time.Date(2025, 11, 17, 9, 30, 0, 0, kst),
		ArrivalTime:    time.Date(2025, 11, 17, 9, 27, 0, 0, kst),
	}

	require.NoError(t, s.InsertSurvey(ctx, sv, feedback.Result{TravelMinutes: 22, EarlyMinutes: 3}))
	require.NoError(t, s.InsertSurvey(ctx, sv, feedback.Result{TravelMinutes: 30, LateMinutes: 2}))

	st, err := s.SurveyStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Count)
	assert.InDelta(t, 26.0, st.AvgTravelMin, 1e-9)
	assert.Equal(t, 1, st.LateRides)
}

func TestSurveyStatsEmpty(t *testing.T) {
	s := openTestStore(t)
	st, err := s.SurveyStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SurveyStats{}, st)
}
