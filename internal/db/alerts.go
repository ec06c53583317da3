package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"unibus-tracker/internal/eta"
	"unibus-tracker/internal/feedback"
)

const (
	DefaultAlertLimit = 50
	MaxAlertLimit     = 500
)

// Alert is one fired near-arrival alert.
type Alert struct {
	ID         int64     `json:"id"`
	VehicleID  string    `json:"vehicle_id"`
	StopID     string    `json:"stop_id"`
	StopName   string    `json:"stop_name"`
	BusLabel   string    `json:"bus_label"`
	Direction  string    `json:"direction"`
	EtaSeconds int       `json:"eta_seconds"`
	Source     string    `json:"source"`
	FiredAt    time.Time `json:"fired_at"`
}

// RecordUpdate stores the estimate of one tracker cycle and, when the cycle
// fired, the alert.
func (s *Store) RecordUpdate(ctx context.Context, u eta.Update) error {
	var sec sql.NullInt64
	if u.Estimate.Known() {
		sec = sql.NullInt64{Int64: int64(u.Estimate.Seconds), Valid: true}
	}
	if err := s.exec(ctx,
		`INSERT INTO eta_observations (vehicle_id, stop_id, eta_seconds, source, observed_at_ms)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.Selection.VehicleID, u.Selection.StopID, sec, string(u.Estimate.Source), millis(u.At),
	); err != nil {
		return fmt.Errorf("insert estimate: %w", err)
	}
	if !u.Alerted {
		return nil
	}
	return s.InsertAlert(ctx, Alert{
		VehicleID:  u.Selection.VehicleID,
		StopID:     u.Selection.StopID,
		StopName:   u.Selection.StopName,
		BusLabel:   u.Selection.BusLabel(),
		Direction:  string(u.Selection.Direction),
		EtaSeconds: u.Estimate.Seconds,
		Source:     string(u.Estimate.Source),
		FiredAt:    u.At,
	})
}

func (s *Store) InsertAlert(ctx context.Context, a Alert) error {
	if a.FiredAt.IsZero() {
		a.FiredAt = s.now()
	}
	if err := s.exec(ctx,
		`INSERT INTO arrival_alerts (vehicle_id, stop_id, stop_name, bus_label, direction, eta_seconds, source, fired_at_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.VehicleID, a.StopID, a.StopName, a.BusLabel, a.Direction, a.EtaSeconds, a.Source, millis(a.FiredAt),
	); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns the most recent alerts, newest first. limit is clamped
// to [1, MaxAlertLimit]; zero means DefaultAlertLimit.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]Alert, error) {
	switch {
	case limit <= 0:
		limit = DefaultAlertLimit
	case limit > MaxAlertLimit:
		limit = MaxAlertLimit
	}
	rows, err := s.conn.QueryContext(ctx, s.q(
		`SELECT id, vehicle_id, stop_id, stop_name, bus_label, direction, eta_seconds, source, fired_at_ms
		 FROM arrival_alerts ORDER BY fired_at_ms DESC, id DESC LIMIT $1`), limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		var a Alert
		var firedMs int64
		if err := rows.Scan(&a.ID, &a.VehicleID, &a.StopID, &a.StopName, &a.BusLabel, &a.Direction, &a.EtaSeconds, &a.Source, &firedMs); err != nil {
			return nil, err
		}
		a.FiredAt = fromMillis(firedMs)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// CountObservations returns how many estimates were stored for stopID.
func (s *Store) CountObservations(ctx context.Context, stopID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM eta_observations WHERE stop_id = $1`), stopID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return n, nil
}

// InsertSurvey keeps a local copy of a submitted ride survey.
func (s *Store) InsertSurvey(ctx context.Context, sv feedback.Survey, r feedback.Result) error {
	if err := s.exec(ctx,
		`INSERT INTO ride_surveys (user_id, vehicle_id, board_stop, board_time_ms, class_building, class_room,
		   class_start_ms, arrival_time_ms, travel_time_min, early_min, late_min, created_at_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sv.UserID, sv.VehicleID, sv.BoardStop, millis(sv.BoardTime), sv.ClassBuilding, sv.ClassRoom,
		millis(sv.ClassStartTime), millis(sv.ArrivalTime), r.TravelMinutes, r.EarlyMinutes, r.LateMinutes, millis(s.now()),
	); err != nil {
		return fmt.Errorf("insert survey: %w", err)
	}
	return nil
}

// SurveyStats summarizes the stored surveys.
type SurveyStats struct {
	Count        int     `json:"count"`
	AvgTravelMin float64 `json:"avg_travel_time_min"`
	LateRides    int     `json:"late_rides"`
}

func (s *Store) SurveyStats(ctx context.Context) (SurveyStats, error) {
	var st SurveyStats
	var avg sql.NullFloat64
	var late sql.NullInt64
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(travel_time_min), SUM(CASE WHEN late_min > 0 THEN 1 ELSE 0 END) FROM ride_surveys`,
	).Scan(&st.Count, &avg, &late)
	if err != nil {
		return SurveyStats{}, fmt.Errorf("survey stats: %w", err)
	}
	st.AvgTravelMin = avg.Float64
	st.LateRides = int(late.Int64)
	return st, nil
}
