package feedback

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Error string

func (err Error) Error() string {
	return string(err)
}

const ErrInvalidSurvey Error = "invalid survey"

// Survey is a rider's arrival confirmation for one ride.
type Survey struct {
	UserID         string    `json:"user_id,omitempty"`
	VehicleID      string    `json:"vehicle_id"`
	BoardStop      string    `json:"board_stop"`
	BoardTime      time.Time `json:"board_time"`
	ClassBuilding  string    `json:"class_building"`
	ClassRoom      string    `json:"class_room"`
	ClassStartTime time.Time `json:"class_start_time"`
	ArrivalTime    time.Time `json:"arrival_time"`
}

// Result holds the minutes derived from a survey.
type Result struct {
	TravelMinutes int `json:"travel_time_min"`
	EarlyMinutes  int `json:"early_min"`
	LateMinutes   int `json:"late_min"`
}

var fieldLimits = []struct {
	name string
	max  int
	get  func(Survey) string
}{
	{"vehicle_id", 64, func(s Survey) string { return s.VehicleID }},
	{"board_stop", 128, func(s Survey) string { return s.BoardStop }},
	{"class_building", 32, func(s Survey) string { return s.ClassBuilding }},
	{"class_room", 32, func(s Survey) string { return s.ClassRoom }},
}

func (s Survey) Validate() error {
	for _, f := range fieldLimits {
		v := strings.TrimSpace(f.get(s))
		if v == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidSurvey, f.name)
		}
		if len([]rune(v)) > f.max {
			return fmt.Errorf("%w: %s longer than %d", ErrInvalidSurvey, f.name, f.max)
		}
	}
	if s.BoardTime.IsZero() || s.ClassStartTime.IsZero() || s.ArrivalTime.IsZero() {
		return fmt.Errorf("%w: board_time, class_start_time and arrival_time are required", ErrInvalidSurvey)
	}
	return nil
}

// Compute validates s and derives travel, early and late minutes.
// Travel time rounds half to even; lateness rounds up and earliness down.
func Compute(s Survey) (Result, error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	travel := s.ArrivalTime.Sub(s.BoardTime).Minutes()
	delta := s.ArrivalTime.Sub(s.ClassStartTime).Minutes()
	return Result{
		TravelMinutes: max(0, int(math.RoundToEven(travel))),
		LateMinutes:   max(0, int(math.Ceil(delta))),
		EarlyMinutes:  max(0, int(math.Floor(-delta))),
	}, nil
}
