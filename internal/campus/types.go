package campus

import (
	"fmt"
	"strings"

	"unibus-tracker/internal/geo"
)

type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
	Seq  int // position along the route, 0 if unknown
}

func (s Stop) Point() geo.Point { return geo.Point{Lat: s.Lat, Lon: s.Lon} }

// Direction is the travel direction relative to campus.
type Direction string

const (
	ToCampus   Direction = "to_campus"
	FromCampus Direction = "from_campus"
)

// BusLabel is the shuttle shown in arrival notifications.
func (d Direction) BusLabel() string {
	if d == FromCampus {
		return "Shuttle C"
	}
	return "Shuttle A"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "to_campus", "to-campus", "tocampus", "inbound":
		return ToCampus, nil
	case "from_campus", "from-campus", "fromcampus", "outbound":
		return FromCampus, nil
	default:
		return "", fmt.Errorf("invalid direction: %q", s)
	}
}

// Destination is a selectable entry of the prediction screen: a building
// when heading to campus, a boarding stop when leaving it.
type Destination struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Detail   string `json:"detail"`
	Kind     string `json:"type"` // building | station
	StopID   string `json:"stop_id"`
	StopName string `json:"stop_name"`
}

// DropoffGuide recommends the stop to get off at for a campus building.
type DropoffGuide struct {
	BuildingID      string
	BuildingName    string
	Lat             float64
	Lon             float64
	RecommendedStop Stop
	WalkDistanceM   float64
	WalkMinutes     float64
	Notes           string
}

func haversineTo(s Stop, lat, lon float64) float64 {
	return geo.Haversine(s.Point(), geo.Point{Lat: lat, Lon: lon})
}

// VehiclePosition is the latest reported position of a shuttle. SpeedMPS is
// nil when the vehicle did not report a speed.
type VehiclePosition struct {
	VehicleID string
	Lat       float64
	Lon       float64
	SpeedMPS  *float64
	Heading   *float64
	Timestamp int64 // unix seconds, 0 if unknown
}

func (p VehiclePosition) Point() geo.Point { return geo.Point{Lat: p.Lat, Lon: p.Lon} }
