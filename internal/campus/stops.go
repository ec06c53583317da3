package campus

import (
	"sync"

	"unibus-tracker/internal/geo"
)

const (
	StopMainGate    = "stop-main-gate"
	StopEngineer    = "stop-eng"
	StopDormitory   = "stop-dorm"
	StopUnivStation = "stop-incheon-univ-stn"

	// DefaultRouteID is the shuttle route whose stops enrich the static table.
	DefaultRouteID = "inu-a"
	// DefaultVehicleID is the tracked shuttle.
	DefaultVehicleID = "bus-01"
)

// approximate coordinates, used until the route description is loaded
var staticStops = []Stop{
	{ID: StopMainGate, Name: "Main Gate", Lat: 37.3775, Lon: 126.6354},
	{ID: StopEngineer, Name: "Engineering / IT College", Lat: 37.3743, Lon: 126.6339},
	{ID: StopDormitory, Name: "Dormitory", Lat: 37.3739, Lon: 126.6298},
	{ID: StopUnivStation, Name: "Incheon Nat'l Univ. Station", Lat: 37.3860, Lon: 126.6394},
}

// StopTable maps stop ids to coordinates. It is safe for concurrent use.
type StopTable struct {
	mu    sync.RWMutex
	stops map[string]Stop
}

// NewStopTable returns a table seeded with the static campus stops.
func NewStopTable() *StopTable {
	t := &StopTable{stops: make(map[string]Stop, len(staticStops))}
	for _, s := range staticStops {
		t.stops[s.ID] = s
	}
	return t
}

func (t *StopTable) Lookup(stopID string) (Stop, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.stops[stopID]
	return s, ok
}

// Coordinates implements the estimator's stop coordinate lookup.
func (t *StopTable) Coordinates(stopID string) (geo.Point, bool) {
	s, ok := t.Lookup(stopID)
	if !ok {
		return geo.Point{}, false
	}
	return s.Point(), true
}

// Merge overlays route stops on the table. Stops without coordinates are
// skipped; an empty name keeps the existing one. Returns the number merged.
func (t *StopTable) Merge(stops []Stop) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range stops {
		if s.ID == "" || (s.Lat == 0 && s.Lon == 0) {
			continue
		}
		if s.Name == "" {
			s.Name = t.stops[s.ID].Name
		}
		t.stops[s.ID] = s
		n++
	}
	return n
}

func (t *StopTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.stops)
}
