package campus

import (
	"sort"
	"strings"
)

const (
	KindBuilding = "building"
	KindStation  = "station"
)

// BoardingChoices lists the on-campus stops a rider can board at when leaving campus.
func BoardingChoices() []Destination {
	return []Destination{
		{ID: StopDormitory, Name: "Dormitory", Detail: "Dormitory stop", Kind: KindStation, StopID: StopDormitory, StopName: "Dormitory"},
		{ID: StopEngineer, Name: "Engineering / IT College", Detail: "Engineering and IT line", Kind: KindStation, StopID: StopEngineer, StopName: "Engineering / IT College"},
		{ID: StopMainGate, Name: "Main Gate", Detail: "Main gate stop", Kind: KindStation, StopID: StopMainGate, StopName: "Main Gate"},
	}
}

type building struct {
	id, name string
	lat, lon float64
	stopID   string
}

var fallbackBuildings = []building{
	{"b1", "Building 1", 37.3782, 126.6352, StopMainGate},
	{"b2", "Building 2", 37.3780, 126.6355, StopMainGate},
	{"b4", "Building 4", 37.3773, 126.6349, StopMainGate},
	{"b5", "Building 5 (Natural Sciences)", 37.3742, 126.6339, StopEngineer},
	{"b6", "Building 6 (Library)", 37.3745, 126.6341, StopEngineer},
	{"b7", "Building 7 (Information Technology)", 37.3743, 126.6336, StopEngineer},
	{"b8", "Building 8 (Engineering)", 37.3740, 126.6346, StopEngineer},
	{"b11", "Building 11 (Dormitory)", 37.3741, 126.6300, StopDormitory},
	{"b18", "Building 18 (Student Union)", 37.3752, 126.6322, StopDormitory},
}

// walking speed used for drop-off guidance, ~4.9km/h
const avgWalkMPS = 1.35

// FallbackGuides builds drop-off guides from the built-in building list,
// resolving recommended stops through table.
func FallbackGuides(table *StopTable) []DropoffGuide {
	guides := make([]DropoffGuide, 0, len(fallbackBuildings))
	for _, b := range fallbackBuildings {
		stop, ok := table.Lookup(b.stopID)
		if !ok {
			continue
		}
		g := DropoffGuide{
			BuildingID:      b.id,
			BuildingName:    b.name,
			Lat:             b.lat,
			Lon:             b.lon,
			RecommendedStop: stop,
		}
		g.WalkDistanceM = haversineTo(stop, b.lat, b.lon)
		g.WalkMinutes = g.WalkDistanceM / (avgWalkMPS * 60)
		guides = append(guides, g)
	}
	sort.Slice(guides, func(i, j int) bool { return guides[i].BuildingName < guides[j].BuildingName })
	return guides
}

// Destinations returns the selectable list for a direction. Heading to campus
// the list comes from guides (falling back to the built-in list when empty);
// leaving campus it is the fixed set of boarding stops.
func Destinations(dir Direction, guides []DropoffGuide, table *StopTable) []Destination {
	if dir == FromCampus {
		return BoardingChoices()
	}
	if len(guides) == 0 {
		guides = FallbackGuides(table)
	}
	out := make([]Destination, 0, len(guides))
	for _, g := range guides {
		stopName := g.RecommendedStop.Name
		if strings.TrimSpace(stopName) == "" {
			stopName = g.RecommendedStop.ID
		}
		out = append(out, Destination{
			ID:       g.BuildingID,
			Name:     g.BuildingName,
			Detail:   stopName,
			Kind:     KindBuilding,
			StopID:   g.RecommendedStop.ID,
			StopName: stopName,
		})
	}
	return out
}

// FindDestination looks a destination up by id in list.
func FindDestination(list []Destination, id string) (Destination, bool) {
	for _, d := range list {
		if d.ID == id {
			return d, true
		}
	}
	return Destination{}, false
}
