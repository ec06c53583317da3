package campus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in       string
		expected Direction
		wantErr  bool
	}{
		{"to_campus", ToCampus, false},
		{"TO-CAMPUS", ToCampus, false},
		{" from_campus ", FromCampus, false},
		{"outbound", FromCampus, false},
		{"sideways", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBusLabel(t *testing.T) {
	assert.Equal(t, "Shuttle A", ToCampus.BusLabel())
	assert.Equal(t, "Shuttle C", FromCampus.BusLabel())
}

func TestStopTableMerge(t *testing.T) {
	table := NewStopTable()
	before := table.Len()

	gate, ok := table.Coordinates(StopMainGate)
	require.True(t, ok)
	assert.InDelta(t, 37.3775, gate.Lat, 1e-9)

	n := table.Merge([]Stop{
		{ID: StopMainGate, Lat: 37.377730, Lon: 126.635094, Seq: 2},
		{ID: "stop-new", Name: "New Stop", Lat: 37.1, Lon: 126.1},
		{ID: "stop-no-coords", Name: "Nowhere"},
		{ID: "", Lat: 1, Lon: 1},
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, before+1, table.Len())

	merged, ok := table.Lookup(StopMainGate)
	require.True(t, ok)
	assert.Equal(t, "Main Gate", merged.Name, "empty name keeps the static one")
	assert.InDelta(t, 37.377730, merged.Lat, 1e-9)

	_, ok = table.Lookup("stop-no-coords")
	assert.False(t, ok)
}

func TestDestinations(t *testing.T) {
	table := NewStopTable()

	t.Run("from campus uses boarding stops", func(t *testing.T) {
		list := Destinations(FromCampus, nil, table)
		require.Len(t, list, 3)
		for _, d := range list {
			assert.Equal(t, KindStation, d.Kind)
			assert.Equal(t, d.ID, d.StopID)
		}
	})

	t.Run("to campus falls back to built-in guides", func(t *testing.T) {
		list := Destinations(ToCampus, nil, table)
		require.NotEmpty(t, list)
		d, ok := FindDestination(list, "b7")
		require.True(t, ok)
		assert.Equal(t, KindBuilding, d.Kind)
		assert.Equal(t, StopEngineer, d.StopID)
	})

	t.Run("to campus prefers remote guides", func(t *testing.T) {
		guides := []DropoffGuide{{
			BuildingID:      "b99",
			BuildingName:    "Remote Hall",
			RecommendedStop: Stop{ID: "stop-x"},
		}}
		list := Destinations(ToCampus, guides, table)
		require.Len(t, list, 1)
		assert.Equal(t, "stop-x", list[0].StopName, "blank stop name falls back to id")
	})
}

func TestFallbackGuidesWalkTime(t *testing.T) {
	guides := FallbackGuides(NewStopTable())
	require.NotEmpty(t, guides)
	for i := 1; i < len(guides); i++ {
		assert.LessOrEqual(t, guides[i-1].BuildingName, guides[i].BuildingName)
	}
	for _, g := range guides {
		assert.GreaterOrEqual(t, g.WalkDistanceM, 0.0)
		assert.InDelta(t, g.WalkDistanceM/(avgWalkMPS*60), g.WalkMinutes, 1e-9)
	}
}
