package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kst = time.FixedZone("KST", 9*3600)

func baseSurvey() Survey {
	return Survey{
		VehicleID:      "bus-01",
		BoardStop:      "stop-incheon-univ-stn",
		BoardTime:      time.Date(2025, 11, 17, 9, 5, 0, 0, kst),
		ClassBuilding:  "7",
		ClassRoom:      "301",
		ClassStartTime: time.Date(2025, 11, 17, 9, 30, 0, 0, kst),
		ArrivalTime:    time.Date(2025, 11, 17, 9, 27, 0, 0, kst),
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Survey)
		expected Result
	}{
		{
			name:     "early arrival",
			mutate:   func(*Survey) {},
			expected: Result{TravelMinutes: 22, EarlyMinutes: 3},
		},
		{
			name: "late by a few seconds rounds up",
			mutate: func(s *Survey) {
				s.ArrivalTime = s.ClassStartTime.Add(10 * time.Second)
			},
			expected: Result{TravelMinutes: 25, LateMinutes: 1},
		},
		{
			name: "early by under a minute rounds down",
			mutate: func(s *Survey) {
				s.ArrivalTime = s.ClassStartTime.Add(-50 * time.Second)
			},
			expected: Result{TravelMinutes: 24},
		},
		{
			name: "half minute travel rounds to even",
			mutate: func(s *Survey) {
				s.ArrivalTime = s.BoardTime.Add(2*time.Minute + 30*time.Second)
			},
			expected: Result{TravelMinutes: 2, EarlyMinutes: 22},
		},
		{
			name: "arrival before boarding clamps travel",
			mutate: func(s *Survey) {
				s.ArrivalTime = s.BoardTime.Add(-5 * time.Minute)
			},
			expected: Result{TravelMinutes: 0, EarlyMinutes: 30},
		},
		{
			name: "time zones are normalized",
			mutate: func(s *Survey) {
				s.ArrivalTime = s.ClassStartTime.UTC().Add(2 * time.Minute)
			},
			expected: Result{TravelMinutes: 27, LateMinutes: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSurvey()
			tt.mutate(&s)
			got, err := Compute(s)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Survey)
	}{
		{"missing vehicle", func(s *Survey) { s.VehicleID = " " }},
		{"long stop", func(s *Survey) { s.BoardStop = strings.Repeat("x", 129) }},
		{"long room", func(s *Survey) { s.ClassRoom = strings.Repeat("1", 33) }},
		{"missing arrival", func(s *Survey) { s.ArrivalTime = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSurvey()
			tt.mutate(&s)
			_, err := Compute(s)
			assert.ErrorIs(t, err, ErrInvalidSurvey)
		})
	}

	assert.NoError(t, baseSurvey().Validate())
}

type fakeSubmitter struct {
	res Result
	err error
}

func (f fakeSubmitter) SubmitRideSurvey(context.Context, Survey) (Result, error) { return f.res, f.err }

type fakeRecorder struct {
	got []Result
	err error
}

func (f *fakeRecorder) InsertSurvey(_ context.Context, _ Survey, r Result) error {
	f.got = append(f.got, r)
	return f.err
}

func TestServiceSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("remote result wins and is recorded", func(t *testing.T) {
		rec := &fakeRecorder{}
		remote := Result{TravelMinutes: 23, EarlyMinutes: 2}
		svc := NewService(fakeSubmitter{res: remote}, rec, zerolog.Nop())

		got, err := svc.Submit(ctx, baseSurvey())
		require.NoError(t, err)
		assert.Equal(t, remote, got)
		assert.Equal(t, []Result{remote}, rec.got)
	})

	t.Run("remote failure returns local result and error", func(t *testing.T) {
		rec := &fakeRecorder{}
		svc := NewService(fakeSubmitter{err: errors.New("503")}, rec, zerolog.Nop())

		got, err := svc.Submit(ctx, baseSurvey())
		require.Error(t, err)
		assert.Equal(t, Result{TravelMinutes: 22, EarlyMinutes: 3}, got)
		assert.Empty(t, rec.got)
	})

	t.Run("recorder failure is not fatal", func(t *testing.T) {
		svc := NewService(nil, &fakeRecorder{err: errors.New("disk full")}, zerolog.Nop())
		_, err := svc.Submit(ctx, baseSurvey())
		assert.NoError(t, err)
	})

	t.Run("invalid survey is rejected before sending", func(t *testing.T) {
		s := baseSurvey()
		s.ClassBuilding = ""
		svc := NewService(fakeSubmitter{err: errors.New("must not be called")}, nil, zerolog.Nop())
		_, err := svc.Submit(ctx, s)
		assert.ErrorIs(t, err, ErrInvalidSurvey)
	})
}
