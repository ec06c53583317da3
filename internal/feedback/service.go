package feedback

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Submitter forwards a survey to the shuttle service.
type Submitter interface {
	SubmitRideSurvey(ctx context.Context, s Survey) (Result, error)
}

// Recorder keeps a local copy of submitted surveys.
type Recorder interface {
	InsertSurvey(ctx context.Context, s Survey, r Result) error
}

type Service struct {
	remote   Submitter
	recorder Recorder
	log      zerolog.Logger
}

// NewService wires the survey flow. remote and recorder may be nil.
func NewService(remote Submitter, recorder Recorder, logger zerolog.Logger) *Service {
	return &Service{remote: remote, recorder: recorder, log: logger.With().Str("component", "feedback").Logger()}
}

// Submit validates s, sends it to the service and records it locally. The
// service's derived minutes win over the local computation when available.
func (svc *Service) Submit(ctx context.Context, s Survey) (Result, error) {
	res, err := Compute(s)
	if err != nil {
		return Result{}, err
	}
	if svc.remote != nil {
		remote, err := svc.remote.SubmitRideSurvey(ctx, s)
		if err != nil {
			return res, fmt.Errorf("submit survey: %w", err)
		}
		res = remote
	}
	if svc.recorder != nil {
		if err := svc.recorder.InsertSurvey(ctx, s, res); err != nil {
			svc.log.Error().Err(err).Str("vehicle", s.VehicleID).Msg("record survey")
		}
	}
	svc.log.Info().
		Str("vehicle", s.VehicleID).
		Str("board_stop", s.BoardStop).
		Int("travel_min", res.TravelMinutes).
		Int("late_min", res.LateMinutes).
		Msg("survey submitted")
	return res, nil
}
