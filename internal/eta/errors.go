package eta

type Error string

func (err Error) Error() string {
	return string(err)
}

const (
	// ErrNoValue is returned by a source that answered but had no estimate.
	ErrNoValue          Error = "no value"
	ErrInvalidSelection Error = "invalid selection"
	ErrTrackerStopped   Error = "tracker stopped"
)
