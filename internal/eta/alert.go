package eta

// DefaultThresholdSeconds is the "near arrival" threshold.
const DefaultThresholdSeconds = 60

// AlertState remembers the previous estimate and the stop that has already
// been alerted, so an alert fires once per threshold crossing per stop.
type AlertState struct {
	threshold   int
	prev        Estimate
	alertedStop string
}

func NewAlertState(thresholdSeconds int) *AlertState {
	if thresholdSeconds <= 0 {
		thresholdSeconds = DefaultThresholdSeconds
	}
	return &AlertState{threshold: thresholdSeconds, prev: Unknown()}
}

// Observe records e as the latest estimate for stopID and reports whether it
// is a fresh crossing from above the threshold (or unknown) to at or below it.
func (a *AlertState) Observe(stopID string, e Estimate) bool {
	prev := a.prev
	a.prev = e
	if stopID == "" || !e.Known() || e.Seconds > a.threshold {
		return false
	}
	if a.alertedStop == stopID {
		return false
	}
	if prev.Known() && prev.Seconds <= a.threshold {
		return false
	}
	a.alertedStop = stopID
	return true
}

// Reset forgets the previous estimate and the alerted stop.
func (a *AlertState) Reset() {
	a.prev = Unknown()
	a.alertedStop = ""
}

func (a *AlertState) Previous() Estimate { return a.prev }
