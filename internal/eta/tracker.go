package eta

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"unibus-tracker/internal/campus"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultCycleTimeout = 8 * time.Second
	defaultUpdateBuffer = 16
)

// AlertSink receives arrival alerts.
type AlertSink interface {
	RecordArrivalAlert(stopName, busLabel string)
}

// Selection is what the rider is currently tracking.
type Selection struct {
	VehicleID string           `json:"vehicle_id"`
	StopID    string           `json:"stop_id"`
	StopName  string           `json:"stop_name"`
	Direction campus.Direction `json:"direction"`
}

func (s Selection) BusLabel() string { return s.Direction.BusLabel() }

func (s Selection) validate() error {
	if strings.TrimSpace(s.VehicleID) == "" || strings.TrimSpace(s.StopID) == "" {
		return ErrInvalidSelection
	}
	if s.Direction != campus.ToCampus && s.Direction != campus.FromCampus {
		return ErrInvalidSelection
	}
	return nil
}

// Update is emitted after every cycle.
type Update struct {
	Selection Selection     `json:"selection"`
	Estimate  Estimate      `json:"estimate"`
	Alerted   bool          `json:"alerted"`
	At        time.Time     `json:"at"`
	Duration  time.Duration `json:"-"`
}

type TrackerOptions struct {
	PollInterval     time.Duration
	CycleTimeout     time.Duration
	ThresholdSeconds int
	UpdateBuffer     int

	// OnTracking, if set, is called with true when a loop starts and with
	// false when it exits for any reason.
	OnTracking func(active bool)
}

func (o TrackerOptions) withDefaults() TrackerOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.CycleTimeout <= 0 {
		o.CycleTimeout = DefaultCycleTimeout
	}
	if o.ThresholdSeconds <= 0 {
		o.ThresholdSeconds = DefaultThresholdSeconds
	}
	if o.UpdateBuffer <= 0 {
		o.UpdateBuffer = defaultUpdateBuffer
	}
	return o
}

// Tracker runs estimator cycles for the current selection in a background
// goroutine. Selecting a new stop or direction restarts the loop with fresh
// alert state; Clear stops it.
type Tracker struct {
	est  Estimating
	sink AlertSink
	opts TrackerOptions
	log  zerolog.Logger

	updates chan Update

	// ctl serializes Select/Clear/Stop so a restart waits for the old loop.
	ctl sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	gen     uint64
	active  bool
	current Selection
	last    *Update
	stopped bool
}

func NewTracker(est Estimating, sink AlertSink, opts TrackerOptions, logger zerolog.Logger) *Tracker {
	opts = opts.withDefaults()
	return &Tracker{
		est:     est,
		sink:    sink,
		opts:    opts,
		log:     logger.With().Str("component", "tracker").Logger(),
		updates: make(chan Update, opts.UpdateBuffer),
	}
}

// Updates delivers one Update per cycle. When the consumer falls behind the
// oldest pending update is dropped. The channel is closed by Stop.
func (t *Tracker) Updates() <-chan Update { return t.updates }

// Select starts tracking sel, replacing any previous selection. Re-selecting
// the active selection keeps the running loop and its alert state. The loop
// runs until Clear, Stop, or cancellation of parent.
func (t *Tracker) Select(parent context.Context, sel Selection) error {
	if err := sel.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(sel.StopName) == "" {
		sel.StopName = sel.StopID
	}

	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrTrackerStopped
	}
	if t.active && t.current == sel {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	t.halt()

	t.mu.Lock()
	ctx, cancel := context.WithCancel(parent)
	t.gen++
	gen := t.gen
	t.cancel = cancel
	t.active = true
	t.current = sel
	t.last = nil
	t.wg.Add(1)
	t.mu.Unlock()

	t.log.Info().
		Str("vehicle", sel.VehicleID).
		Str("stop", sel.StopID).
		Str("direction", string(sel.Direction)).
		Msg("tracking started")
	if t.opts.OnTracking != nil {
		t.opts.OnTracking(true)
	}
	go func() {
		defer t.wg.Done()
		t.run(ctx, sel, gen)
		t.finish(gen)
	}()
	return nil
}

// finish drops the selection of loop gen once it has exited.
func (t *Tracker) finish(gen uint64) {
	t.mu.Lock()
	var cancel context.CancelFunc
	if t.gen == gen {
		cancel = t.cancel
		t.cancel = nil
		t.active = false
		t.last = nil
	}
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if t.opts.OnTracking != nil {
		t.opts.OnTracking(false)
	}
}

// Clear stops tracking and waits for the loop to exit.
func (t *Tracker) Clear() {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	if t.halt() {
		t.log.Info().Msg("tracking cleared")
	}
}

// Stop clears the selection and closes the updates channel. The tracker
// cannot be reused afterwards.
func (t *Tracker) Stop() {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	t.halt()
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		close(t.updates)
	}
}

// halt cancels the running loop, if any, and waits for it. Callers hold ctl.
func (t *Tracker) halt() bool {
	t.mu.Lock()
	cancel := t.cancel
	wasActive := t.active
	t.cancel = nil
	t.active = false
	t.last = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	return wasActive
}

// Current returns the active selection and the latest update for it. ok is
// false when nothing is tracked; last is nil before the first cycle completes.
func (t *Tracker) Current() (sel Selection, last *Update, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return Selection{}, nil, false
	}
	if t.last != nil {
		u := *t.last
		last = &u
	}
	return t.current, last, true
}

func (t *Tracker) run(ctx context.Context, sel Selection, gen uint64) {
	alerts := NewAlertState(t.opts.ThresholdSeconds)
	tick := time.NewTicker(t.opts.PollInterval)
	defer tick.Stop()

	for {
		t.cycle(ctx, sel, alerts, gen)
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func (t *Tracker) cycle(ctx context.Context, sel Selection, alerts *AlertState, gen uint64) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, t.opts.CycleTimeout)
	est := t.est.Estimate(cctx, sel.VehicleID, sel.StopID)
	cancel()
	if ctx.Err() != nil {
		// selection changed mid-cycle; the result belongs to nobody
		return
	}

	alerted := alerts.Observe(sel.StopID, est)
	if alerted {
		if t.sink != nil {
			t.sink.RecordArrivalAlert(sel.StopName, sel.BusLabel())
		}
		t.log.Info().
			Str("stop", sel.StopID).
			Str("bus", sel.BusLabel()).
			Int("eta_seconds", est.Seconds).
			Msg("arrival alert")
	}

	u := Update{
		Selection: sel,
		Estimate:  est,
		Alerted:   alerted,
		At:        time.Now(),
		Duration:  time.Since(start),
	}
	t.mu.Lock()
	if t.gen != gen || t.stopped {
		t.mu.Unlock()
		return
	}
	t.last = &u
	t.mu.Unlock()
	t.emit(u)
}

func (t *Tracker) emit(u Update) {
	for {
		select {
		case t.updates <- u:
			return
		default:
		}
		select {
		case <-t.updates:
		default:
		}
	}
}
