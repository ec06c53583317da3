package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"unibus-tracker/internal/campus"
	"unibus-tracker/internal/eta"
)

type fakePub struct {
	got []eta.Update
	err error
}

func (f *fakePub) PublishUpdate(u eta.Update) error {
	f.got = append(f.got, u)
	return f.err
}

type fakeRec struct {
	got []eta.Update
	err error
}

func (f *fakeRec) RecordUpdate(ctx context.Context, u eta.Update) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	f.got = append(f.got, u)
	return f.err
}

type fakeMetrics struct {
	sources   []string
	alerts    int
	storeErrs int
}

func (f *fakeMetrics) ObserveCycle(source string, _ int, _, alerted bool, _ time.Duration) {
	f.sources = append(f.sources, source)
	if alerted {
		f.alerts++
	}
}

func (f *fakeMetrics) StoreWriteErrInc() { f.storeErrs++ }

func upd(sec int, src eta.Source, alerted bool) eta.Update {
	return eta.Update{
		Selection: eta.Selection{VehicleID: "bus-01", StopID: "stop-eng", Direction: campus.ToCampus},
		Estimate:  eta.Estimate{Seconds: sec, Source: src},
		Alerted:   alerted,
		At:        time.Now(),
	}
}

func TestRunForwardsUntilClosed(t *testing.T) {
	pub, rec, m := &fakePub{}, &fakeRec{}, &fakeMetrics{}
	r := New(pub, rec, m, zerolog.Nop())

	ch := make(chan eta.Update, 3)
	ch <- upd(120, eta.SourceBaseline, false)
	ch <- upd(45, eta.SourceFallback, true)
	ch <- eta.Update{Estimate: eta.Unknown()}
	close(ch)
	r.Run(ch)

	assert.Len(t, pub.got, 3)
	assert.Len(t, rec.got, 3)
	assert.Equal(t, []string{"baseline", "fallback", "unknown"}, m.sources)
	assert.Equal(t, 1, m.alerts)
}

func TestHandleSurvivesFailures(t *testing.T) {
	pub := &fakePub{err: errors.New("nats: connection closed")}
	rec := &fakeRec{err: errors.New("disk full")}
	m := &fakeMetrics{}
	r := New(pub, rec, m, zerolog.Nop())

	r.Handle(upd(30, eta.SourceBaseline, true))
	r.Handle(upd(20, eta.SourceBaseline, false))

	assert.Len(t, pub.got, 2)
	assert.Equal(t, 2, m.storeErrs)
}

func TestHandleWithoutSinks(t *testing.T) {
	r := New(nil, nil, nil, zerolog.Nop())
	assert.NotPanics(t, func() { r.Handle(upd(10, eta.SourceBaseline, true)) })
}
