package campus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StopSource yields the stops of a route as published by the shuttle service.
type StopSource interface {
	RouteStops(ctx context.Context, routeID string) ([]Stop, error)
}

// Refresher keeps a StopTable in line with the published route.
type Refresher struct {
	src      StopSource
	routeID  string
	interval time.Duration
	table    *StopTable
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRefresher(src StopSource, routeID string, interval time.Duration, table *StopTable, logger zerolog.Logger) *Refresher {
	if routeID == "" {
		routeID = DefaultRouteID
	}
	return &Refresher{
		src:      src,
		routeID:  routeID,
		interval: interval,
		table:    table,
		log:      logger.With().Str("component", "stops").Str("route", routeID).Logger(),
	}
}

// Refresh fetches the route once and merges its stops into the table.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	stops, err := r.src.RouteStops(ctx, r.routeID)
	if err != nil {
		return 0, fmt.Errorf("route %s: %w", r.routeID, err)
	}
	n := r.table.Merge(stops)
	r.log.Debug().Int("merged", n).Int("known", r.table.Len()).Msg("stops refreshed")
	return n, nil
}

// Start refreshes immediately and then every interval until Stop or
// cancellation of parent. A non-positive interval refreshes once.
func (r *Refresher) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// immediate refresh on start; failures keep the static coordinates
		if _, err := r.Refresh(ctx); err != nil {
			r.log.Warn().Err(err).Msg("initial stop refresh")
		}
		if r.interval <= 0 {
			return
		}
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Refresh(ctx); err != nil {
					r.log.Warn().Err(err).Msg("stop refresh")
				}
			}
		}
	}()
}

func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
