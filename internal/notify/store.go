package notify

import (
	"sync"
	"time"
)

const timeLayout = "15:04"

type Notification struct {
	ID       int       `json:"id"`
	StopName string    `json:"station_name"`
	BusLabel string    `json:"bus_number"`
	Time     string    `json:"time"` // HH:MM in the store's location
	At       time.Time `json:"at"`
	Read     bool      `json:"is_read"`
}

// Store is the rider's in-memory notification list. It lives for one session.
type Store struct {
	mu    sync.Mutex
	items []Notification
	loc   *time.Location
	now   func() time.Time
}

func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{loc: loc, now: time.Now}
}

// RecordArrivalAlert appends an unread arrival notification.
func (s *Store) RecordArrivalAlert(stopName, busLabel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now().In(s.loc)
	next := 1
	for _, n := range s.items {
		if n.ID >= next {
			next = n.ID + 1
		}
	}
	s.items = append(s.items, Notification{
		ID:       next,
		StopName: stopName,
		BusLabel: busLabel,
		Time:     at.Format(timeLayout),
		At:       at,
	})
}

// List returns a copy of the notifications, oldest first.
func (s *Store) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		s.items[i].Read = true
	}
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if !it.Read {
			n++
		}
	}
	return n
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}
