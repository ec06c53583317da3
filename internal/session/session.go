package session

import (
	"strings"
	"sync"

	"unibus-tracker/internal/notify"
)

// Session holds the per-rider state that lives from login to logout: the
// access token and the notification list.
type Session struct {
	mu    sync.RWMutex
	token string

	notifications *notify.Store
}

func New(notifications *notify.Store) *Session {
	return &Session{notifications: notifications}
}

func (s *Session) Notifications() *notify.Store { return s.notifications }

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) LoggedIn() bool { return s.Token() != "" }

// Authorization returns the header value for authenticated requests, or ""
// when logged out.
func (s *Session) Authorization() string {
	if t := s.Token(); t != "" {
		return "Bearer " + t
	}
	return ""
}

// Logout forgets the token and clears the notification list.
func (s *Session) Logout() {
	s.SetToken("")
	if s.notifications != nil {
		s.notifications.Clear()
	}
}
