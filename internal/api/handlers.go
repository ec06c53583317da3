package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"unibus-tracker/internal/campus"
	"unibus-tracker/internal/eta"
	"unibus-tracker/internal/feedback"
	"unibus-tracker/internal/notify"
	"unibus-tracker/internal/unibus"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Tracking  bool      `json:"tracking"`
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, _, tracking := s.deps.Tracker.Current()
	resp := HealthResponse{Status: "ok", Tracking: tracking, Store: "disabled", Timestamp: s.now().UTC()}
	status := http.StatusOK
	if s.deps.History != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.History.Ping(ctx); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("store ping")
			resp.Status = "degraded"
			resp.Store = "disconnected"
			status = http.StatusServiceUnavailable
		} else {
			resp.Store = "connected"
		}
	}
	writeJSON(w, r, status, resp)
}

type TrackingResponse struct {
	Active    bool           `json:"active"`
	Selection *eta.Selection `json:"selection,omitempty"`
	BusLabel  string         `json:"bus_label,omitempty"`
	Estimate  *eta.Estimate  `json:"estimate,omitempty"`
	Alerted   bool           `json:"alerted"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

func (s *Server) tracking() TrackingResponse {
	sel, last, ok := s.deps.Tracker.Current()
	if !ok {
		return TrackingResponse{}
	}
	resp := TrackingResponse{Active: true, Selection: &sel, BusLabel: sel.BusLabel()}
	if last != nil {
		est := last.Estimate
		at := last.At
		resp.Estimate = &est
		resp.Alerted = last.Alerted
		resp.UpdatedAt = &at
	}
	return resp
}

func (s *Server) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.tracking())
}

type SelectRequest struct {
	StopID        string `json:"stop_id"`
	DestinationID string `json:"destination_id"`
	Direction     string `json:"direction"`
	StopName      string `json:"stop_name"`
}

func (s *Server) handlePutTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SelectRequest
	if err := decodeBody(r, &req); err != nil {
		serveError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dir, err := campus.ParseDirection(req.Direction)
	if err != nil {
		serveError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stopID := strings.TrimSpace(req.StopID)
	stopName := strings.TrimSpace(req.StopName)
	if stopID == "" && req.DestinationID != "" {
		d, ok := campus.FindDestination(s.destinations(ctx, dir), req.DestinationID)
		if !ok {
			serveError(w, r, http.StatusNotFound, "unknown destination: "+req.DestinationID)
			return
		}
		stopID = d.StopID
		if stopName == "" {
			stopName = d.StopName
		}
	}
	if stopID == "" {
		serveError(w, r, http.StatusBadRequest, "stop_id or destination_id is required")
		return
	}
	if stopName == "" {
		if st, ok := s.deps.Stops.Lookup(stopID); ok {
			stopName = st.Name
		}
	}

	sel := eta.Selection{
		VehicleID: s.deps.VehicleID,
		StopID:    stopID,
		StopName:  stopName,
		Direction: dir,
	}
	switch err := s.deps.Tracker.Select(s.base, sel); {
	case errors.Is(err, eta.ErrInvalidSelection):
		serveError(w, r, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, eta.ErrTrackerStopped):
		serveError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Msg("select")
		serveError(w, r, http.StatusInternalServerError, "unable to start tracking")
		return
	}
	writeJSON(w, r, http.StatusAccepted, s.tracking())
}

func (s *Server) handleDeleteTracking(w http.ResponseWriter, r *http.Request) {
	s.deps.Tracker.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// destinations lists the choices for dir, using remote drop-off guides when
// they can be fetched.
func (s *Server) destinations(ctx context.Context, dir campus.Direction) []campus.Destination {
	var guides []campus.DropoffGuide
	if dir == campus.ToCampus && s.deps.Guides != nil {
		var err error
		guides, err = s.deps.Guides.DropoffGuides(ctx)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("dropoff guides unavailable, using built-in list")
			guides = nil
		}
	}
	return campus.Destinations(dir, guides, s.deps.Stops)
}

type DestinationsResponse struct {
	Direction    campus.Direction     `json:"direction"`
	BusLabel     string               `json:"bus_label"`
	Destinations []campus.Destination `json:"destinations"`
}

func (s *Server) handleDestinations(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("direction")
	if raw == "" {
		raw = string(campus.ToCampus)
	}
	dir, err := campus.ParseDirection(raw)
	if err != nil {
		serveError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, DestinationsResponse{
		Direction:    dir,
		BusLabel:     dir.BusLabel(),
		Destinations: s.destinations(r.Context(), dir),
	})
}

type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

func notifications(store *notify.Store) NotificationsResponse {
	list := store.List()
	if list == nil {
		list = []notify.Notification{}
	}
	return NotificationsResponse{Notifications: list, Unread: store.UnreadCount()}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, notifications(s.deps.Session.Notifications()))
}

func (s *Server) handleNotificationsRead(w http.ResponseWriter, r *http.Request) {
	store := s.deps.Session.Notifications()
	store.MarkAllRead()
	writeJSON(w, r, http.StatusOK, notifications(store))
}

type FeedbackResponse struct {
	Result    feedback.Result `json:"result"`
	Submitted bool            `json:"submitted"`
	Error     string          `json:"error,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Surveys == nil {
		serveError(w, r, http.StatusServiceUnavailable, "feedback is not available")
		return
	}
	var sv feedback.Survey
	if err := decodeBody(r, &sv); err != nil {
		serveError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(sv.VehicleID) == "" {
		sv.VehicleID = s.deps.VehicleID
	}

	res, err := s.deps.Surveys.Submit(r.Context(), sv)
	switch {
	case errors.Is(err, feedback.ErrInvalidSurvey):
		serveError(w, r, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("survey not delivered")
		writeJSON(w, r, http.StatusBadGateway, FeedbackResponse{Result: res, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusOK, FeedbackResponse{Result: res, Submitted: true})
	}
}

func (s *Server) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		serveError(w, r, http.StatusNotFound, "alert history is not configured")
		return
	}
	st, err := s.deps.History.SurveyStats(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("survey stats")
		serveError(w, r, http.StatusInternalServerError, "unable to read survey stats")
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		serveError(w, r, http.StatusNotFound, "alert history is not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			serveError(w, r, http.StatusBadRequest, "invalid limit: "+strconv.Quote(v))
			return
		}
		limit = n
	}
	alerts, err := s.deps.History.ListAlerts(r.Context(), limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list alerts")
		serveError(w, r, http.StatusInternalServerError, "unable to read alert history")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

type SessionResponse struct {
	LoggedIn bool         `json:"logged_in"`
	Unread   int          `json:"unread"`
	User     *unibus.User `json:"user,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, SessionResponse{
		LoggedIn: s.deps.Session.LoggedIn(),
		Unread:   s.deps.Session.Notifications().UnreadCount(),
	})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		serveError(w, r, http.StatusServiceUnavailable, "login is not available")
		return
	}
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		serveError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		serveError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	u, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password, s.deps.Session)
	if err != nil {
		var se unibus.ServiceError
		if errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusBadRequest) {
			serveError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("login")
		serveError(w, r, http.StatusBadGateway, "login failed")
		return
	}
	writeJSON(w, r, http.StatusOK, SessionResponse{
		LoggedIn: true,
		Unread:   s.deps.Session.Notifications().UnreadCount(),
		User:     &u,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.deps.Session.Logout()
	zerolog.Ctx(r.Context()).Info().Msg("logged out")
	w.WriteHeader(http.StatusNoContent)
}
