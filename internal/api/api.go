package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"unibus-tracker/internal/campus"
	"unibus-tracker/internal/db"
	"unibus-tracker/internal/eta"
	"unibus-tracker/internal/feedback"
	"unibus-tracker/internal/notify"
	"unibus-tracker/internal/session"
	"unibus-tracker/internal/unibus"
)

// Tracker is the part of eta.Tracker the API drives.
type Tracker interface {
	Select(parent context.Context, sel eta.Selection) error
	Clear()
	Current() (eta.Selection, *eta.Update, bool)
}

type GuideSource interface {
	DropoffGuides(ctx context.Context) ([]campus.DropoffGuide, error)
}

type SurveySubmitter interface {
	Submit(ctx context.Context, s feedback.Survey) (feedback.Result, error)
}

type Authenticator interface {
	Login(ctx context.Context, email, password string, tokens unibus.TokenSetter) (unibus.User, error)
}

// History is the durable alert store.
type History interface {
	Ping(ctx context.Context) error
	ListAlerts(ctx context.Context, limit int) ([]db.Alert, error)
	SurveyStats(ctx context.Context) (db.SurveyStats, error)
}

// Deps wires the server. Guides, Auth and History may be nil.
type Deps struct {
	Tracker   Tracker
	Session   *session.Session
	Stops     *campus.StopTable
	Guides    GuideSource
	Surveys   SurveySubmitter
	Auth      Authenticator
	History   History
	VehicleID string
	Origins   []string
}

// Server serves the rider-facing HTTP API.
type Server struct {
	deps Deps
	log  zerolog.Logger

	// base outlives requests; tracking loops started by PUT /v1/tracking run under it.
	base context.Context
	now  func() time.Time
}

func New(base context.Context, deps Deps, logger zerolog.Logger) *Server {
	if deps.VehicleID == "" {
		deps.VehicleID = campus.DefaultVehicleID
	}
	if deps.Session == nil {
		deps.Session = session.New(notify.NewStore(nil))
	}
	if deps.Stops == nil {
		deps.Stops = campus.NewStopTable()
	}
	if len(deps.Origins) == 0 {
		deps.Origins = []string{"*"}
	}
	return &Server{
		deps: deps,
		log:  logger.With().Str("component", "api").Logger(),
		base: base,
		now:  time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareRequestID())
	r.Use(middlewareLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.deps.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{headerRequestID},
		AllowCredentials: false,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tracking", s.handleGetTracking)
		r.Put("/tracking", s.handlePutTracking)
		r.Delete("/tracking", s.handleDeleteTracking)

		r.Get("/destinations", s.handleDestinations)

		r.Get("/notifications", s.handleNotifications)
		r.Post("/notifications/read", s.handleNotificationsRead)

		r.Post("/feedback", s.handleFeedback)
		r.Get("/feedback/stats", s.handleFeedbackStats)

		r.Get("/alerts", s.handleAlerts)

		r.Get("/session", s.handleSession)
		r.Post("/session/login", s.handleLogin)
		r.Post("/session/logout", s.handleLogout)
	})
	return r
}

// Serve starts the API server on addr.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("api server error")
		}
	}()
	s.log.Info().Str("addr", addr).Msg("api listening")
	return srv
}
