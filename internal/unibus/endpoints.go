package unibus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/valyala/fastjson"

	"unibus-tracker/internal/campus"
	"unibus-tracker/internal/feedback"
)

type Route struct {
	ID    string
	Name  string
	Stops []campus.Stop
}

type User struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Active   bool   `json:"is_active"`
}

// maxEtaSeconds bounds a believable baseline; anything larger is treated as
// no value.
const maxEtaSeconds = 24 * 60 * 60

// EtaBaseline returns the server-computed seconds to arrival of vehicleID at stopID.
func (c *Client) EtaBaseline(ctx context.Context, vehicleID, stopID string) (int, error) {
	q := url.Values{}
	q.Set("vehicle_id", vehicleID)
	q.Set("stop_id", stopID)
	v, err := c.do(ctx, http.MethodGet, c.endpoint(q, "eta", "baseline"), nil)
	if err != nil {
		return 0, err
	}
	sec, ok := number(v, "eta_seconds")
	if !ok || sec < 0 || sec > maxEtaSeconds {
		return 0, ErrNoValue
	}
	return int(sec), nil
}

// VehicleLatest returns the last reported position of vehicleID.
func (c *Client) VehicleLatest(ctx context.Context, vehicleID string) (campus.VehiclePosition, error) {
	v, err := c.do(ctx, http.MethodGet, c.endpoint(nil, "vehicles", vehicleID, "latest"), nil)
	if err != nil {
		return campus.VehiclePosition{}, err
	}
	lat, okLat := number(v, "lat")
	lon, okLon := number(v, "lon")
	if !okLat || !okLon {
		return campus.VehiclePosition{}, fmt.Errorf("%w: vehicle position without lat/lon", ErrMalformed)
	}
	pos := campus.VehiclePosition{
		VehicleID: vehicleID,
		Lat:       lat,
		Lon:       lon,
		SpeedMPS:  optionalNumber(v, "speed_mps"),
		Heading:   optionalNumber(v, "heading"),
	}
	if id := v.GetStringBytes("vehicle_id"); len(id) > 0 {
		pos.VehicleID = string(id)
	}
	if ts, ok := number(v, "ts"); ok {
		pos.Timestamp = int64(ts)
	}
	return pos, nil
}

// Route returns the route description with its stops ordered by sequence.
// Results are cached.
func (c *Client) Route(ctx context.Context, routeID string) (Route, error) {
	return cached(c, "route:"+routeID, func() (Route, error) {
		v, err := c.do(ctx, http.MethodGet, c.endpoint(nil, "route", routeID), nil)
		if err != nil {
			return Route{}, err
		}
		r := Route{ID: routeID, Name: string(v.GetStringBytes("name"))}
		if id := v.GetStringBytes("id"); len(id) > 0 {
			r.ID = string(id)
		}
		for _, sv := range v.GetArray("stops") {
			s, ok := parseStop(sv)
			if !ok {
				continue
			}
			r.Stops = append(r.Stops, s)
		}
		sort.SliceStable(r.Stops, func(i, j int) bool { return r.Stops[i].Seq < r.Stops[j].Seq })
		return r, nil
	})
}

// RouteStops returns the stops of routeID ordered by sequence.
func (c *Client) RouteStops(ctx context.Context, routeID string) ([]campus.Stop, error) {
	r, err := c.Route(ctx, routeID)
	if err != nil {
		return nil, err
	}
	return r.Stops, nil
}

// DropoffGuides lists the recommended drop-off stop per campus building.
// Results are cached.
func (c *Client) DropoffGuides(ctx context.Context) ([]campus.DropoffGuide, error) {
	return cached(c, "dropoff-guides", func() ([]campus.DropoffGuide, error) {
		v, err := c.do(ctx, http.MethodGet, c.endpoint(nil, "v1", "campus", "dropoff-guides"), nil)
		if err != nil {
			return nil, err
		}
		var guides []campus.DropoffGuide
		for _, gv := range v.GetArray("dropoff_guides") {
			stop, ok := parseStop(gv.Get("recommended_stop"))
			if !ok {
				continue
			}
			g := campus.DropoffGuide{
				BuildingID:      string(gv.GetStringBytes("building_id")),
				BuildingName:    string(gv.GetStringBytes("building_name")),
				Lat:             gv.GetFloat64("lat"),
				Lon:             gv.GetFloat64("lon"),
				RecommendedStop: stop,
				WalkDistanceM:   gv.GetFloat64("walk_distance_m"),
				WalkMinutes:     gv.GetFloat64("estimated_walk_minutes"),
				Notes:           string(gv.GetStringBytes("notes")),
			}
			if g.BuildingID == "" {
				continue
			}
			guides = append(guides, g)
		}
		return guides, nil
	})
}

// SubmitRideSurvey posts a rider's arrival confirmation.
func (c *Client) SubmitRideSurvey(ctx context.Context, s feedback.Survey) (feedback.Result, error) {
	v, err := c.do(ctx, http.MethodPost, c.endpoint(nil, "v1", "survey", "ride"), s)
	if err != nil {
		return feedback.Result{}, err
	}
	if ok := v.Get("ok"); ok != nil && ok.Type() == fastjson.TypeFalse {
		return feedback.Result{}, ServiceError{Status: http.StatusOK, Message: "survey rejected"}
	}
	return feedback.Result{
		TravelMinutes: v.GetInt("travel_time_min"),
		EarlyMinutes:  v.GetInt("early_min"),
		LateMinutes:   v.GetInt("late_min"),
	}, nil
}

// TokenSetter receives the access token after a successful login.
type TokenSetter interface {
	SetToken(token string)
}

// Login authenticates and hands the access token to tokens.
func (c *Client) Login(ctx context.Context, email, password string, tokens TokenSetter) (User, error) {
	payload := map[string]string{"email": strings.TrimSpace(email), "password": password}
	v, err := c.do(ctx, http.MethodPost, c.endpoint(nil, "v1", "auth", "login"), payload)
	if err != nil {
		return User{}, err
	}
	token := string(v.GetStringBytes("access_token"))
	if token == "" {
		return User{}, fmt.Errorf("%w: login without access_token", ErrMalformed)
	}
	if tokens != nil {
		tokens.SetToken(token)
	}
	return parseUser(v.Get("user")), nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	v, err := c.do(ctx, http.MethodGet, c.endpoint(nil, "v1", "auth", "me"), nil)
	if err != nil {
		return User{}, err
	}
	return parseUser(v), nil
}

func parseStop(v *fastjson.Value) (campus.Stop, bool) {
	if v == nil || v.Type() != fastjson.TypeObject {
		return campus.Stop{}, false
	}
	id := string(v.GetStringBytes("id"))
	lat, okLat := number(v, "lat")
	lon, okLon := number(v, "lon")
	if id == "" || !okLat || !okLon {
		return campus.Stop{}, false
	}
	return campus.Stop{
		ID:   id,
		Name: string(v.GetStringBytes("name")),
		Lat:  lat,
		Lon:  lon,
		Seq:  v.GetInt("seq"),
	}, true
}

func parseUser(v *fastjson.Value) User {
	if v == nil {
		return User{}
	}
	return User{
		ID:       v.GetInt("id"),
		Email:    string(v.GetStringBytes("email")),
		FullName: string(v.GetStringBytes("full_name")),
		Active:   v.GetBool("is_active"),
	}
}
