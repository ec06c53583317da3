package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"unibus-tracker/internal/eta"
)

const (
	subjectRoot = "unibus"
	drainWait   = 5 * time.Second
)

type NATSPublisher struct {
	nc          *nats.Conn
	closed      chan struct{}
	logSubjects bool
	metrics     PublisherMetrics
	log         zerolog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url string, logSubjects bool, m PublisherMetrics, logger zerolog.Logger) (*NATSPublisher, error) {
	lg := logger.With().Str("component", "nats").Logger()
	closed := make(chan struct{})
	nc, err := nats.Connect(url,
		nats.Name("unibus-tracker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			lg.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			lg.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			lg.Info().Msg("nats closed")
			close(closed)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, closed: closed, logSubjects: logSubjects, metrics: m, log: lg}, nil
}

// Close drains pending messages and waits for the connection to close.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.log.Warn().Err(err).Msg("nats drain")
		p.nc.Close()
	}
	select {
	case <-p.closed:
	case <-time.After(drainWait):
		p.log.Warn().Dur("wait", drainWait).Msg("nats drain did not finish")
		p.nc.Close()
	}
}

type EstimateMessage struct {
	EventID    string    `json:"eventId"`
	VehicleID  string    `json:"vehicleId"`
	StopID     string    `json:"stopId"`
	StopName   string    `json:"stopName"`
	Direction  string    `json:"direction"`
	EtaSeconds *int      `json:"etaSeconds"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

type AlertMessage struct {
	EventID    string    `json:"eventId"`
	VehicleID  string    `json:"vehicleId"`
	StopID     string    `json:"stopId"`
	StopName   string    `json:"stopName"`
	BusLabel   string    `json:"busLabel"`
	EtaSeconds int       `json:"etaSeconds"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewEstimateMessage(u eta.Update) EstimateMessage {
	msg := EstimateMessage{
		EventID:   uuid.NewString(),
		VehicleID: u.Selection.VehicleID,
		StopID:    u.Selection.StopID,
		StopName:  u.Selection.StopName,
		Direction: string(u.Selection.Direction),
		Source:    string(u.Estimate.Source),
		Timestamp: u.At.UTC(),
	}
	if u.Estimate.Known() {
		sec := u.Estimate.Seconds
		msg.EtaSeconds = &sec
	}
	return msg
}

func NewAlertMessage(u eta.Update) AlertMessage {
	return AlertMessage{
		EventID:    uuid.NewString(),
		VehicleID:  u.Selection.VehicleID,
		StopID:     u.Selection.StopID,
		StopName:   u.Selection.StopName,
		BusLabel:   u.Selection.BusLabel(),
		EtaSeconds: u.Estimate.Seconds,
		Timestamp:  u.At.UTC(),
	}
}

func EstimateSubject(vehicleID, stopID string) string {
	return fmt.Sprintf("%s.eta.%s.%s", subjectRoot, subjectToken(vehicleID), subjectToken(stopID))
}

func AlertSubject(stopID string) string {
	return fmt.Sprintf("%s.alert.%s", subjectRoot, subjectToken(stopID))
}

// PublishUpdate publishes the estimate of u and, when u fired an alert, the alert.
func (p *NATSPublisher) PublishUpdate(u eta.Update) error {
	if err := p.publish(EstimateSubject(u.Selection.VehicleID, u.Selection.StopID), NewEstimateMessage(u)); err != nil {
		return err
	}
	if !u.Alerted {
		return nil
	}
	return p.publish(AlertSubject(u.Selection.StopID), NewAlertMessage(u))
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	if p.logSubjects {
		p.log.Info().Str("subject", subject).Msg("nats publish")
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
