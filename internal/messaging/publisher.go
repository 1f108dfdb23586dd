package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"transit-tracker/internal/fleet"
	"transit-tracker/internal/ingest"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
}

// Publisher fans accepted vehicle states out on
// <prefix>.<route>.<vehicle>. Unassigned vehicles use "_" as route token.
type Publisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

func NewPublisher(nc *nats.Conn, prefix string, logSubjects bool, m PublisherMetrics) *Publisher {
	return &Publisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}
}

// StateMessage is the wire form of a published vehicle state.
type StateMessage struct {
	VehicleID  string    `json:"vehicleId"`
	RouteID    string    `json:"routeId"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	SpeedKmh   float64   `json:"speed"`
	ObservedAt time.Time `json:"observedAt"`
}

func StateSubject(prefix string, s fleet.VehicleState) string {
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(s.RouteID), subjectToken(s.VehicleID))
}

// StateAccepted implements ingest.Sink. Publish errors are logged and
// counted, never returned to the reporter.
func (p *Publisher) StateAccepted(_ context.Context, s fleet.VehicleState) {
	msg := StateMessage{
		VehicleID:  s.VehicleID,
		RouteID:    s.RouteID,
		Lat:        s.Position.Lat,
		Lng:        s.Position.Lng,
		SpeedKmh:   s.SpeedKmh,
		ObservedAt: s.ObservedAt,
	}
	if err := p.publishJSON(StateSubject(p.prefix, s), msg); err != nil {
		slog.Warn("publish vehicle state", "vehicle", s.VehicleID, "error", err)
	}
}

// PublishReport sends a raw position report, as the simulator does, on
// <subjectBase>.<vehicle>.
func (p *Publisher) PublishReport(_ context.Context, subjectBase string, vehicleID string, r ingest.Report) error {
	return p.publishJSON(subjectBase+"."+subjectToken(vehicleID), r)
}

func (p *Publisher) publishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		slog.Info("nats publish", "subject", subject)
	}
	m := nats.NewMsg(subject)
	m.Data = b
	m.Header.Set(nats.MsgIdHdr, uuid.NewString())
	err = p.nc.PublishMsg(m)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}
