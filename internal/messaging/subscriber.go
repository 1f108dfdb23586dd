package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"transit-tracker/internal/fleet"
	"transit-tracker/internal/ingest"
)

// Reporter is the ingestion entry point, satisfied by *ingest.Gateway.
type Reporter interface {
	Report(ctx context.Context, r ingest.Report) (fleet.VehicleState, error)
}

type SubscriberMetrics interface {
	NATSReceivedInc()
}

// QueueGroup lets several tracker instances share one report subject.
const QueueGroup = "tracker-ingest"

// Subscriber feeds JSON position reports received on a subject into the
// ingestion gateway. Requests carrying a reply subject get an ingest.Outcome.
type Subscriber struct {
	nc       *nats.Conn
	subject  string
	reporter Reporter
	metrics  SubscriberMetrics
}

func NewSubscriber(nc *nats.Conn, subject string, r Reporter, m SubscriberMetrics) *Subscriber {
	return &Subscriber{nc: nc, subject: subject, reporter: r, metrics: m}
}

// Run subscribes and blocks until ctx is done, then drains the subscription.
func (s *Subscriber) Run(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.subject, QueueGroup, func(m *nats.Msg) {
		s.handle(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	slog.Info("nats subscriber started", "subject", s.subject, "queue", QueueGroup)
	<-ctx.Done()
	return sub.Drain()
}

func (s *Subscriber) handle(ctx context.Context, m *nats.Msg) {
	if s.metrics != nil {
		s.metrics.NATSReceivedInc()
	}
	out := s.process(ctx, m.Data)
	if m.Reply == "" {
		return
	}
	b, err := json.Marshal(out)
	if err != nil {
		slog.Error("encode report outcome", "error", err)
		return
	}
	if err := m.Respond(b); err != nil {
		slog.Warn("respond to report", "subject", m.Subject, "error", err)
	}
}

func (s *Subscriber) process(ctx context.Context, data []byte) ingest.Outcome {
	var r ingest.Report
	if err := json.Unmarshal(data, &r); err != nil {
		err = fmt.Errorf("%w: malformed report: %v", fleet.ErrInvalidType, err)
		slog.Debug("drop malformed report", "error", err)
		return ingest.NewOutcome(fleet.VehicleState{}, err)
	}
	st, err := s.reporter.Report(ctx, r)
	if err != nil {
		slog.Debug("report rejected", "kind", fleet.KindOf(err), "error", err)
	}
	return ingest.NewOutcome(st, err)
}
