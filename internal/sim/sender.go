package sim

import (
	"context"
	"strings"

	"transit-tracker/internal/ingest"
)

// Sender delivers a position report to the tracker.
type Sender interface {
	Send(ctx context.Context, vehicleID string, r ingest.Report) error
}

type reportPoster interface {
	Report(ctx context.Context, r ingest.Report) (ingest.Outcome, error)
}

// HTTPSender posts reports to /api/gps/update.
type HTTPSender struct {
	c reportPoster
}

func NewHTTPSender(c reportPoster) *HTTPSender { return &HTTPSender{c: c} }

func (s *HTTPSender) Send(ctx context.Context, _ string, r ingest.Report) error {
	_, err := s.c.Report(ctx, r)
	return err
}

type reportPublisher interface {
	PublishReport(ctx context.Context, subjectBase, vehicleID string, r ingest.Report) error
}

// NATSSender publishes reports on <base>.<vehicle>, where base is the
// tracker's report subject without its trailing wildcard.
type NATSSender struct {
	p    reportPublisher
	base string
}

func NewNATSSender(p reportPublisher, reportSubject string) *NATSSender {
	base := strings.TrimSuffix(strings.TrimSuffix(reportSubject, ".>"), ".*")
	return &NATSSender{p: p, base: base}
}

func (s *NATSSender) Send(ctx context.Context, vehicleID string, r ingest.Report) error {
	return s.p.PublishReport(ctx, s.base, vehicleID, r)
}
