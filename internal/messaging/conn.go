package messaging

import (
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// ConnMetrics tracks the connection state. Implemented by metrics.Collector.
type ConnMetrics interface {
	NATSSetConnected(connected bool)
}

// Connect dials NATS and keeps reconnecting forever; the connection gauge
// follows disconnect / reconnect / close events.
func Connect(url, name string, m ConnMetrics) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			slog.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			slog.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return nc, nil
}

// EnsureStream makes sure a JetStream stream captures subjects so published
// states can be replayed and de-duplicated by Nats-Msg-Id. Servers without
// JetStream return an error, which callers may treat as non-fatal.
func EnsureStream(nc *nats.Conn, name string, subjects ...string) error {
	js, err := nc.JetStream()
	if err != nil {
		return err
	}
	if _, err := js.StreamInfo(name); err == nil {
		return nil
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:              name,
		Subjects:          subjects,
		Storage:           nats.FileStorage,
		MaxMsgsPerSubject: 1,
	})
	return err
}

// subjectToken turns an id into a single NATS subject token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
