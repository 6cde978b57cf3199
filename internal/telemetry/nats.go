package telemetry

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/voxop/voxop/internal/log"
)

// NATSSink publishes every event to a NATS subject so external tooling
// can watch a session live. The connection reconnects in the background;
// events published while disconnected are buffered by the client.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  *log.Logger
}

// NewNATSSink connects to the NATS server at url.
func NewNATSSink(url, subject string, logger *log.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("voxop"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NATSSink{
		conn:    conn,
		subject: subject,
		logger:  logger.With("component", "events"),
	}, nil
}

// Emit implements Sink.
func (s *NATSSink) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		s.logger.Warn("nats publish failed", "subject", s.subject, "error", err)
	}
}

// Close implements Sink.
func (s *NATSSink) Close() error {
	if s.conn.IsConnected() {
		return s.conn.Drain()
	}
	s.conn.Close()
	return nil
}
