package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sznuper/poolwatch/internal/alert"
)

// DefaultSubject is used when no NATS subject is configured.
const DefaultSubject = "poolwatch.alerts"

// payload is the JSON document published for each alert.
type payload struct {
	ID               string   `json:"id"`
	Class            string   `json:"class"`
	Kind             string   `json:"kind"`
	Text             string   `json:"text"`
	Pool             string   `json:"pool,omitempty"`
	Release          string   `json:"release,omitempty"`
	ErrorRatePercent *float64 `json:"errorRatePercent,omitempty"`
	Window           int      `json:"window,omitempty"`
	At               string   `json:"at"`
}

func encodeAlert(a alert.Alert) ([]byte, error) {
	data, err := json.Marshal(payload{
		ID:               a.ID,
		Class:            string(a.Class),
		Kind:             string(a.Kind),
		Text:             a.Text,
		Pool:             a.Pool,
		Release:          a.Release,
		ErrorRatePercent: a.ErrorRate,
		Window:           a.Window,
		At:               a.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal alert payload: %w", err)
	}
	return data, nil
}

// NATSPublisher publishes alerts as JSON on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// ConnectNATS dials url. The connection retries in the background so a NATS
// outage never blocks startup; publishes fail until it is back.
func ConnectNATS(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("poolwatch"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, a alert.Alert) error {
	data, err := encodeAlert(a)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
