// Package events publishes submission outcomes to NATS for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"imageprompt/internal/domain"
	"imageprompt/internal/infra"
)

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type settledEvent struct {
	Type string `json:"type"`
	domain.Outcome
	DurationMS int64 `json:"duration_ms"`
}

// NATSPublisher emits one message per settled submission on
// "<subject>.<status>".
type NATSPublisher struct {
	conn    Publisher
	subject string
	close   func()
}

// NewNATSPublisher wraps an existing publisher.
func NewNATSPublisher(conn Publisher, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: strings.TrimSuffix(subject, "."), close: func() {}}
}

// Connect dials url and returns a publisher that owns the connection.
func Connect(url, subject string, logger *infra.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("imageprompt-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && logger != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if logger != nil {
				logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS: %w", err)
	}
	p := NewNATSPublisher(nc, subject)
	p.close = func() { _ = nc.Drain() }
	return p, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

// SubmissionSettled publishes the outcome. NATS core publish is buffered, so
// the context is only checked up front.
func (p *NATSPublisher) SubmissionSettled(ctx context.Context, o domain.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(settledEvent{Type: "submission.settled", Outcome: o, DurationMS: o.Duration.Milliseconds()})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := p.subject + "." + string(o.Status)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Check reports an error while the underlying connection is not connected.
func (p *NATSPublisher) Check(context.Context) error {
	if c, ok := p.conn.(interface{ IsConnected() bool }); ok && !c.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

// Close drains the owned connection, if any.
func (p *NATSPublisher) Close() {
	p.close()
}
