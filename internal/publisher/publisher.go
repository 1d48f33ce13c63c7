package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fresh-motors/gateway/internal/metrics"
	"github.com/fresh-motors/gateway/pkg/logger"
	"github.com/fresh-motors/gateway/pkg/model"
)

// Publisher wraps a NATS connection and provides helpers for publishing auth
// lifecycle events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	service string
}

// New creates a new Publisher with JetStream enabled if available.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// PublishEnvelope serializes and publishes an event envelope to NATS.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	if subject == "" {
		subject = p.subject
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"session_id":     []string{env.SessionID},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"session_id", env.SessionID,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
		"session_id", env.SessionID,
	)

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// PublishTokenRefreshed emits auth.token_refreshed events.
func (p *Publisher) PublishTokenRefreshed(ctx context.Context, ev model.TokenRefreshedEvent) error {
	return p.publishAuthEvent(ctx, "auth.token_refreshed", ev.SessionID, ev)
}

// PublishSessionExpired emits auth.session_expired events.
func (p *Publisher) PublishSessionExpired(ctx context.Context, ev model.SessionExpiredEvent) error {
	return p.publishAuthEvent(ctx, "auth.session_expired", ev.SessionID, ev)
}

func (p *Publisher) publishAuthEvent(ctx context.Context, eventType, sessionID string, payload any) error {
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		SessionID:     sessionID,
		Topic:         p.subject,
		EventType:     eventType,
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}

	data, _ := json.Marshal(payload)
	env.Payload = data

	return p.PublishEnvelope(ctx, p.subject, env)
}

// Close drains and closes the underlying connection.
func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
