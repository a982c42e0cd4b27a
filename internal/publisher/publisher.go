package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/trade-enricher/internal/metrics"
	"github.com/Checker-Finance/trade-enricher/pkg/logger"
	"github.com/Checker-Finance/trade-enricher/pkg/model"
)

// Publisher wraps a NATS connection and provides helpers for publishing canonical events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	service string
}

// New creates a new Publisher with JetStream enabled if available.
func New(nc *nats.Conn, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		service: service,
	}, nil
}

// PublishEnvelope serializes and publishes a canonical event envelope to NATS.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.NATSPublishErrors.WithLabelValues(subject).Inc()
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
	)
	return nil
}

// PublishProductOp emits evt.products.replaced.v1 / evt.products.updated.v1.
func (p *Publisher) PublishProductOp(ctx context.Context, subjectPrefix string, op model.ProductOpEvent) error {
	eventType := "products.replaced"
	subject := subjectPrefix + ".replaced.v1"
	if op.Operation == "upsert" {
		eventType = "products.updated"
		subject = subjectPrefix + ".updated.v1"
	}

	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     eventType,
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}
	env.Payload, _ = json.Marshal(op)

	return p.PublishEnvelope(ctx, subject, env)
}

// PublishRunCompleted emits the enrichment run summary event.
func (p *Publisher) PublishRunCompleted(ctx context.Context, subject string, summary model.RunSummary) error {
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     "enrichment.completed",
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}
	env.Payload, _ = json.Marshal(summary)

	return p.PublishEnvelope(ctx, subject, env)
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
