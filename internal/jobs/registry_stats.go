package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/trade-enricher/pkg/model"
)

// SizeReader exposes the registry size without coupling to the full registry.
type SizeReader interface {
	Size() int
}

// EnvelopePublisher is the slice of the event publisher this job needs.
type EnvelopePublisher interface {
	PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error
}

// StatsReporter periodically emits a registry stats event so downstream
// dashboards see mapping size without scraping this service.
type StatsReporter struct {
	logger    *zap.Logger
	registry  SizeReader
	publisher EnvelopePublisher
	subject   string
	interval  time.Duration
	stopCh    chan struct{}
}

// NewStatsReporter constructs a background job that runs periodically.
func NewStatsReporter(logger *zap.Logger, registry SizeReader, pub EnvelopePublisher, subject string, interval time.Duration) *StatsReporter {
	return &StatsReporter{
		logger:    logger,
		registry:  registry,
		publisher: pub,
		subject:   subject,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the reporting loop until the context is canceled.
func (r *StatsReporter) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("registry_stats.started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("registry_stats.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("registry_stats.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the reporter.
func (r *StatsReporter) Stop() {
	close(r.stopCh)
}

func (r *StatsReporter) runOnce(ctx context.Context) {
	entries := r.registry.Size()

	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     "registry.stats",
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}
	env.Payload, _ = json.Marshal(map[string]any{"entries": entries})

	if err := r.publisher.PublishEnvelope(ctx, r.subject, env); err != nil {
		r.logger.Warn("registry_stats.publish_failed", zap.Error(err))
		return
	}

	r.logger.Info("registry_stats.reported", zap.Int("entries", entries))
}
