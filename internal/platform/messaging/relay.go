package messaging

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/whispers/whispers/internal/platform/telemetry"
)

type RelayConfig struct {
	Owner       string
	BatchSize   int
	MaxAttempts int
}

// Relay moves pending outbox rows to the publisher. A failed publish is
// rescheduled with backoff until MaxAttempts, then parked as dead.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       RelayConfig
	logger    zerolog.Logger
	now       func() time.Time
}

func NewRelay(store Store, publisher Publisher, cfg RelayConfig, logger zerolog.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Relay{store: store, publisher: publisher, cfg: cfg, logger: logger, now: time.Now}
}

// RunOnce claims one batch and returns how many messages were delivered.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	msgs, err := r.store.ClaimPending(ctx, r.cfg.Owner, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, m := range msgs {
		headers := map[string]string{
			"event_id":       m.EventID.String(),
			"aggregate_type": m.AggregateType,
			"aggregate_id":   m.AggregateID.String(),
			"published_at":   r.now().UTC().Format(time.RFC3339Nano),
		}
		if err := r.publisher.Publish(ctx, m.Topic, []byte(m.AggregateID.String()), m.Payload, headers); err != nil {
			attempts := m.Attempts + 1
			next := r.now().UTC().Add(retryDelay(attempts))
			dead := attempts >= r.cfg.MaxAttempts
			if markErr := r.store.MarkFailed(ctx, m.EventID, attempts, &next, err.Error(), dead); markErr != nil {
				r.logger.Error().Err(markErr).Str("event_id", m.EventID.String()).Msg("failed to mark outbox message failed")
			}
			if dead {
				telemetry.IncOutbox("dead")
				r.logger.Warn().Str("event_id", m.EventID.String()).Int("attempts", attempts).Msg("outbox message moved to dead-letter")
			} else {
				telemetry.IncOutbox("retry")
				r.logger.Error().Err(err).Str("event_id", m.EventID.String()).Msg("outbox publish failed")
			}
			continue
		}
		if err := r.store.MarkDelivered(ctx, m.EventID); err != nil {
			return delivered, err
		}
		telemetry.IncOutbox("delivered")
		delivered++
	}
	return delivered, nil
}

func retryDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 5 * time.Second
	}
	delay := time.Duration(attempt*attempt) * 5 * time.Second
	if delay > 5*time.Minute {
		return 5 * time.Minute
	}
	return delay
}
