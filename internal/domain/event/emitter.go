package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/whispers/whispers/internal/platform/messaging"
)

// Outbox is where committed changes are queued for publication.
type Outbox interface {
	Insert(ctx context.Context, m messaging.Message) (messaging.Message, error)
}

// outboxEmitter writes each change to the outbox inside the mutation's
// transaction; the relay publishes it to Kafka after commit.
type outboxEmitter struct {
	outbox Outbox
	topic  string
}

func NewOutboxEmitter(outbox Outbox, topic string) ChangeEmitter {
	return &outboxEmitter{outbox: outbox, topic: topic}
}

func (o *outboxEmitter) Emit(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	_, err = o.outbox.Insert(ctx, messaging.Message{
		AggregateType: RecordEvent,
		AggregateID:   c.EventID,
		Topic:         o.topic,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("queue change: %w", err)
	}
	return nil
}
