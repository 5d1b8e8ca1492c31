package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whispers/whispers/internal/platform/db"
)

const (
	StatusPending   = "pending"
	StatusSending   = "sending"
	StatusDelivered = "delivered"
	StatusDead      = "dead"
)

// Message is a row of the outbox_events table.
type Message struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	Topic         string          `json:"topic"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	LockedAt      *time.Time      `json:"locked_at,omitempty"`
	LockedBy      *string         `json:"locked_by,omitempty"`
	LastError     *string         `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
}

// Store is the relay's view of the outbox.
type Store interface {
	ClaimPending(ctx context.Context, owner string, limit int) ([]Message, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt *time.Time, lastErr string, dead bool) error
}

type OutboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

const outboxCols = `event_id, aggregate_type, aggregate_id, topic, payload, status, attempts,
	next_retry_at, locked_at, locked_by, last_error, created_at, updated_at, published_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.EventID, &m.AggregateType, &m.AggregateID, &m.Topic, &m.Payload, &m.Status, &m.Attempts,
		&m.NextRetryAt, &m.LockedAt, &m.LockedBy, &m.LastError, &m.CreatedAt, &m.UpdatedAt, &m.PublishedAt)
	return m, err
}

// Insert writes a message using the transaction bound to ctx when present,
// so it commits or rolls back with the change it describes.
func (r *OutboxRepo) Insert(ctx context.Context, m Message) (Message, error) {
	if m.EventID == uuid.Nil {
		m.EventID = uuid.New()
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = m.CreatedAt

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, topic, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+outboxCols,
		m.EventID, m.AggregateType, m.AggregateID, m.Topic, m.Payload, m.Status, m.Attempts, m.CreatedAt, m.UpdatedAt)
	out, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("insert outbox message: %w", err)
	}
	return out, nil
}

func (r *OutboxRepo) ClaimPending(ctx context.Context, owner string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		WITH candidates AS (
			SELECT event_id
			FROM outbox_events
			WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= now())
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE outbox_events o
		SET status = $3, locked_at = now(), locked_by = $4, updated_at = now()
		FROM candidates c
		WHERE o.event_id = c.event_id
		RETURNING o.event_id, o.aggregate_type, o.aggregate_id, o.topic, o.payload, o.status, o.attempts,
			o.next_retry_at, o.locked_at, o.locked_by, o.last_error, o.created_at, o.updated_at, o.published_at`,
		StatusPending, limit, StatusSending, owner)
	if err != nil {
		return nil, fmt.Errorf("claim outbox messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *OutboxRepo) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $2, published_at = now(), locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE event_id = $1`, id, StatusDelivered)
	return err
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt *time.Time, lastErr string, dead bool) error {
	status := StatusPending
	if dead {
		status = StatusDead
		nextRetryAt = nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $2, attempts = $3, next_retry_at = $4, last_error = $5, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE event_id = $1`, id, status, attempts, nextRetryAt, lastErr)
	return err
}

// RequeueStale returns messages stuck in "sending" longer than age to pending.
func (r *OutboxRepo) RequeueStale(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $1, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE status = $2 AND locked_at < $3`, StatusPending, StatusSending, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
