package messaging

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type memStore struct {
	pending   []Message
	delivered []uuid.UUID
	failed    map[uuid.UUID]bool
	attempts  map[uuid.UUID]int
}

func (s *memStore) ClaimPending(_ context.Context, _ string, limit int) ([]Message, error) {
	if len(s.pending) < limit {
		limit = len(s.pending)
	}
	out := s.pending[:limit]
	s.pending = s.pending[limit:]
	return out, nil
}

func (s *memStore) MarkDelivered(_ context.Context, id uuid.UUID) error {
	s.delivered = append(s.delivered, id)
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id uuid.UUID, attempts int, _ *time.Time, _ string, dead bool) error {
	if s.failed == nil {
		s.failed = map[uuid.UUID]bool{}
		s.attempts = map[uuid.UUID]int{}
	}
	s.failed[id] = dead
	s.attempts[id] = attempts
	return nil
}

type fakePublisher struct {
	fail   map[uuid.UUID]bool
	topics []string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key, _ []byte, _ map[string]string) error {
	id, _ := uuid.ParseBytes(key)
	if p.fail[id] {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	return nil
}

func TestRelay_RunOnce(t *testing.T) {
	ok := Message{EventID: uuid.New(), AggregateID: uuid.New(), Topic: "whispers.events"}
	bad := Message{EventID: uuid.New(), AggregateID: uuid.New(), Topic: "whispers.events", Attempts: 1}
	dead := Message{EventID: uuid.New(), AggregateID: uuid.New(), Topic: "whispers.events", Attempts: 2}

	store := &memStore{pending: []Message{ok, bad, dead}}
	pub := &fakePublisher{fail: map[uuid.UUID]bool{bad.AggregateID: true, dead.AggregateID: true}}
	relay := NewRelay(store, pub, RelayConfig{Owner: "test", MaxAttempts: 3}, zerolog.New(os.Stderr))

	n, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 || len(store.delivered) != 1 || store.delivered[0] != ok.EventID {
		t.Errorf("expected only %s delivered, got %v", ok.EventID, store.delivered)
	}
	if store.failed[bad.EventID] || store.attempts[bad.EventID] != 2 {
		t.Errorf("expected retry with 2 attempts, got dead=%v attempts=%d", store.failed[bad.EventID], store.attempts[bad.EventID])
	}
	if !store.failed[dead.EventID] {
		t.Error("expected message at max attempts to be dead")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 20 * time.Second},
		{3, 45 * time.Second},
		{20, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	if _, err := NewProducer(ProducerConfig{}); err == nil {
		t.Error("expected error without brokers")
	}
	var p *Producer
	if err := p.Publish(context.Background(), "t", nil, nil, nil); err == nil {
		t.Error("expected error from nil producer")
	}
}
