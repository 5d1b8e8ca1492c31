package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestPoolStats_JSON(t *testing.T) {
	stats := PoolStats{TotalConns: 4, IdleConns: 3, AcquiredConns: 1, MaxConns: 10, AcquireCount: 7, AcquireDuration: "3ms", Healthy: true}
	b, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration", "healthy"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, b)
		}
	}
}

func TestRunChecks(t *testing.T) {
	checks := map[string]Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
		"kafka": func(context.Context) error { return nil },
	}
	failed := RunChecks(context.Background(), checks)
	if len(failed) != 1 {
		t.Fatalf("expected 1 failure, got %v", failed)
	}
	if failed["redis"] != "connection refused" {
		t.Errorf("unexpected redis failure: %q", failed["redis"])
	}
}

func TestRunChecks_None(t *testing.T) {
	if failed := RunChecks(context.Background(), nil); len(failed) != 0 {
		t.Errorf("expected no failures, got %v", failed)
	}
}
