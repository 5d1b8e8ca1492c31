package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestMessages_CollectsAll(t *testing.T) {
	var m Messages
	m.Add("first")
	m.AddIf(false, "skipped")
	m.AddIf(true, "second")
	m.Add("first")

	err := m.Err()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(ve.Messages) != 2 || ve.Messages[0] != "first" || ve.Messages[1] != "second" {
		t.Errorf("unexpected messages: %v", ve.Messages)
	}
}

func TestMessages_EmptyIsNil(t *testing.T) {
	var m Messages
	if err := m.Err(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestMessages_Merge(t *testing.T) {
	var m Messages
	if err := m.Merge(Validation("a", "b")); err != nil {
		t.Fatalf("merge returned %v", err)
	}
	other := errors.New("boom")
	if err := m.Merge(other); err != other {
		t.Errorf("expected non-validation error to pass through, got %v", err)
	}
	if len(m) != 2 {
		t.Errorf("expected 2 messages, got %v", m)
	}
}

func TestToHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"permission", Permission("no"), http.StatusForbidden},
		{"locked", Locked("locked"), http.StatusBadRequest},
		{"not found", NotFound("event", "x"), http.StatusNotFound},
		{"conflict", Conflict(1, 2), http.StatusConflict},
		{"wrapped", fmt.Errorf("update: %w", NotFound("event", "x")), http.StatusNotFound},
		{"echo", echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
		{"unknown", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he, ok := ToHTTP(tt.err).(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError")
			}
			if he.Code != tt.code {
				t.Errorf("code = %d, want %d", he.Code, tt.code)
			}
		})
	}
	if ToHTTP(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("wrap: %w", NotFound("event", 1))) {
		t.Error("expected wrapped NotFoundError to match")
	}
	if IsNotFound(errors.New("other")) {
		t.Error("unexpected match")
	}
}
