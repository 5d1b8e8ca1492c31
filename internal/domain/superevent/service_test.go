package superevent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/whispers/whispers/internal/domain/event"
	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

type mockRepo struct {
	items map[uuid.UUID]*SuperEvent
}

func (m *mockRepo) Create(_ context.Context, se *SuperEvent) error {
	se.ID = uuid.New()
	cp := *se
	cp.EventIDs = append([]uuid.UUID(nil), se.EventIDs...)
	m.items[se.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*SuperEvent, error) {
	se, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("superevent", id)
	}
	cp := *se
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*SuperEvent, int, error) {
	var out []*SuperEvent
	for _, se := range m.items {
		out = append(out, se)
	}
	return out, len(out), nil
}

func (m *mockRepo) AddEvents(_ context.Context, id uuid.UUID, eventIDs []uuid.UUID, modifiedBy uuid.UUID) error {
	se, ok := m.items[id]
	if !ok {
		return apperr.NotFound("superevent", id)
	}
	for _, eid := range eventIDs {
		linked := false
		for _, have := range se.EventIDs {
			linked = linked || have == eid
		}
		if !linked {
			se.EventIDs = append(se.EventIDs, eid)
		}
	}
	se.ModifiedBy = modifiedBy
	return nil
}

type mockEvents map[uuid.UUID]bool

func (m mockEvents) Access(_ context.Context, id uuid.UUID, _ auth.Action) (*event.Event, auth.Decision, error) {
	if !m[id] {
		return nil, auth.Decision{}, apperr.NotFound("event", id)
	}
	return &event.Event{ID: id}, auth.Decision{View: auth.ViewAdmin, Allowed: true}, nil
}

type mockNames map[int]string

func (m mockNames) Names(_ context.Context, table string) (map[int]string, error) {
	if table != event.TableSuperEventCategories {
		return nil, errors.New("unexpected table " + table)
	}
	return m, nil
}

type mockTx struct{}

func (mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func newTestService() (*Service, *mockRepo, mockEvents) {
	repo := &mockRepo{items: map[uuid.UUID]*SuperEvent{}}
	events := mockEvents{uuid.New(): true, uuid.New(): true}
	return NewService(repo, events, mockNames{1: "Highly Pathogenic Avian Influenza"}, mockTx{}), repo, events
}

func adminCtx() context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{UserID: uuid.New(), Role: auth.RoleAdmin})
}

func eventIDs(m mockEvents) []uuid.UUID {
	var out []uuid.UUID
	for id := range m {
		out = append(out, id)
	}
	return out
}

func TestCreate_NWHCOnly(t *testing.T) {
	svc, _, _ := newTestService()
	partner := auth.WithPrincipal(context.Background(), &auth.Principal{UserID: uuid.New(), Role: auth.RolePartnerAdmin})
	var pe *apperr.PermissionError
	if err := svc.Create(partner, &SuperEvent{}); !errors.As(err, &pe) {
		t.Errorf("expected permission error, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	svc, repo, events := newTestService()
	ids := eventIDs(events)
	cat := 1
	se := &SuperEvent{CategoryID: &cat, EventIDs: []uuid.UUID{ids[0], ids[1], ids[0]}}
	if err := svc.Create(adminCtx(), se); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.items[se.ID].EventIDs) != 2 {
		t.Errorf("expected 2 linked events, got %v", repo.items[se.ID].EventIDs)
	}
}

func TestCreate_ReportsEveryProblem(t *testing.T) {
	svc, _, _ := newTestService()
	cat := 42
	err := svc.Create(adminCtx(), &SuperEvent{CategoryID: &cat, EventIDs: []uuid.UUID{uuid.New()}})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(ve.Messages) != 2 {
		t.Errorf("expected category and event messages, got %v", ve.Messages)
	}
}

func TestAddEvents(t *testing.T) {
	svc, _, events := newTestService()
	ids := eventIDs(events)
	ctx := adminCtx()
	se := &SuperEvent{EventIDs: ids[:1]}
	if err := svc.Create(ctx, se); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.AddEvents(ctx, se.ID, ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.EventIDs) != 2 {
		t.Errorf("expected both events linked once, got %v", got.EventIDs)
	}
	if _, err := svc.AddEvents(ctx, uuid.New(), ids); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	var ve *apperr.ValidationError
	if _, err := svc.AddEvents(ctx, se.ID, nil); !errors.As(err, &ve) {
		t.Errorf("expected validation error for empty events, got %v", err)
	}
}

func TestExists(t *testing.T) {
	svc, _, _ := newTestService()
	se := &SuperEvent{}
	if err := svc.Create(adminCtx(), se); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, err := svc.Exists(context.Background(), se.ID); err != nil || id != uuid.Nil {
		t.Errorf("expected nil event id, got %v, %v", id, err)
	}
	if _, err := svc.Exists(context.Background(), uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHandler_AddEvents_BadID(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/superevents/x/events", strings.NewReader(`{"events":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("x")
	err := h.AddEvents(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
