package notification

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/domain/event"
	"github.com/whispers/whispers/internal/domain/identity"
	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
	"github.com/whispers/whispers/internal/platform/cache"
)

type mockRepo struct {
	items      []*Notification
	failCreate bool
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	if m.failCreate {
		return errors.New("insert failed")
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	m.items = append(m.items, n)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	for _, n := range m.items {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("notification", id)
}

func (m *mockRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	for _, n := range m.items {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return apperr.NotFound("notification", id)
}

func (m *mockRepo) ListByRecipient(_ context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	var out []*Notification
	for _, n := range m.items {
		if n.RecipientID == recipientID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) forRecipient(id uuid.UUID) []*Notification {
	var out []*Notification
	for _, n := range m.items {
		if n.RecipientID == id {
			out = append(out, n)
		}
	}
	return out
}

type mockCues struct {
	standard []*StandardCue
	custom   []*CustomCue
}

func (m *mockCues) SaveStandard(_ context.Context, c *StandardCue) error {
	for _, have := range m.standard {
		if have.UserID == c.UserID && have.StandardType == c.StandardType {
			have.Preference = c.Preference
			c.ID = have.ID
			return nil
		}
	}
	c.ID = uuid.New()
	m.standard = append(m.standard, c)
	return nil
}

func (m *mockCues) CreateCustom(_ context.Context, c *CustomCue) error {
	c.ID = uuid.New()
	m.custom = append(m.custom, c)
	return nil
}

func (m *mockCues) StandardCues(_ context.Context, userID *uuid.UUID) ([]*StandardCue, error) {
	var out []*StandardCue
	for _, c := range m.standard {
		if userID == nil || c.UserID == *userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCues) CustomCues(_ context.Context, userID *uuid.UUID) ([]*CustomCue, error) {
	var out []*CustomCue
	for _, c := range m.custom {
		if userID == nil || c.UserID == *userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCues) CueOwner(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	for _, c := range m.standard {
		if c.ID == id {
			return c.UserID, nil
		}
	}
	for _, c := range m.custom {
		if c.ID == id {
			return c.UserID, nil
		}
	}
	return uuid.Nil, apperr.NotFound("notificationcue", id)
}

func (m *mockCues) DeleteCue(_ context.Context, id uuid.UUID) error {
	for i, c := range m.standard {
		if c.ID == id {
			m.standard = append(m.standard[:i], m.standard[i+1:]...)
			return nil
		}
	}
	for i, c := range m.custom {
		if c.ID == id {
			m.custom = append(m.custom[:i], m.custom[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("notificationcue", id)
}

type mockTx struct{}

func (mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// mockEvents keys events by the day they were created or updated.
type mockEvents struct {
	created map[string][]*event.Event
	updated map[string][]*event.Event
	open    map[string][]*event.Event
	facts   map[uuid.UUID]event.Facts
}

func newMockEvents() *mockEvents {
	return &mockEvents{
		created: map[string][]*event.Event{},
		updated: map[string][]*event.Event{},
		open:    map[string][]*event.Event{},
		facts:   map[uuid.UUID]event.Facts{},
	}
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

func (m *mockEvents) ChangedOn(_ context.Context, day time.Time, created bool) ([]*event.Event, error) {
	if created {
		return m.created[dayKey(day)], nil
	}
	return m.updated[dayKey(day)], nil
}

func (m *mockEvents) OpenCreatedOn(_ context.Context, day time.Time) ([]*event.Event, error) {
	return m.open[dayKey(day)], nil
}

func (m *mockEvents) Facts(_ context.Context, e *event.Event) (event.Facts, error) {
	return m.facts[e.ID], nil
}

type mockDirectory struct {
	users map[uuid.UUID]*identity.User
	// parents maps an organization to its parent.
	parents map[uuid.UUID]uuid.UUID
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{users: map[uuid.UUID]*identity.User{}, parents: map[uuid.UUID]uuid.UUID{}}
}

func (m *mockDirectory) add(name string, org *uuid.UUID) *identity.User {
	u := &identity.User{ID: uuid.New(), Username: name, Email: name + "@example.org", OrganizationID: org, Active: true}
	m.users[u.ID] = u
	return u
}

func (m *mockDirectory) Users(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*identity.User, error) {
	out := map[uuid.UUID]*identity.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (m *mockDirectory) UsersByEmails(_ context.Context, emails []string) ([]*identity.User, error) {
	var out []*identity.User
	for _, u := range m.users {
		for _, e := range emails {
			if strings.EqualFold(u.Email, e) {
				out = append(out, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *mockDirectory) OrganizationLineage(_ context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{orgID}
	for cur := orgID; ; {
		parent, ok := m.parents[cur]
		if !ok {
			return out, nil
		}
		out = append(out, parent)
		cur = parent
	}
}

type mockLookups struct{}

func (mockLookups) Names(_ context.Context, table string) (map[int]string, error) {
	switch table {
	case event.TableLandOwnerships:
		return map[int]string{1: "Federal", 2: "Private"}, nil
	case event.TableSpecies:
		return map[int]string{10: "Mallard", 11: "Bald Eagle"}, nil
	}
	return map[int]string{}, nil
}

func (mockLookups) Diagnoses(_ context.Context) (map[int]event.Diagnosis, error) {
	return map[int]event.Diagnosis{7: {ID: 7, Name: "Avian Influenza"}}, nil
}

// recordingSink captures drafts instead of persisting them.
type recordingSink struct {
	drafts []Draft
	fail   bool
}

func (s *recordingSink) Generate(_ context.Context, d Draft) error {
	if s.fail {
		return errors.New("sink down")
	}
	s.drafts = append(s.drafts, d)
	return nil
}

type mockLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMockLocker() *mockLocker { return &mockLocker{held: map[string]bool{}} }

func (m *mockLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*cache.Lock, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, false, nil
	}
	m.held[key] = true
	return &cache.Lock{Key: key, Token: "t", TTL: ttl}, true, nil
}

func ctxFor(id uuid.UUID, role auth.Role) context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{UserID: id, Role: role})
}
