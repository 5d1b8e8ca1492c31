package superevent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/domain/event"
	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

// EventAccess resolves the caller's rights on an event.
type EventAccess interface {
	Access(ctx context.Context, eventID uuid.UUID, action auth.Action) (*event.Event, auth.Decision, error)
}

// Names reads a lookup table.
type Names interface {
	Names(ctx context.Context, table string) (map[int]string, error)
}

// Service curates super events. Every operation is NWHC only.
type Service struct {
	repo    Repository
	events  EventAccess
	lookups Names
	tx      Transactor
}

func NewService(repo Repository, events EventAccess, lookups Names, tx Transactor) *Service {
	return &Service{repo: repo, events: events, lookups: lookups, tx: tx}
}

func requireNWHC(ctx context.Context) (*auth.Principal, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil || !p.Role.IsNWHC() {
		return nil, apperr.Permission("Only NWHC staff may manage super events.")
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, se *SuperEvent) error {
	p, err := requireNWHC(ctx)
	if err != nil {
		return err
	}
	var msgs apperr.Messages
	if se.CategoryID != nil {
		cats, err := s.lookups.Names(ctx, event.TableSuperEventCategories)
		if err != nil {
			return fmt.Errorf("load superevent categories: %w", err)
		}
		_, ok := cats[*se.CategoryID]
		msgs.AddIf(!ok, fmt.Sprintf("category %d does not exist.", *se.CategoryID))
	}
	se.EventIDs = dedupe(se.EventIDs)
	if err := msgs.Merge(s.checkEvents(ctx, se.EventIDs)); err != nil {
		return err
	}
	if err := msgs.Err(); err != nil {
		return err
	}
	se.CreatedBy, se.ModifiedBy = p.UserID, p.UserID
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, se)
	})
}

// checkEvents reports every missing event as a validation message.
func (s *Service) checkEvents(ctx context.Context, ids []uuid.UUID) error {
	var msgs apperr.Messages
	for _, id := range ids {
		if _, _, err := s.events.Access(ctx, id, auth.ActionRead); err != nil {
			if !apperr.IsNotFound(err) {
				return err
			}
			msgs.Add(fmt.Sprintf("event %s does not exist.", id))
		}
	}
	return msgs.Err()
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*SuperEvent, error) {
	if _, err := requireNWHC(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*SuperEvent, int, error) {
	if _, err := requireNWHC(ctx); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, limit, offset)
}

// AddEvents links more events to an existing super event.
func (s *Service) AddEvents(ctx context.Context, id uuid.UUID, eventIDs []uuid.UUID) (*SuperEvent, error) {
	p, err := requireNWHC(ctx)
	if err != nil {
		return nil, err
	}
	eventIDs = dedupe(eventIDs)
	if len(eventIDs) == 0 {
		return nil, apperr.Validation("events is required.")
	}
	if err := s.checkEvents(ctx, eventIDs); err != nil {
		return nil, err
	}
	var out *SuperEvent
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AddEvents(ctx, id, eventIDs, p.UserID); err != nil {
			return err
		}
		out, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Exists backs comment authorization; super events govern no single event,
// so the resolved event id is always uuid.Nil.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return uuid.Nil, err
	}
	return uuid.Nil, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	var out []uuid.UUID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
