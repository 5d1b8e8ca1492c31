package servicerequest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/domain/comment"
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

// Commenter attaches nested comments to a new request.
type Commenter interface {
	CreateMany(ctx context.Context, owner comment.Owner, texts []comment.NewComment) error
}

type Service struct {
	repo     Repository
	events   EventAccess
	lookups  Names
	comments Commenter
	tx       Transactor
}

func NewService(repo Repository, events EventAccess, lookups Names, comments Commenter, tx Transactor) *Service {
	return &Service{repo: repo, events: events, lookups: lookups, comments: comments, tx: tx}
}

// Create files a request against an event the caller may update. Only NWHC
// staff may record a response, and the responder is always the caller.
func (s *Service) Create(ctx context.Context, in *NewServiceRequest) (*ServiceRequest, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, apperr.Permission("Authentication credentials were not provided.")
	}
	sr := in.ServiceRequest
	if _, _, err := s.events.Access(ctx, sr.EventID, auth.ActionUpdate); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.Validation("event does not exist.")
		}
		return nil, err
	}

	var msgs apperr.Messages
	types, err := s.lookups.Names(ctx, event.TableServiceRequestTypes)
	if err != nil {
		return nil, fmt.Errorf("load request types: %w", err)
	}
	_, ok := types[sr.RequestTypeID]
	msgs.AddIf(!ok, fmt.Sprintf("request_type %d does not exist.", sr.RequestTypeID))

	sr.ResponseBy = nil
	if sr.RequestResponseID != nil {
		if !p.Role.IsNWHC() {
			return nil, apperr.Permission("Only NWHC staff may respond to service requests.")
		}
		responses, err := s.lookups.Names(ctx, event.TableServiceRequestResponses)
		if err != nil {
			return nil, fmt.Errorf("load request responses: %w", err)
		}
		_, ok := responses[*sr.RequestResponseID]
		msgs.AddIf(!ok, fmt.Sprintf("request_response %d does not exist.", *sr.RequestResponseID))
		responder := p.UserID
		sr.ResponseBy = &responder
	}
	if err := msgs.Err(); err != nil {
		return nil, err
	}

	sr.CreatedBy, sr.ModifiedBy = p.UserID, p.UserID
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, &sr); err != nil {
			return fmt.Errorf("create service request: %w", err)
		}
		return s.comments.CreateMany(ctx, comment.ServiceRequestOwner(sr.ID), in.NewComments)
	})
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

// Get returns a request when the caller can see beyond the public view of
// its event.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ServiceRequest, error) {
	sr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canSee(ctx, sr.EventID); err != nil {
		return nil, err
	}
	return sr, nil
}

// List returns requests for one event, or every request for NWHC staff
// when eventID is nil.
func (s *Service) List(ctx context.Context, eventID *uuid.UUID, limit, offset int) ([]*ServiceRequest, int, error) {
	if eventID == nil {
		p := auth.PrincipalFromContext(ctx)
		if p == nil || !p.Role.IsNWHC() {
			return nil, 0, apperr.Validation("event is required.")
		}
		return s.repo.List(ctx, nil, limit, offset)
	}
	if err := s.canSee(ctx, *eventID); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, eventID, limit, offset)
}

// EventID maps a request to its event for comment authorization.
func (s *Service) EventID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	sr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return sr.EventID, nil
}

func (s *Service) canSee(ctx context.Context, eventID uuid.UUID) error {
	_, d, err := s.events.Access(ctx, eventID, auth.ActionRead)
	if err != nil {
		return err
	}
	if d.View < auth.ViewCollaborator {
		return apperr.Permission("You do not have permission to view service requests for event %s.", eventID)
	}
	return nil
}
