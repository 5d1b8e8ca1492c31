package comment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/domain/event"
	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

// EventAccess resolves the caller's rights on an event.
type EventAccess interface {
	Access(ctx context.Context, eventID uuid.UUID, action auth.Action) (*event.Event, auth.Decision, error)
}

// Resolver maps an owner id to the event whose permissions govern its
// comments. uuid.Nil means the owner stands outside any single event and
// only NWHC staff may comment on it.
type Resolver func(ctx context.Context, id uuid.UUID) (uuid.UUID, error)

type Service struct {
	repo      Repository
	events    EventAccess
	resolvers map[OwnerKind]Resolver
}

func NewService(repo Repository, events EventAccess) *Service {
	s := &Service{repo: repo, events: events, resolvers: map[OwnerKind]Resolver{}}
	s.Register(KindEvent, func(_ context.Context, id uuid.UUID) (uuid.UUID, error) { return id, nil })
	return s
}

// Register installs the resolver for one owner kind.
func (s *Service) Register(kind OwnerKind, r Resolver) {
	s.resolvers[kind] = r
}

// authorize returns the governing event's decision for the caller. Comments
// are visible to collaborators and above; public visitors never see them.
func (s *Service) authorize(ctx context.Context, owner Owner) (auth.Decision, error) {
	resolve, ok := s.resolvers[owner.Kind]
	if !ok {
		return auth.Decision{}, apperr.Validation(fmt.Sprintf("object_type %q is not supported.", owner.Kind))
	}
	eventID, err := resolve(ctx, owner.ID)
	if err != nil {
		return auth.Decision{}, err
	}
	p := auth.PrincipalFromContext(ctx)
	if eventID == uuid.Nil {
		if p == nil || !p.Role.IsNWHC() {
			return auth.Decision{}, apperr.Permission("You do not have permission to access comments on this %s.", owner.Kind)
		}
		return auth.Decision{View: auth.ViewAdmin, Allowed: true}, nil
	}
	_, d, err := s.events.Access(ctx, eventID, auth.ActionRead)
	if err != nil {
		return auth.Decision{}, err
	}
	if d.View < auth.ViewCollaborator {
		return auth.Decision{}, apperr.Permission("You do not have permission to access comments on this %s.", owner.Kind)
	}
	return d, nil
}

func (s *Service) Create(ctx context.Context, c *Comment) error {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return apperr.Permission("Authentication credentials were not provided.")
	}
	c.Comment = strings.TrimSpace(c.Comment)
	if c.Comment == "" {
		return apperr.Validation("comment is required.")
	}
	if _, err := s.authorize(ctx, c.Owner); err != nil {
		return err
	}
	c.CreatedBy, c.ModifiedBy = p.UserID, p.UserID
	return s.repo.Create(ctx, c)
}

// CreateMany attaches several comments to one owner, skipping blank ones.
// Callers creating the owner in the same transaction use it for nested
// new_comments payloads.
func (s *Service) CreateMany(ctx context.Context, owner Owner, texts []NewComment) error {
	for _, t := range texts {
		if strings.TrimSpace(t.Comment) == "" {
			continue
		}
		c := &Comment{Owner: owner, Comment: t.Comment, CommentType: t.CommentType}
		if err := s.Create(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// NewComment is a comment nested in another record's create payload.
type NewComment struct {
	Comment     string `json:"comment"`
	CommentType string `json:"comment_type"`
}

func (s *Service) List(ctx context.Context, owner Owner, contains string) ([]*Comment, error) {
	if _, err := s.authorize(ctx, owner); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, owner, contains)
}

// Delete removes a comment. Its author may delete it, as may anyone holding
// the owner or admin view of the governing event.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return apperr.Permission("Authentication credentials were not provided.")
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	d, err := s.authorize(ctx, c.Owner)
	if err != nil {
		return err
	}
	if c.CreatedBy != p.UserID && d.View < auth.ViewOwner {
		return apperr.Permission("You do not have permission to delete comment %s.", id)
	}
	return s.repo.Delete(ctx, id)
}
