package search

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

// TopLimit caps the popular searches listing.
const TopLimit = 10

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record counts one run of an event search for userID. uuid.Nil records
// it under SystemUserID.
func (s *Service) Record(ctx context.Context, userID uuid.UUID, params map[string]string, fingerprint string) error {
	if len(params) == 0 || fingerprint == "" {
		return nil
	}
	if userID == uuid.Nil {
		userID = SystemUserID
	}
	return s.repo.Upsert(ctx, &Search{Data: params, Fingerprint: fingerprint, CreatedBy: userID})
}

// Mine lists the caller's searches, most used first.
func (s *Service) Mine(ctx context.Context, limit, offset int) ([]*Search, int, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, 0, apperr.Permission("Authentication credentials were not provided.")
	}
	return s.repo.ListByUser(ctx, p.UserID, limit, offset)
}

func (s *Service) Top(ctx context.Context) ([]Popular, error) {
	return s.repo.Top(ctx, TopLimit)
}

func (s *Service) owned(ctx context.Context, id uuid.UUID) error {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return apperr.Permission("Authentication credentials were not provided.")
	}
	sr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !p.IsOwnerOrOverride(sr.CreatedBy) {
		return apperr.Permission("You do not have permission to change search %s.", id)
	}
	return nil
}

func (s *Service) Rename(ctx context.Context, id uuid.UUID, name string) (*Search, error) {
	if err := s.owned(ctx, id); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if len(name) > 128 {
		return nil, apperr.Validation("name must be at most 128 characters.")
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.owned(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
