package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

// Service owns organizations, users, contacts and circles. It also answers
// the directory questions the event engine asks about them.
type Service struct {
	orgs     OrganizationRepository
	users    UserRepository
	contacts ContactRepository
	circles  CircleRepository
}

func NewService(orgs OrganizationRepository, users UserRepository, contacts ContactRepository, circles CircleRepository) *Service {
	return &Service{orgs: orgs, users: users, contacts: contacts, circles: circles}
}

// -- Directory --

func (s *Service) Laboratories(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	return s.orgs.Laboratories(ctx, ids)
}

func (s *Service) CircleMembers(ctx context.Context, circleIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(circleIDs) == 0 {
		return nil, nil
	}
	return s.circles.Members(ctx, circleIDs)
}

// OrganizationLineage returns orgID followed by every organization above it.
func (s *Service) OrganizationLineage(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	lineage, err := s.orgs.Lineage(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("organization lineage: %w", err)
	}
	return lineage, nil
}

func (s *Service) UsersByEmails(ctx context.Context, emails []string) ([]*User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	return s.users.ByEmails(ctx, emails)
}

// Users maps the given ids to their user rows. Unknown ids are absent.
func (s *Service) Users(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error) {
	out := make(map[uuid.UUID]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.users.ByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// -- Organizations --

func (s *Service) CreateOrganization(ctx context.Context, o *Organization) error {
	p := auth.PrincipalFromContext(ctx)
	if p == nil || !p.Role.IsNWHC() {
		return apperr.Permission("You do not have permission to create organizations.")
	}
	o.Name = strings.TrimSpace(o.Name)
	if err := apperr.Validation(requireName(o.Name)...); err != nil {
		return err
	}
	if o.ParentOrganizationID != nil {
		if _, err := s.orgs.GetByID(ctx, *o.ParentOrganizationID); err != nil {
			if apperr.IsNotFound(err) {
				return apperr.Validation("parent_organization does not exist.")
			}
			return err
		}
	}
	o.CreatedBy, o.ModifiedBy = p.UserID, p.UserID
	return s.orgs.Create(ctx, o)
}

func (s *Service) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.orgs.GetByID(ctx, id)
}

func (s *Service) ListOrganizations(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	return s.orgs.List(ctx, limit, offset)
}

// -- Users --

// Me returns the caller's user row. Callers authenticated by token but
// not yet provisioned get a record built from their claims.
func (s *Service) Me(ctx context.Context) (*User, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, apperr.Permission("Authentication credentials were not provided.")
	}
	u, err := s.users.GetByID(ctx, p.UserID)
	if err == nil {
		return u, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}
	u = &User{ID: p.UserID, Username: p.Username, Email: p.Email, Role: p.Role, Active: true}
	if p.OrganizationID != uuid.Nil {
		org := p.OrganizationID
		u.OrganizationID = &org
	}
	return u, nil
}

// -- Contacts --

func (s *Service) CreateContact(ctx context.Context, c *Contact) error {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return apperr.Permission("Authentication credentials were not provided.")
	}
	var msgs apperr.Messages
	msgs.AddIf(strings.TrimSpace(c.FirstName) == "", "first_name is required.")
	msgs.AddIf(strings.TrimSpace(c.LastName) == "", "last_name is required.")
	if err := msgs.Err(); err != nil {
		return err
	}
	if p.OrganizationID != uuid.Nil {
		org := p.OrganizationID
		c.OwnerOrganizationID = &org
	}
	c.CreatedBy, c.ModifiedBy = p.UserID, p.UserID
	return s.contacts.Create(ctx, c)
}

// ListContacts returns every contact for NWHC staff and the caller's
// organization's contacts for everyone else.
func (s *Service) ListContacts(ctx context.Context, limit, offset int) ([]*Contact, int, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, 0, apperr.Permission("Authentication credentials were not provided.")
	}
	if p.Role.IsNWHC() {
		return s.contacts.List(ctx, nil, limit, offset)
	}
	org := p.OrganizationID
	return s.contacts.List(ctx, &org, limit, offset)
}

// -- Circles --

func (s *Service) CreateCircle(ctx context.Context, c *Circle) error {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return apperr.Permission("Authentication credentials were not provided.")
	}
	c.Name = strings.TrimSpace(c.Name)
	if err := apperr.Validation(requireName(c.Name)...); err != nil {
		return err
	}
	c.UserIDs = dedupe(c.UserIDs)
	if len(c.UserIDs) > 0 {
		known, err := s.users.Emails(ctx, c.UserIDs)
		if err != nil {
			return err
		}
		var msgs apperr.Messages
		for _, id := range c.UserIDs {
			_, ok := known[id]
			msgs.AddIf(!ok, fmt.Sprintf("user %s does not exist.", id))
		}
		if err := msgs.Err(); err != nil {
			return err
		}
	}
	c.CreatedBy, c.ModifiedBy = p.UserID, p.UserID
	return s.circles.Create(ctx, c)
}

func (s *Service) ListCircles(ctx context.Context, limit, offset int) ([]*Circle, int, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, 0, apperr.Permission("Authentication credentials were not provided.")
	}
	if p.Role.IsNWHC() {
		return s.circles.List(ctx, nil, limit, offset)
	}
	owner := p.UserID
	return s.circles.List(ctx, &owner, limit, offset)
}

func requireName(name string) []string {
	if name == "" {
		return []string{"name is required."}
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
