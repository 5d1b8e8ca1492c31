package notification

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

// Service is the user-facing side of notifications: the inbox and the
// cue settings.
type Service struct {
	repo Repository
	cues CueRepository
	tx   Transactor
}

func NewService(repo Repository, cues CueRepository, tx Transactor) *Service {
	return &Service{repo: repo, cues: cues, tx: tx}
}

func caller(ctx context.Context) (*auth.Principal, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, apperr.Permission("Authentication credentials were not provided.")
	}
	return p, nil
}

// -- Inbox --

func (s *Service) List(ctx context.Context, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListByRecipient(ctx, p.UserID, unreadOnly, limit, offset)
}

// MarkRead flags one of the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (*Notification, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != p.UserID {
		return nil, apperr.Permission("You do not have permission to change notification %s.", id)
	}
	if n.Read {
		return n, nil
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	n.Read = true
	return n, nil
}

// -- Cues --

// Cues groups a user's standard and custom cues.
type Cues struct {
	Standard []*StandardCue `json:"standard"`
	Custom   []*CustomCue   `json:"custom"`
}

func (s *Service) Cues(ctx context.Context) (*Cues, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	standard, err := s.cues.StandardCues(ctx, &p.UserID)
	if err != nil {
		return nil, err
	}
	custom, err := s.cues.CustomCues(ctx, &p.UserID)
	if err != nil {
		return nil, err
	}
	if standard == nil {
		standard = []*StandardCue{}
	}
	if custom == nil {
		custom = []*CustomCue{}
	}
	return &Cues{Standard: standard, Custom: custom}, nil
}

// CueInput is a standard cue when StandardType is set, a custom cue otherwise.
type CueInput struct {
	StandardType StandardType `json:"standard_type"`
	CustomCue
}

// SaveCue creates or updates a cue owned by the caller and returns it.
func (s *Service) SaveCue(ctx context.Context, in *CueInput) (interface{}, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if in.StandardType != "" {
		c := &StandardCue{UserID: p.UserID, StandardType: in.StandardType, Preference: in.Preference}
		if !c.StandardType.Valid() {
			return nil, apperr.Validation("standard_type must be one of Own, Organization, Collaborator, All.")
		}
		if err := s.tx.InTx(ctx, func(ctx context.Context) error { return s.cues.SaveStandard(ctx, c) }); err != nil {
			return nil, err
		}
		return c, nil
	}

	c := in.CustomCue
	c.UserID = p.UserID
	if err := validateCustom(&c); err != nil {
		return nil, err
	}
	if err := s.tx.InTx(ctx, func(ctx context.Context) error { return s.cues.CreateCustom(ctx, &c) }); err != nil {
		return nil, err
	}
	return &c, nil
}

func validateCustom(c *CustomCue) error {
	var msgs apperr.Messages
	msgs.AddIf(!c.HasCriteria(), "a custom cue needs at least one criterion.")

	switch strings.ToLower(c.AffectedCountOperator) {
	case "":
		c.AffectedCountOperator = CountGTE
	case CountGTE, CountLTE:
		c.AffectedCountOperator = strings.ToLower(c.AffectedCountOperator)
	default:
		msgs.Add("event_affected_count_operator must be __gte or __lte.")
	}
	msgs.AddIf(c.AffectedCount != nil && *c.AffectedCount < 0, "event_affected_count must not be negative.")

	sets := []struct {
		field string
		set   *ValueSet
	}{
		{"event_location_land_ownership", &c.LandOwnership},
		{"event_location_administrative_level_one", &c.AdminLevelOne},
		{"species", &c.Species},
		{"species_diagnosis_diagnosis", &c.Diagnosis},
	}
	for _, s := range sets {
		switch strings.ToUpper(s.set.Operator) {
		case "":
			if !s.set.Empty() {
				s.set.Operator = OpAnd
			}
		case OpAnd, OpOr:
			s.set.Operator = strings.ToUpper(s.set.Operator)
		default:
			msgs.Add(s.field + " operator must be AND or OR.")
		}
	}
	return msgs.Err()
}

// DeleteCue removes a cue. Only its owner or an override role may do so.
func (s *Service) DeleteCue(ctx context.Context, id uuid.UUID) error {
	p, err := caller(ctx)
	if err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		owner, err := s.cues.CueOwner(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsOwnerOrOverride(owner) {
			return apperr.Permission("You do not have permission to delete notification cue %s.", id)
		}
		return s.cues.DeleteCue(ctx, id)
	})
}
