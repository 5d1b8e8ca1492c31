package event

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/whispers/whispers/internal/platform/apperr"
)

type ref struct {
	table string
	field string
	id    int
}

// checker collects rule violations and referenced ids for one mutation,
// then resolves the references in a single pass.
type checker struct {
	s     *Service
	m     apperr.Messages
	refs  []ref
	labs  []uuid.UUID
	diags map[int]Diagnosis
	ph    Placeholders
	sds   []*SpeciesDiagnosis
}

func (s *Service) newChecker(ctx context.Context) (*checker, error) {
	diags, err := s.lookups.Diagnoses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load diagnoses: %w", err)
	}
	ph, err := s.placeholders(ctx)
	if err != nil {
		return nil, err
	}
	return &checker{s: s, diags: diags, ph: ph}, nil
}

func (c *checker) ref(table, field string, id *int) {
	if id != nil {
		c.refs = append(c.refs, ref{table: table, field: field, id: *id})
	}
}

func (c *checker) event(eventType int, legalStatus *int) {
	c.ref(TableEventTypes, "event_type", &eventType)
	c.ref(TableLegalStatuses, "legal_status", legalStatus)
}

func (c *checker) location(l *EventLocation) {
	c.ref(TableCountries, "country", l.CountryID)
	c.ref(TableAdminLevelOnes, "administrative_level_one", l.AdministrativeLevelOneID)
	c.ref(TableAdminLevelTwos, "administrative_level_two", l.AdministrativeLevelTwoID)
	c.ref(TableLandOwnerships, "land_ownership", l.LandOwnershipID)
	c.ref(TableFlyways, "flyway", l.FlywayID)
}

func (c *checker) species(ls *LocationSpecies) {
	c.ref(TableSpecies, "species", &ls.SpeciesID)
	checkSpeciesCounts(ls, &c.m)
}

// speciesDiagnosis checks sd as submitted, then forces placeholder
// diagnoses to non-suspect. Save-time defaults wait for err to pass.
func (c *checker) speciesDiagnosis(sd *SpeciesDiagnosis) {
	checkSpeciesDiagnosis(sd, &c.m)
	if c.ph.Is(sd.DiagnosisID) {
		sd.Suspect = false
	}
	c.sds = append(c.sds, sd)
	c.diagnosis(sd.DiagnosisID)
	c.ref(TableDiagnosisCauses, "cause", sd.CauseID)
	c.ref(TableDiagnosisBases, "basis", sd.BasisID)
	c.labs = append(c.labs, sd.OrganizationIDs...)
}

func (c *checker) diagnosis(id int) {
	if _, ok := c.diags[id]; !ok {
		c.m.Add(fmt.Sprintf("diagnosis %d does not exist.", id))
	}
}

func (c *checker) contact(ct *EventLocationContact) {
	c.m.AddIf(ct.ContactID == uuid.Nil, "contact is required.")
	c.ref(TableContactTypes, "contact_type", ct.ContactTypeID)
}

// newLocation checks a location with its nested species, species diagnoses
// and contacts.
func (c *checker) newLocation(loc *NewLocation) {
	c.location(&loc.EventLocation)
	for i := range loc.Species {
		c.newSpecies(&loc.Species[i])
	}
	for i := range loc.Contacts {
		c.contact(&loc.Contacts[i])
	}
}

func (c *checker) newSpecies(sp *NewSpecies) {
	c.species(&sp.LocationSpecies)
	seen := map[int]bool{}
	for i := range sp.Diagnoses {
		sd := &sp.Diagnoses[i]
		c.speciesDiagnosis(sd)
		c.m.AddIf(seen[sd.DiagnosisID], msgSpeciesDiagUnique)
		seen[sd.DiagnosisID] = true
	}
}

// err resolves collected references and returns every violation. With no
// violations the checked species diagnoses get their save-time defaults.
func (c *checker) err(ctx context.Context) error {
	names := map[string]map[int]string{}
	for _, r := range c.refs {
		table, ok := names[r.table]
		if !ok {
			var err error
			if table, err = c.s.lookups.Names(ctx, r.table); err != nil {
				return fmt.Errorf("load %s: %w", r.table, err)
			}
			names[r.table] = table
		}
		if _, ok := table[r.id]; !ok {
			c.m.Add(fmt.Sprintf("%s %d does not exist.", r.field, r.id))
		}
	}
	if len(c.labs) > 0 {
		labs, err := c.s.dir.Laboratories(ctx, dedupe(c.labs))
		if err != nil {
			return fmt.Errorf("load laboratories: %w", err)
		}
		for _, id := range c.labs {
			isLab, ok := labs[id]
			switch {
			case !ok:
				c.m.Add(fmt.Sprintf("organization %s does not exist.", id))
			case !isLab:
				c.m.Add(msgLaboratoryOnly)
			}
		}
	}
	if err := c.m.Err(); err != nil {
		return err
	}
	for _, sd := range c.sds {
		normalizeSpeciesDiagnosis(sd)
	}
	return nil
}
