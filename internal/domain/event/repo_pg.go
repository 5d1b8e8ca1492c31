package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
	"github.com/whispers/whispers/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// notFound maps a missing row onto the domain error.
func notFound(err error, resource string, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource, id)
	}
	return err
}

const eventCols = `e.id, e.event_type_id, e.event_reference, e.complete, e.start_date, e.end_date,
	e.affected_count, e.public, e.quality_check, e.legal_status_id, e.organization_id,
	e.version, e.created_by, e.modified_by, e.created_at, e.updated_at`

func (r *repoPG) CreateEvent(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	e.Version = 1
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO events (
			id, event_type_id, event_reference, complete, public, quality_check,
			legal_status_id, organization_id, version, created_by, modified_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		e.ID, e.EventType, e.EventReference, e.Complete, e.Public, e.QualityCheck,
		e.LegalStatusID, e.OrganizationID, e.Version, e.CreatedBy, e.ModifiedBy,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *repoPG) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	return r.getEvent(ctx, `SELECT `+eventCols+` FROM events e WHERE e.id = $1`, id)
}

func (r *repoPG) GetEventForUpdate(ctx context.Context, id uuid.UUID) (*Event, error) {
	return r.getEvent(ctx, `SELECT `+eventCols+` FROM events e WHERE e.id = $1 FOR UPDATE`, id)
}

func (r *repoPG) getEvent(ctx context.Context, sql string, id uuid.UUID) (*Event, error) {
	e, err := scanEvent(r.conn(ctx).QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	if err := r.loadCollaborators(ctx, []*Event{e}); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) UpdateEvent(ctx context.Context, e *Event) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE events SET
			event_type_id=$2, event_reference=$3, complete=$4, public=$5, quality_check=$6,
			legal_status_id=$7, organization_id=$8, modified_by=$9, updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.EventType, e.EventReference, e.Complete, e.Public, e.QualityCheck,
		e.LegalStatusID, e.OrganizationID, e.ModifiedBy,
	)
	return err
}

func (r *repoPG) UpdateAggregates(ctx context.Context, id uuid.UUID, a Aggregates) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE events SET start_date=$2, end_date=$3, affected_count=$4 WHERE id = $1`,
		id, a.StartDate, a.EndDate, a.AffectedCount)
	return err
}

func (r *repoPG) BumpVersion(ctx context.Context, id, modifiedBy uuid.UUID) (int, error) {
	var v int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE events SET version = version + 1, modified_by = $2, updated_at = NOW()
		WHERE id = $1 RETURNING version`, id, modifiedBy).Scan(&v)
	return v, notFound(err, "event", id)
}

func (r *repoPG) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	return err
}

func (r *repoPG) SetCollaborators(ctx context.Context, eventID uuid.UUID, read, write []uuid.UUID) error {
	q := r.conn(ctx)
	for _, t := range []struct {
		table string
		ids   []uuid.UUID
	}{{"event_read_collaborators", read}, {"event_write_collaborators", write}} {
		if _, err := q.Exec(ctx, `DELETE FROM `+t.table+` WHERE event_id = $1`, eventID); err != nil {
			return err
		}
		for _, id := range t.ids {
			if _, err := q.Exec(ctx, `INSERT INTO `+t.table+` (event_id, user_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, eventID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadCollaborators fills both collaborator lists for a batch of events.
func (r *repoPG) loadCollaborators(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Event, len(events))
	ids := make([]uuid.UUID, 0, len(events))
	for _, e := range events {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT event_id, user_id, FALSE FROM event_read_collaborators WHERE event_id = ANY($1)
		UNION ALL
		SELECT event_id, user_id, TRUE FROM event_write_collaborators WHERE event_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var eventID, userID uuid.UUID
		var write bool
		if err := rows.Scan(&eventID, &userID, &write); err != nil {
			return err
		}
		e := byID[eventID]
		if write {
			e.WriteCollaborators = append(e.WriteCollaborators, userID)
		} else {
			e.ReadCollaborators = append(e.ReadCollaborators, userID)
		}
	}
	return rows.Err()
}

// factSources maps multi-valued filter fields to the subquery that lists an
// event's values for that field.
var factSources = map[string]struct{ from, col string }{
	FieldDiagnosis:     {"event_diagnoses x WHERE x.event_id = e.id", "x.diagnosis_id"},
	FieldDiagnosisType: {"event_diagnoses x JOIN diagnoses d ON d.id = x.diagnosis_id WHERE x.event_id = e.id", "d.diagnosis_type_id"},
	FieldSpecies:       {"location_species x JOIN event_locations l ON l.id = x.event_location_id WHERE l.event_id = e.id", "x.species_id"},
	FieldAdminLevelOne: {"event_locations x WHERE x.event_id = e.id", "x.administrative_level_one_id"},
	FieldAdminLevelTwo: {"event_locations x WHERE x.event_id = e.id", "x.administrative_level_two_id"},
	FieldLandOwnership: {"event_locations x WHERE x.event_id = e.id", "x.land_ownership_id"},
	"flyway":           {"event_locations x WHERE x.event_id = e.id", "x.flyway_id"},
	"country":          {"event_locations x WHERE x.event_id = e.id", "x.country_id"},
}

func addFact(q *db.SearchQuery, field string, want []int, all bool) {
	if len(want) == 0 {
		return
	}
	src := factSources[field]
	if all {
		want = dedupeInts(want)
		q.Add(fmt.Sprintf("(SELECT COUNT(DISTINCT %s) FROM %s AND %s = ANY(?)) = ?", src.col, src.from, src.col), want, len(want))
		return
	}
	q.Add(fmt.Sprintf("EXISTS (SELECT 1 FROM %s AND %s = ANY(?))", src.from, src.col), want)
}

func dedupeInts(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func applyScope(q *db.SearchQuery, s Scope) {
	switch s.Kind {
	case auth.ScopeAll:
	case auth.ScopeMine:
		user := q.Arg(s.UserID)
		q.Add(`(e.created_by = ` + user + ` OR e.organization_id = ?
			OR EXISTS (SELECT 1 FROM event_read_collaborators c WHERE c.event_id = e.id AND c.user_id = ` + user + `)
			OR EXISTS (SELECT 1 FROM event_write_collaborators c WHERE c.event_id = e.id AND c.user_id = ` + user + `))`,
			s.OrganizationID)
	default:
		q.Add("e.public = TRUE")
	}
}

func (r *repoPG) Search(ctx context.Context, f *Filter, scope Scope, limit, offset int) ([]*Event, int, error) {
	q := db.NewSearchQuery("events e", eventCols)
	applyScope(q, scope)
	if f != nil {
		if f.Complete != nil {
			q.Add("e.complete = ?", *f.Complete)
		}
		if len(f.EventTypes) > 0 {
			q.Add("e.event_type_id = ANY(?)", f.EventTypes)
		}
		addFact(q, FieldDiagnosis, f.Diagnoses, f.all(FieldDiagnosis))
		addFact(q, FieldDiagnosisType, f.DiagnosisTypes, f.all(FieldDiagnosisType))
		addFact(q, FieldSpecies, f.Species, f.all(FieldSpecies))
		addFact(q, FieldAdminLevelOne, f.AdminLevelOnes, f.all(FieldAdminLevelOne))
		addFact(q, FieldAdminLevelTwo, f.AdminLevelTwos, f.all(FieldAdminLevelTwo))
		addFact(q, FieldLandOwnership, f.LandOwnerships, f.all(FieldLandOwnership))
		addFact(q, "flyway", f.Flyways, false)
		addFact(q, "country", f.Countries, false)
		if len(f.GNISIDs) > 0 {
			q.Add("EXISTS (SELECT 1 FROM event_locations x WHERE x.event_id = e.id AND x.gnis_id = ANY(?))", f.GNISIDs)
		}
		if f.AffectedCountGTE != nil {
			q.Add("e.affected_count >= ?", *f.AffectedCountGTE)
		}
		if f.AffectedCountLTE != nil {
			q.Add("e.affected_count <= ?", *f.AffectedCountLTE)
		}
		if f.StartDateAfter != nil {
			q.Add("e.start_date > ?", f.StartDateAfter.Time)
		}
		if f.EndDateBefore != nil {
			q.Add("e.end_date < ?", f.EndDateBefore.Time)
		}
	}
	q.OrderBy("e.id DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := r.loadCollaborators(ctx, events); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *repoPG) ChangedOn(ctx context.Context, day time.Time, created bool) ([]*Event, error) {
	sql := `SELECT ` + eventCols + ` FROM events e WHERE e.created_at::date = $1 ORDER BY e.created_at`
	if !created {
		sql = `SELECT ` + eventCols + ` FROM events e
			WHERE e.updated_at::date = $1 AND e.created_at::date <> $1 ORDER BY e.updated_at`
	}
	return r.listEvents(ctx, sql, day)
}

func (r *repoPG) OpenCreatedOn(ctx context.Context, day time.Time) ([]*Event, error) {
	return r.listEvents(ctx, `SELECT `+eventCols+` FROM events e
		WHERE e.complete = FALSE AND e.created_at::date = $1 ORDER BY e.created_at`, day)
}

func (r *repoPG) listEvents(ctx context.Context, sql string, args ...interface{}) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	return events, r.loadCollaborators(ctx, events)
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(
		&e.ID, &e.EventType, &e.EventReference, &e.Complete, &e.StartDate, &e.EndDate,
		&e.AffectedCount, &e.Public, &e.QualityCheck, &e.LegalStatusID, &e.OrganizationID,
		&e.Version, &e.CreatedBy, &e.ModifiedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Locations

const locationCols = `l.id, l.event_id, l.name, l.start_date, l.end_date, l.country_id,
	l.administrative_level_one_id, l.administrative_level_two_id, l.land_ownership_id, l.flyway_id,
	l.gnis_id, l.gnis_name, l.latitude, l.longitude, l.priority,
	l.created_by, l.modified_by, l.created_at, l.updated_at`

func (r *repoPG) CreateLocation(ctx context.Context, l *EventLocation) error {
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO event_locations (
			id, event_id, name, start_date, end_date, country_id,
			administrative_level_one_id, administrative_level_two_id, land_ownership_id, flyway_id,
			gnis_id, gnis_name, latitude, longitude, priority, created_by, modified_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at, updated_at`,
		l.ID, l.EventID, l.Name, l.StartDate, l.EndDate, l.CountryID,
		l.AdministrativeLevelOneID, l.AdministrativeLevelTwoID, l.LandOwnershipID, l.FlywayID,
		l.GNISID, l.GNISName, l.Latitude, l.Longitude, l.Priority, l.CreatedBy, l.ModifiedBy,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *repoPG) GetLocation(ctx context.Context, id uuid.UUID) (*EventLocation, error) {
	l, err := scanLocation(r.conn(ctx).QueryRow(ctx, `SELECT `+locationCols+` FROM event_locations l WHERE l.id = $1`, id))
	return l, notFound(err, "event_location", id)
}

func (r *repoPG) UpdateLocation(ctx context.Context, l *EventLocation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE event_locations SET
			name=$2, start_date=$3, end_date=$4, country_id=$5,
			administrative_level_one_id=$6, administrative_level_two_id=$7, land_ownership_id=$8, flyway_id=$9,
			gnis_id=$10, gnis_name=$11, latitude=$12, longitude=$13, priority=$14,
			modified_by=$15, updated_at=NOW()
		WHERE id = $1`,
		l.ID, l.Name, l.StartDate, l.EndDate, l.CountryID,
		l.AdministrativeLevelOneID, l.AdministrativeLevelTwoID, l.LandOwnershipID, l.FlywayID,
		l.GNISID, l.GNISName, l.Latitude, l.Longitude, l.Priority, l.ModifiedBy,
	)
	return err
}

func (r *repoPG) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM event_locations WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListLocations(ctx context.Context, eventID uuid.UUID) ([]*EventLocation, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+locationCols+` FROM event_locations l
		WHERE l.event_id = $1 ORDER BY l.priority NULLS LAST, l.created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*EventLocation
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLocation(row pgx.Row) (*EventLocation, error) {
	var l EventLocation
	err := row.Scan(
		&l.ID, &l.EventID, &l.Name, &l.StartDate, &l.EndDate, &l.CountryID,
		&l.AdministrativeLevelOneID, &l.AdministrativeLevelTwoID, &l.LandOwnershipID, &l.FlywayID,
		&l.GNISID, &l.GNISName, &l.Latitude, &l.Longitude, &l.Priority,
		&l.CreatedBy, &l.ModifiedBy, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Location species

const speciesCols = `s.id, s.event_location_id, s.species_id, s.population_count,
	s.sick_count, s.dead_count, s.sick_count_estimated, s.dead_count_estimated,
	s.captive, s.priority, s.created_by, s.modified_by, s.created_at, s.updated_at`

func (r *repoPG) CreateSpecies(ctx context.Context, ls *LocationSpecies) error {
	ls.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO location_species (
			id, event_location_id, species_id, population_count, sick_count, dead_count,
			sick_count_estimated, dead_count_estimated, captive, priority, created_by, modified_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		ls.ID, ls.EventLocationID, ls.SpeciesID, ls.PopulationCount, ls.SickCount, ls.DeadCount,
		ls.SickCountEstimated, ls.DeadCountEstimated, ls.Captive, ls.Priority, ls.CreatedBy, ls.ModifiedBy,
	).Scan(&ls.CreatedAt, &ls.UpdatedAt)
}

func (r *repoPG) GetSpecies(ctx context.Context, id uuid.UUID) (*LocationSpecies, error) {
	ls, err := scanSpecies(r.conn(ctx).QueryRow(ctx, `SELECT `+speciesCols+` FROM location_species s WHERE s.id = $1`, id))
	return ls, notFound(err, "location_species", id)
}

func (r *repoPG) UpdateSpecies(ctx context.Context, ls *LocationSpecies) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE location_species SET
			species_id=$2, population_count=$3, sick_count=$4, dead_count=$5,
			sick_count_estimated=$6, dead_count_estimated=$7, captive=$8, priority=$9,
			modified_by=$10, updated_at=NOW()
		WHERE id = $1`,
		ls.ID, ls.SpeciesID, ls.PopulationCount, ls.SickCount, ls.DeadCount,
		ls.SickCountEstimated, ls.DeadCountEstimated, ls.Captive, ls.Priority, ls.ModifiedBy,
	)
	return err
}

func (r *repoPG) DeleteSpecies(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM location_species WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListSpeciesByEvent(ctx context.Context, eventID uuid.UUID) ([]*LocationSpecies, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+speciesCols+` FROM location_species s
		JOIN event_locations l ON l.id = s.event_location_id
		WHERE l.event_id = $1 ORDER BY s.priority NULLS LAST, s.created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*LocationSpecies
	for rows.Next() {
		ls, err := scanSpecies(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

func scanSpecies(row pgx.Row) (*LocationSpecies, error) {
	var ls LocationSpecies
	err := row.Scan(
		&ls.ID, &ls.EventLocationID, &ls.SpeciesID, &ls.PopulationCount,
		&ls.SickCount, &ls.DeadCount, &ls.SickCountEstimated, &ls.DeadCountEstimated,
		&ls.Captive, &ls.Priority, &ls.CreatedBy, &ls.ModifiedBy, &ls.CreatedAt, &ls.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ls, nil
}

// Species diagnoses

const speciesDiagnosisCols = `d.id, d.location_species_id, d.diagnosis_id, d.cause_id, d.basis_id,
	d.suspect, d.priority, d.tested_count, d.diagnosis_count, d.positive_count, d.suspect_count,
	d.pooled, d.created_by, d.modified_by, d.created_at, d.updated_at`

func (r *repoPG) CreateSpeciesDiagnosis(ctx context.Context, sd *SpeciesDiagnosis) error {
	sd.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO species_diagnoses (
			id, location_species_id, diagnosis_id, cause_id, basis_id, suspect, priority,
			tested_count, diagnosis_count, positive_count, suspect_count, pooled, created_by, modified_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		sd.ID, sd.LocationSpeciesID, sd.DiagnosisID, sd.CauseID, sd.BasisID, sd.Suspect, sd.Priority,
		sd.TestedCount, sd.DiagnosisCount, sd.PositiveCount, sd.SuspectCount, sd.Pooled, sd.CreatedBy, sd.ModifiedBy,
	).Scan(&sd.CreatedAt, &sd.UpdatedAt)
	if err != nil {
		return err
	}
	return r.setOrganizations(ctx, sd)
}

func (r *repoPG) GetSpeciesDiagnosis(ctx context.Context, id uuid.UUID) (*SpeciesDiagnosis, error) {
	sd, err := scanSpeciesDiagnosis(r.conn(ctx).QueryRow(ctx,
		`SELECT `+speciesDiagnosisCols+` FROM species_diagnoses d WHERE d.id = $1`, id))
	if err != nil {
		return nil, notFound(err, "species_diagnosis", id)
	}
	if err := r.loadOrganizations(ctx, []*SpeciesDiagnosis{sd}); err != nil {
		return nil, err
	}
	return sd, nil
}

func (r *repoPG) UpdateSpeciesDiagnosis(ctx context.Context, sd *SpeciesDiagnosis) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE species_diagnoses SET
			diagnosis_id=$2, cause_id=$3, basis_id=$4, suspect=$5, priority=$6,
			tested_count=$7, diagnosis_count=$8, positive_count=$9, suspect_count=$10, pooled=$11,
			modified_by=$12, updated_at=NOW()
		WHERE id = $1`,
		sd.ID, sd.DiagnosisID, sd.CauseID, sd.BasisID, sd.Suspect, sd.Priority,
		sd.TestedCount, sd.DiagnosisCount, sd.PositiveCount, sd.SuspectCount, sd.Pooled, sd.ModifiedBy,
	)
	if err != nil {
		return err
	}
	return r.setOrganizations(ctx, sd)
}

func (r *repoPG) DeleteSpeciesDiagnosis(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM species_diagnoses WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListSpeciesDiagnosesByEvent(ctx context.Context, eventID uuid.UUID) ([]*SpeciesDiagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+speciesDiagnosisCols+` FROM species_diagnoses d
		JOIN location_species s ON s.id = d.location_species_id
		JOIN event_locations l ON l.id = s.event_location_id
		WHERE l.event_id = $1 ORDER BY d.priority NULLS LAST, d.created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*SpeciesDiagnosis
	for rows.Next() {
		sd, err := scanSpeciesDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	return out, r.loadOrganizations(ctx, out)
}

func (r *repoPG) setOrganizations(ctx context.Context, sd *SpeciesDiagnosis) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM species_diagnosis_organizations WHERE species_diagnosis_id = $1`, sd.ID); err != nil {
		return err
	}
	for _, org := range sd.OrganizationIDs {
		if _, err := q.Exec(ctx, `INSERT INTO species_diagnosis_organizations (species_diagnosis_id, organization_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, sd.ID, org); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) loadOrganizations(ctx context.Context, sds []*SpeciesDiagnosis) error {
	if len(sds) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*SpeciesDiagnosis, len(sds))
	ids := make([]uuid.UUID, 0, len(sds))
	for _, sd := range sds {
		byID[sd.ID] = sd
		ids = append(ids, sd.ID)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT species_diagnosis_id, organization_id FROM species_diagnosis_organizations
		WHERE species_diagnosis_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sdID, orgID uuid.UUID
		if err := rows.Scan(&sdID, &orgID); err != nil {
			return err
		}
		sd := byID[sdID]
		sd.OrganizationIDs = append(sd.OrganizationIDs, orgID)
	}
	return rows.Err()
}

func scanSpeciesDiagnosis(row pgx.Row) (*SpeciesDiagnosis, error) {
	var sd SpeciesDiagnosis
	err := row.Scan(
		&sd.ID, &sd.LocationSpeciesID, &sd.DiagnosisID, &sd.CauseID, &sd.BasisID,
		&sd.Suspect, &sd.Priority, &sd.TestedCount, &sd.DiagnosisCount, &sd.PositiveCount, &sd.SuspectCount,
		&sd.Pooled, &sd.CreatedBy, &sd.ModifiedBy, &sd.CreatedAt, &sd.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sd, nil
}

// Event diagnoses

const eventDiagnosisCols = `x.id, x.event_id, x.diagnosis_id,
	CASE WHEN x.suspect THEN d.name || ' suspect' ELSE d.name END,
	x.suspect, x.major, x.priority, x.created_by, x.modified_by, x.created_at, x.updated_at`

const eventDiagnosisFrom = ` FROM event_diagnoses x JOIN diagnoses d ON d.id = x.diagnosis_id`

func (r *repoPG) CreateEventDiagnosis(ctx context.Context, ed *EventDiagnosis) error {
	ed.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO event_diagnoses (id, event_id, diagnosis_id, suspect, major, priority, created_by, modified_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		ed.ID, ed.EventID, ed.DiagnosisID, ed.Suspect, ed.Major, ed.Priority, ed.CreatedBy, ed.ModifiedBy,
	).Scan(&ed.CreatedAt, &ed.UpdatedAt)
}

func (r *repoPG) GetEventDiagnosis(ctx context.Context, id uuid.UUID) (*EventDiagnosis, error) {
	ed, err := scanEventDiagnosis(r.conn(ctx).QueryRow(ctx, `SELECT `+eventDiagnosisCols+eventDiagnosisFrom+` WHERE x.id = $1`, id))
	return ed, notFound(err, "event_diagnosis", id)
}

func (r *repoPG) UpdateEventDiagnosis(ctx context.Context, ed *EventDiagnosis) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE event_diagnoses SET diagnosis_id=$2, suspect=$3, major=$4, priority=$5, modified_by=$6, updated_at=NOW()
		WHERE id = $1`,
		ed.ID, ed.DiagnosisID, ed.Suspect, ed.Major, ed.Priority, ed.ModifiedBy,
	)
	return err
}

func (r *repoPG) DeleteEventDiagnosis(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM event_diagnoses WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListEventDiagnoses(ctx context.Context, eventID uuid.UUID) ([]*EventDiagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+eventDiagnosisCols+eventDiagnosisFrom+`
		WHERE x.event_id = $1 ORDER BY x.priority NULLS LAST, x.created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*EventDiagnosis
	for rows.Next() {
		ed, err := scanEventDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ed)
	}
	return out, rows.Err()
}

func scanEventDiagnosis(row pgx.Row) (*EventDiagnosis, error) {
	var ed EventDiagnosis
	err := row.Scan(
		&ed.ID, &ed.EventID, &ed.DiagnosisID, &ed.DiagnosisString,
		&ed.Suspect, &ed.Major, &ed.Priority, &ed.CreatedBy, &ed.ModifiedBy, &ed.CreatedAt, &ed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ed, nil
}

// Location contacts

const contactCols = `c.id, c.event_location_id, c.contact_id, c.contact_type_id,
	c.created_by, c.modified_by, c.created_at, c.updated_at`

func (r *repoPG) CreateLocationContact(ctx context.Context, c *EventLocationContact) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO event_location_contacts (id, event_location_id, contact_id, contact_type_id, created_by, modified_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		c.ID, c.EventLocationID, c.ContactID, c.ContactTypeID, c.CreatedBy, c.ModifiedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) GetLocationContact(ctx context.Context, id uuid.UUID) (*EventLocationContact, error) {
	c, err := scanContact(r.conn(ctx).QueryRow(ctx, `SELECT `+contactCols+` FROM event_location_contacts c WHERE c.id = $1`, id))
	return c, notFound(err, "event_location_contact", id)
}

func (r *repoPG) DeleteLocationContact(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM event_location_contacts WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListLocationContacts(ctx context.Context, eventID uuid.UUID) ([]*EventLocationContact, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+contactCols+` FROM event_location_contacts c
		JOIN event_locations l ON l.id = c.event_location_id
		WHERE l.event_id = $1 ORDER BY c.created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*EventLocationContact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContact(row pgx.Row) (*EventLocationContact, error) {
	var c EventLocationContact
	err := row.Scan(&c.ID, &c.EventLocationID, &c.ContactID, &c.ContactTypeID,
		&c.CreatedBy, &c.ModifiedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
