package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/db"
)

// -- Notifications --

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const notificationCols = `id, recipient_id, source, event_id, read, client_page, subject, body, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	if err := row.Scan(&n.ID, &n.RecipientID, &n.Source, &n.EventID, &n.Read, &n.ClientPage,
		&n.Subject, &n.Body, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notifications (id, recipient_id, source, event_id, read, client_page, subject, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		n.ID, n.RecipientID, n.Source, n.EventID, n.Read, n.ClientPage, n.Subject, n.Body,
	).Scan(&n.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, err := scanNotification(r.conn(ctx).QueryRow(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("notification", id)
		}
		return nil, err
	}
	return n, nil
}

func (r *repoPG) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification", id)
	}
	return nil
}

func (r *repoPG) ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	q := db.NewSearchQuery("notifications", notificationCols)
	q.Add("recipient_id = ?", recipientID)
	if unreadOnly {
		q.Add("read = ?", false)
	}
	q.OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// -- Cues --

type cueRepoPG struct {
	pool *pgxpool.Pool
}

func NewCueRepo(pool *pgxpool.Pool) CueRepository {
	return &cueRepoPG{pool: pool}
}

func (r *cueRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *cueRepoPG) insertPreference(ctx context.Context, p *Preference) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notification_cue_preferences (id, create_when_new, create_when_modified, send_email)
		VALUES ($1, $2, $3, $4)`,
		p.ID, p.CreateWhenNew, p.CreateWhenModified, p.SendEmail)
	return err
}

func (r *cueRepoPG) SaveStandard(ctx context.Context, c *StandardCue) error {
	var id, prefID uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, preference_id FROM notification_cue_standards
		WHERE user_id = $1 AND standard_type = $2 FOR UPDATE`,
		c.UserID, string(c.StandardType)).Scan(&id, &prefID)
	switch {
	case err == nil:
		c.ID = id
		c.Preference.ID = prefID
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE notification_cue_preferences
			SET create_when_new = $2, create_when_modified = $3, send_email = $4
			WHERE id = $1`,
			prefID, c.Preference.CreateWhenNew, c.Preference.CreateWhenModified, c.Preference.SendEmail)
		return err
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	if err := r.insertPreference(ctx, &c.Preference); err != nil {
		return err
	}
	c.ID = uuid.New()
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO notification_cue_standards (id, user_id, standard_type, preference_id)
		VALUES ($1, $2, $3, $4)`,
		c.ID, c.UserID, string(c.StandardType), c.Preference.ID)
	return err
}

func (r *cueRepoPG) CreateCustom(ctx context.Context, c *CustomCue) error {
	if err := r.insertPreference(ctx, &c.Preference); err != nil {
		return err
	}
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notification_cue_customs (
			id, user_id, preference_id, event_id, event_affected_count, event_affected_count_operator,
			event_location_land_ownership, event_location_administrative_level_one,
			species, species_diagnosis_diagnosis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		c.ID, c.UserID, c.Preference.ID, c.EventID, c.AffectedCount, c.AffectedCountOperator,
		c.LandOwnership, c.AdminLevelOne, c.Species, c.Diagnosis,
	).Scan(&c.CreatedAt)
}

func (r *cueRepoPG) StandardCues(ctx context.Context, userID *uuid.UUID) ([]*StandardCue, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT s.id, s.user_id, s.standard_type,
		       p.id, p.create_when_new, p.create_when_modified, p.send_email
		FROM notification_cue_standards s
		JOIN notification_cue_preferences p ON p.id = s.preference_id
		WHERE $1::uuid IS NULL OR s.user_id = $1
		ORDER BY s.user_id, s.standard_type`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*StandardCue
	for rows.Next() {
		var c StandardCue
		var typ string
		if err := rows.Scan(&c.ID, &c.UserID, &typ, &c.Preference.ID, &c.Preference.CreateWhenNew,
			&c.Preference.CreateWhenModified, &c.Preference.SendEmail); err != nil {
			return nil, err
		}
		c.StandardType = StandardType(typ)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *cueRepoPG) CustomCues(ctx context.Context, userID *uuid.UUID) ([]*CustomCue, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.user_id, c.event_id, c.event_affected_count, c.event_affected_count_operator,
		       c.event_location_land_ownership, c.event_location_administrative_level_one,
		       c.species, c.species_diagnosis_diagnosis, c.created_at,
		       p.id, p.create_when_new, p.create_when_modified, p.send_email
		FROM notification_cue_customs c
		JOIN notification_cue_preferences p ON p.id = c.preference_id
		WHERE $1::uuid IS NULL OR c.user_id = $1
		ORDER BY c.created_at, c.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CustomCue
	for rows.Next() {
		var c CustomCue
		if err := rows.Scan(&c.ID, &c.UserID, &c.EventID, &c.AffectedCount, &c.AffectedCountOperator,
			&c.LandOwnership, &c.AdminLevelOne, &c.Species, &c.Diagnosis, &c.CreatedAt,
			&c.Preference.ID, &c.Preference.CreateWhenNew, &c.Preference.CreateWhenModified,
			&c.Preference.SendEmail); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *cueRepoPG) CueOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT user_id FROM notification_cue_standards WHERE id = $1
		UNION ALL
		SELECT user_id FROM notification_cue_customs WHERE id = $1
		LIMIT 1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, apperr.NotFound("notificationcue", id)
	}
	return owner, err
}

// DeleteCue removes the cue and its preference row.
func (r *cueRepoPG) DeleteCue(ctx context.Context, id uuid.UUID) error {
	var prefID uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		WITH gone AS (
			DELETE FROM notification_cue_standards WHERE id = $1 RETURNING preference_id
		), gone_custom AS (
			DELETE FROM notification_cue_customs WHERE id = $1 RETURNING preference_id
		)
		SELECT preference_id FROM gone UNION ALL SELECT preference_id FROM gone_custom`, id).Scan(&prefID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("notificationcue", id)
	}
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `DELETE FROM notification_cue_preferences WHERE id = $1`, prefID)
	return err
}
