package superevent

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whispers/whispers/internal/platform/apperr"
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

const cols = `id, category_id, created_by, modified_by, created_at, updated_at`

func scan(row pgx.Row) (*SuperEvent, error) {
	var se SuperEvent
	if err := row.Scan(&se.ID, &se.CategoryID, &se.CreatedBy, &se.ModifiedBy, &se.CreatedAt, &se.UpdatedAt); err != nil {
		return nil, err
	}
	return &se, nil
}

func (r *repoPG) Create(ctx context.Context, se *SuperEvent) error {
	se.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO superevents (id, category_id, created_by, modified_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		se.ID, se.CategoryID, se.CreatedBy, se.ModifiedBy,
	).Scan(&se.CreatedAt, &se.UpdatedAt)
	if err != nil {
		return err
	}
	return r.link(ctx, se.ID, se.EventIDs)
}

func (r *repoPG) link(ctx context.Context, id uuid.UUID, eventIDs []uuid.UUID) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO superevent_events (superevent_id, event_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`, id, eventIDs)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*SuperEvent, error) {
	se, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM superevents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("superevent", id)
		}
		return nil, err
	}
	if err := r.attachEvents(ctx, []*SuperEvent{se}); err != nil {
		return nil, err
	}
	return se, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*SuperEvent, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM superevents`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM superevents ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var out []*SuperEvent
	for rows.Next() {
		se, err := scan(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, se)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachEvents(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repoPG) attachEvents(ctx context.Context, items []*SuperEvent) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*SuperEvent, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, se := range items {
		byID[se.ID] = se
		ids = append(ids, se.ID)
		se.EventIDs = []uuid.UUID{}
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT superevent_id, event_id FROM superevent_events
		WHERE superevent_id = ANY($1) ORDER BY event_id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sid, eid uuid.UUID
		if err := rows.Scan(&sid, &eid); err != nil {
			return err
		}
		byID[sid].EventIDs = append(byID[sid].EventIDs, eid)
	}
	return rows.Err()
}

func (r *repoPG) AddEvents(ctx context.Context, id uuid.UUID, eventIDs []uuid.UUID, modifiedBy uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE superevents SET modified_by = $2, updated_at = NOW() WHERE id = $1`, id, modifiedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("superevent", id)
	}
	return r.link(ctx, id, eventIDs)
}
