package search

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

const cols = `id, name, data, fingerprint, count, created_by, created_at, updated_at`

func scan(row pgx.Row) (*Search, error) {
	var s Search
	if err := row.Scan(&s.ID, &s.Name, &s.Data, &s.Fingerprint, &s.Count, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Upsert(ctx context.Context, s *Search) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO searches (id, name, data, fingerprint, count, created_by)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (created_by, fingerprint)
		DO UPDATE SET count = searches.count + 1, updated_at = NOW()
		RETURNING id, count, created_at, updated_at`,
		uuid.New(), s.Name, s.Data, s.Fingerprint, s.CreatedBy,
	).Scan(&s.ID, &s.Count, &s.CreatedAt, &s.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Search, error) {
	s, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM searches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("search", id)
		}
		return nil, err
	}
	return s, nil
}

func (r *repoPG) Rename(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE searches SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("search", id)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM searches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("search", id)
	}
	return nil
}

func (r *repoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Search, int, error) {
	q := db.NewSearchQuery("searches", cols)
	q.Add("created_by = ?", userID)
	q.OrderBy("count DESC, updated_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Search
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repoPG) Top(ctx context.Context, limit int) ([]Popular, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT (array_agg(data))[1], SUM(count)::int AS use_count
		FROM searches
		GROUP BY fingerprint
		ORDER BY use_count DESC, fingerprint
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Popular
	for rows.Next() {
		var p Popular
		if err := rows.Scan(&p.Data, &p.UseCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
