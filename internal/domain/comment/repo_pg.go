package comment

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

const cols = `id, owner_kind, owner_id, comment, comment_type, created_by, modified_by, created_at, updated_at`

func scan(row pgx.Row) (*Comment, error) {
	var c Comment
	var kind string
	if err := row.Scan(&c.ID, &kind, &c.Owner.ID, &c.Comment, &c.CommentType,
		&c.CreatedBy, &c.ModifiedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Kind = OwnerKind(kind)
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Comment) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO comments (id, owner_kind, owner_id, comment, comment_type, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		c.ID, string(c.Kind), c.Owner.ID, c.Comment, c.CommentType, c.CreatedBy, c.ModifiedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Comment, error) {
	c, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM comments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("comment", id)
		}
		return nil, err
	}
	return c, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("comment", id)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, owner Owner, contains string) ([]*Comment, error) {
	q := db.NewSearchQuery("comments", cols)
	q.Add("owner_kind = ?", string(owner.Kind))
	q.Add("owner_id = ?", owner.ID)
	if contains != "" {
		q.Add("comment ILIKE '%' || ? || '%'", contains)
	}
	q.OrderBy("created_at, id")

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(0, 0), q.DataArgs(0, 0)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Comment
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
