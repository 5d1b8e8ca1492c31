package servicerequest

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

const cols = `id, event_id, request_type_id, request_response_id, response_by,
	created_by, modified_by, created_at, updated_at`

func scan(row pgx.Row) (*ServiceRequest, error) {
	var sr ServiceRequest
	err := row.Scan(&sr.ID, &sr.EventID, &sr.RequestTypeID, &sr.RequestResponseID, &sr.ResponseBy,
		&sr.CreatedBy, &sr.ModifiedBy, &sr.CreatedAt, &sr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

func (r *repoPG) Create(ctx context.Context, sr *ServiceRequest) error {
	sr.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO service_requests (id, event_id, request_type_id, request_response_id, response_by,
			created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		sr.ID, sr.EventID, sr.RequestTypeID, sr.RequestResponseID, sr.ResponseBy, sr.CreatedBy, sr.ModifiedBy,
	).Scan(&sr.CreatedAt, &sr.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ServiceRequest, error) {
	sr, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM service_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("service request", id)
		}
		return nil, err
	}
	return sr, nil
}

func (r *repoPG) List(ctx context.Context, eventID *uuid.UUID, limit, offset int) ([]*ServiceRequest, int, error) {
	q := db.NewSearchQuery("service_requests", cols)
	if eventID != nil {
		q.Add("event_id = ?", *eventID)
	}
	q.OrderBy("created_at DESC, id")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*ServiceRequest
	for rows.Next() {
		sr, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sr)
	}
	return out, total, rows.Err()
}
