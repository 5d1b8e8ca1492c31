package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
	"github.com/whispers/whispers/internal/platform/db"
)

func notFound(err error, resource string, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource, id)
	}
	return err
}

// -- Organization Repository --

type organizationRepoPG struct {
	pool *pgxpool.Pool
}

func NewOrganizationRepo(pool *pgxpool.Pool) OrganizationRepository {
	return &organizationRepoPG{pool: pool}
}

func (r *organizationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const orgCols = `id, name, parent_organization_id, laboratory, private, created_by, modified_by, created_at, updated_at`

func scanOrganization(row pgx.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.ParentOrganizationID, &o.Laboratory, &o.Private,
		&o.CreatedBy, &o.ModifiedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *organizationRepoPG) Create(ctx context.Context, o *Organization) error {
	o.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO organizations (id, name, parent_organization_id, laboratory, private, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		o.ID, o.Name, o.ParentOrganizationID, o.Laboratory, o.Private, o.CreatedBy, o.ModifiedBy,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *organizationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	o, err := scanOrganization(r.conn(ctx).QueryRow(ctx, `SELECT `+orgCols+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "organization", id)
	}
	return o, nil
}

func (r *organizationRepoPG) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orgCols+` FROM organizations ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *organizationRepoPG) Laboratories(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, laboratory FROM organizations WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var lab bool
		if err := rows.Scan(&id, &lab); err != nil {
			return nil, err
		}
		out[id] = lab
	}
	return out, rows.Err()
}

func (r *organizationRepoPG) Lineage(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		WITH RECURSIVE lineage(id, parent, depth) AS (
			SELECT id, parent_organization_id, 0 FROM organizations WHERE id = $1
			UNION ALL
			SELECT o.id, o.parent_organization_id, l.depth + 1
			FROM organizations o JOIN lineage l ON o.id = l.parent
			WHERE l.depth < 32
		)
		SELECT id FROM lineage ORDER BY depth`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var oid uuid.UUID
		if err := rows.Scan(&oid); err != nil {
			return nil, err
		}
		out = append(out, oid)
	}
	return out, rows.Err()
}

// -- User Repository --

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, username, email, first_name, last_name, role, organization_id, active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &role,
		&u.OrganizationID, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if u.Role, err = auth.ParseRole(role); err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	return &u, nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

func (r *userRepoPG) ByEmails(ctx context.Context, emails []string) ([]*User, error) {
	lower := make([]string, len(emails))
	for i, e := range emails {
		lower[i] = strings.ToLower(strings.TrimSpace(e))
	}
	return r.list(ctx, `SELECT `+userCols+` FROM users WHERE active AND LOWER(email) = ANY($1) ORDER BY username`, lower)
}

func (r *userRepoPG) ByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error) {
	return r.list(ctx, `SELECT `+userCols+` FROM users WHERE id = ANY($1) ORDER BY username`, ids)
}

func (r *userRepoPG) list(ctx context.Context, sql string, arg interface{}) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *userRepoPG) Emails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, email FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]string, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		out[id] = email
	}
	return out, rows.Err()
}

// -- Contact Repository --

type contactRepoPG struct {
	pool *pgxpool.Pool
}

func NewContactRepo(pool *pgxpool.Pool) ContactRepository {
	return &contactRepoPG{pool: pool}
}

func (r *contactRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const contactCols = `id, first_name, last_name, email, phone, title, organization_id, owner_organization_id,
	created_by, modified_by, created_at, updated_at`

func (r *contactRepoPG) Create(ctx context.Context, c *Contact) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO contacts (id, first_name, last_name, email, phone, title, organization_id,
			owner_organization_id, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Title, c.OrganizationID,
		c.OwnerOrganizationID, c.CreatedBy, c.ModifiedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *contactRepoPG) List(ctx context.Context, ownerOrg *uuid.UUID, limit, offset int) ([]*Contact, int, error) {
	q := db.NewSearchQuery("contacts", contactCols)
	if ownerOrg != nil {
		q.Add("owner_organization_id = ?", *ownerOrg)
	}
	q.OrderBy("last_name, first_name")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Title,
			&c.OrganizationID, &c.OwnerOrganizationID, &c.CreatedBy, &c.ModifiedBy,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &c)
	}
	return out, total, rows.Err()
}

// -- Circle Repository --

type circleRepoPG struct {
	pool *pgxpool.Pool
}

func NewCircleRepo(pool *pgxpool.Pool) CircleRepository {
	return &circleRepoPG{pool: pool}
}

func (r *circleRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const circleCols = `id, name, description, created_by, modified_by, created_at, updated_at`

func (r *circleRepoPG) Create(ctx context.Context, c *Circle) error {
	c.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO circles (id, name, description, created_by, modified_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Description, c.CreatedBy, c.ModifiedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return err
	}
	for _, uid := range c.UserIDs {
		if _, err := q.Exec(ctx, `INSERT INTO circle_users (circle_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, c.ID, uid); err != nil {
			return err
		}
	}
	return nil
}

func (r *circleRepoPG) List(ctx context.Context, createdBy *uuid.UUID, limit, offset int) ([]*Circle, int, error) {
	q := db.NewSearchQuery("circles", circleCols)
	if createdBy != nil {
		q.Add("created_by = ?", *createdBy)
	}
	q.OrderBy("name")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit, offset), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	var out []*Circle
	byID := map[uuid.UUID]*Circle{}
	for rows.Next() {
		var c Circle
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedBy, &c.ModifiedBy,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, &c)
		byID[c.ID] = &c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(out) == 0 {
		return out, total, nil
	}

	ids := make([]uuid.UUID, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.ID)
	}
	members, err := r.conn(ctx).Query(ctx, `SELECT circle_id, user_id FROM circle_users WHERE circle_id = ANY($1)`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer members.Close()
	for members.Next() {
		var cid, uid uuid.UUID
		if err := members.Scan(&cid, &uid); err != nil {
			return nil, 0, err
		}
		byID[cid].UserIDs = append(byID[cid].UserIDs, uid)
	}
	return out, total, members.Err()
}

func (r *circleRepoPG) Members(ctx context.Context, circleIDs []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT user_id FROM circle_users WHERE circle_id = ANY($1)`, circleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
