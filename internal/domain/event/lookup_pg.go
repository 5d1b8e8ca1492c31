package event

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/whispers/whispers/internal/platform/cache"
	"github.com/whispers/whispers/internal/platform/db"
)

var lookupTables = map[string]bool{
	TableEventTypes:      true,
	TableSpecies:         true,
	TableDiagnosisCauses: true,
	TableDiagnosisBases:  true,
	TableCountries:       true,
	TableAdminLevelOnes:  true,
	TableAdminLevelTwos:  true,
	TableLandOwnerships:  true,
	TableFlyways:         true,
	TableLegalStatuses:   true,
	TableContactTypes:    true,
	TableDiagnosisTypes:  true,

	TableServiceRequestTypes:     true,
	TableServiceRequestResponses: true,
	TableSuperEventCategories:    true,
}

type lookupPG struct {
	pool *pgxpool.Pool
}

func NewLookupRepo(pool *pgxpool.Pool) LookupRepository {
	return &lookupPG{pool: pool}
}

func (r *lookupPG) Diagnoses(ctx context.Context) (map[int]Diagnosis, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, name, diagnosis_type_id, high_impact FROM diagnoses`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]Diagnosis{}
	for rows.Next() {
		var d Diagnosis
		if err := rows.Scan(&d.ID, &d.Name, &d.DiagnosisTypeID, &d.HighImpact); err != nil {
			return nil, err
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

func (r *lookupPG) Names(ctx context.Context, table string) (map[int]string, error) {
	if !lookupTables[table] {
		return nil, fmt.Errorf("unknown lookup table %q", table)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, name FROM `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]string{}
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// JSONCache is the subset of the Redis client used for lookups.
type JSONCache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
}

var _ JSONCache = (*cache.Client)(nil)

// cachedLookups serves reference data from Redis, falling back to the
// wrapped repository on a miss or a cache failure.
type cachedLookups struct {
	next   LookupRepository
	cache  JSONCache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedLookups(next LookupRepository, c JSONCache, ttl time.Duration, logger zerolog.Logger) LookupRepository {
	return &cachedLookups{next: next, cache: c, ttl: ttl, logger: logger}
}

const lookupKeyPrefix = "whispers:lookup:"

func (c *cachedLookups) Diagnoses(ctx context.Context) (map[int]Diagnosis, error) {
	key := lookupKeyPrefix + "diagnoses"
	var out map[int]Diagnosis
	if ok, err := c.cache.GetJSON(ctx, key, &out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("lookup cache read failed")
	} else if ok {
		return out, nil
	}
	out, err := c.next.Diagnoses(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, out)
	return out, nil
}

func (c *cachedLookups) Names(ctx context.Context, table string) (map[int]string, error) {
	key := lookupKeyPrefix + table
	var out map[int]string
	if ok, err := c.cache.GetJSON(ctx, key, &out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("lookup cache read failed")
	} else if ok {
		return out, nil
	}
	out, err := c.next.Names(ctx, table)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, out)
	return out, nil
}

func (c *cachedLookups) store(ctx context.Context, key string, v any) {
	if err := c.cache.SetJSON(ctx, key, v, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("lookup cache write failed")
	}
}
