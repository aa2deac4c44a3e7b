package place

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/wanderset/places-cli/internal/db"
	"github.com/wanderset/places-cli/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to the given database and returns a store.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership of
// the pool's lifecycle in tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool exposes the underlying pool for subsystems that need direct query
// access, such as retention checks.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const placesMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS cities (
	id         TEXT PRIMARY KEY,
	slug       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY,
	slug       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS places (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	source_id      TEXT NOT NULL,
	name           TEXT NOT NULL,
	address        TEXT NOT NULL DEFAULT '',
	lat            DOUBLE PRECISION NOT NULL,
	lon            DOUBLE PRECISION NOT NULL,
	location       geometry(Point, 4326),
	city_id        TEXT NOT NULL REFERENCES cities(id),
	category_id    TEXT NOT NULL REFERENCES categories(id),
	rating         DOUBLE PRECISION,
	review_count   INTEGER,
	website        TEXT NOT NULL DEFAULT '',
	opening_hours  JSONB,
	primary_type   TEXT NOT NULL DEFAULT '',
	active         BOOLEAN NOT NULL DEFAULT true,
	first_seen_at  TIMESTAMPTZ NOT NULL,
	last_seen_at   TIMESTAMPTZ NOT NULL,
	deleted_at     TIMESTAMPTZ,
	deleted_reason TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_places_source_key
	ON places(source, source_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_places_city_active ON places(city_id, active);
CREATE INDEX IF NOT EXISTS idx_places_location ON places USING gist (location);
`

// Migrate creates the canonical schema. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, placesMigration)
	return eris.Wrap(err, "place: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "place: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) EnsureCity(ctx context.Context, slug string) (string, error) {
	return s.ensureLookup(ctx, "cities", slug)
}

func (s *PostgresStore) EnsureCategory(ctx context.Context, slug string) (string, error) {
	return s.ensureLookup(ctx, "categories", slug)
}

func (s *PostgresStore) ensureLookup(ctx context.Context, table, slug string) (string, error) {
	if slug == "" {
		return "", eris.Errorf("place: empty %s slug", table)
	}

	// DO UPDATE instead of DO NOTHING so RETURNING always yields the row.
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+table+` (id, slug) VALUES ($1, $2)
		 ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		 RETURNING id`,
		uuid.New().String(), slug,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "place: ensure %s %s", table, slug)
	}
	return id, nil
}

const placeColumns = `id, source, source_id, name, address, lat, lon, city_id, category_id,
	rating, review_count, website, opening_hours, primary_type, active,
	first_seen_at, last_seen_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetBySourceKey(ctx context.Context, key model.Key) (*Place, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+placeColumns+` FROM places
		 WHERE source = $1 AND source_id = $2 AND deleted_at IS NULL`,
		key.Source, key.SourceID,
	)

	p, err := scanPlace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "place: get by source key %s/%s", key.Source, key.SourceID)
	}
	return p, nil
}

func (s *PostgresStore) Insert(ctx context.Context, p *Place) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.Active = true
	p.FirstSeenAt = now
	p.LastSeenAt = now
	p.CreatedAt = now
	p.UpdatedAt = now

	location, err := encodeLocation(p.Lat, p.Lon)
	if err != nil {
		return err
	}
	hoursJSON, err := marshalHours(p.OpeningHours)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO places (id, source, source_id, name, address, lat, lon, location,
			city_id, category_id, rating, review_count, website, opening_hours, primary_type,
			active, first_seen_at, last_seen_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, ST_GeomFromEWKB($8),
			$9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		p.ID, p.Source, p.SourceID, p.Name, p.Address, p.Lat, p.Lon, location,
		p.CityID, p.CategoryID, p.Rating, p.ReviewCount, p.Website, hoursJSON, p.PrimaryType,
		p.Active, p.FirstSeenAt, p.LastSeenAt, p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "place: insert %s/%s", p.Source, p.SourceID)
}

// Update refreshes the mutable attributes of an existing record by upstream
// key and reactivates it. first_seen_at and created_at are preserved.
func (s *PostgresStore) Update(ctx context.Context, p *Place) error {
	now := time.Now().UTC()
	p.Active = true
	p.LastSeenAt = now
	p.UpdatedAt = now

	location, err := encodeLocation(p.Lat, p.Lon)
	if err != nil {
		return err
	}
	hoursJSON, err := marshalHours(p.OpeningHours)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE places SET name = $1, address = $2, lat = $3, lon = $4,
			location = ST_GeomFromEWKB($5), rating = $6, review_count = $7,
			website = $8, opening_hours = $9, primary_type = $10,
			active = true, last_seen_at = $11, updated_at = $12
		 WHERE source = $13 AND source_id = $14 AND deleted_at IS NULL`,
		p.Name, p.Address, p.Lat, p.Lon, location, p.Rating, p.ReviewCount,
		p.Website, hoursJSON, p.PrimaryType, p.LastSeenAt, p.UpdatedAt,
		p.Source, p.SourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "place: update %s/%s", p.Source, p.SourceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("place not found: %s/%s", p.Source, p.SourceID)
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context, citySlug string) ([]Place, error) {
	query := `SELECT p.id, p.source, p.source_id, p.name, p.address, p.lat, p.lon,
		p.city_id, p.category_id, c.slug, cat.slug,
		p.rating, p.review_count, p.website, p.opening_hours, p.primary_type,
		p.active, p.first_seen_at, p.last_seen_at, p.created_at, p.updated_at
	 FROM places p
	 JOIN cities c ON c.id = p.city_id
	 JOIN categories cat ON cat.id = p.category_id
	 WHERE p.active AND p.deleted_at IS NULL`
	var args []any
	if citySlug != "" {
		query += ` AND c.slug = $1`
		args = append(args, citySlug)
	}
	query += ` ORDER BY p.created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "place: list active")
	}
	defer rows.Close()

	var places []Place
	for rows.Next() {
		var p Place
		var hoursJSON []byte
		if err := rows.Scan(&p.ID, &p.Source, &p.SourceID, &p.Name, &p.Address, &p.Lat, &p.Lon,
			&p.CityID, &p.CategoryID, &p.CitySlug, &p.CategorySlug,
			&p.Rating, &p.ReviewCount, &p.Website, &hoursJSON, &p.PrimaryType,
			&p.Active, &p.FirstSeenAt, &p.LastSeenAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "place: scan active place")
		}
		if len(hoursJSON) > 0 {
			if err := json.Unmarshal(hoursJSON, &p.OpeningHours); err != nil {
				return nil, eris.Wrap(err, "place: unmarshal opening hours")
			}
		}
		places = append(places, p)
	}
	return places, eris.Wrap(rows.Err(), "place: list active iterate")
}

func (s *PostgresStore) ListActiveKeys(ctx context.Context, citySlug, source string) (map[model.Key]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.source, p.source_id FROM places p
		 JOIN cities c ON c.id = p.city_id
		 WHERE c.slug = $1 AND p.source = $2 AND p.active AND p.deleted_at IS NULL`,
		citySlug, source,
	)
	if err != nil {
		return nil, eris.Wrap(err, "place: list active keys")
	}
	defer rows.Close()

	keys := make(map[model.Key]string)
	for rows.Next() {
		var id string
		var key model.Key
		if err := rows.Scan(&id, &key.Source, &key.SourceID); err != nil {
			return nil, eris.Wrap(err, "place: scan active key")
		}
		keys[key] = id
	}
	return keys, eris.Wrap(rows.Err(), "place: list active keys iterate")
}

func (s *PostgresStore) MarkInactive(ctx context.Context, placeID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE places SET active = false, updated_at = $1
		 WHERE id = $2 AND deleted_at IS NULL`,
		time.Now().UTC(), placeID,
	)
	if err != nil {
		return eris.Wrapf(err, "place: mark inactive %s", placeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("place not found: %s", placeID)
	}
	return nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, placeID, reason string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE places SET active = false, deleted_at = $1, deleted_reason = $2, updated_at = $1
		 WHERE id = $3 AND deleted_at IS NULL`,
		now, reason, placeID,
	)
	if err != nil {
		return eris.Wrapf(err, "place: soft delete %s", placeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("place not found: %s", placeID)
	}
	return nil
}

func (s *PostgresStore) HardDelete(ctx context.Context, placeID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM places WHERE id = $1`, placeID)
	if err != nil {
		return eris.Wrapf(err, "place: hard delete %s", placeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("place not found: %s", placeID)
	}
	return nil
}

// helpers

func marshalHours(hours []string) ([]byte, error) {
	if hours == nil {
		return nil, nil
	}
	data, err := json.Marshal(hours)
	return data, eris.Wrap(err, "place: marshal opening hours")
}

func scanPlace(row pgx.Row) (*Place, error) {
	var p Place
	var hoursJSON []byte

	err := row.Scan(&p.ID, &p.Source, &p.SourceID, &p.Name, &p.Address, &p.Lat, &p.Lon,
		&p.CityID, &p.CategoryID, &p.Rating, &p.ReviewCount, &p.Website, &hoursJSON,
		&p.PrimaryType, &p.Active, &p.FirstSeenAt, &p.LastSeenAt, &p.DeletedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &p.OpeningHours); err != nil {
			return nil, eris.Wrap(err, "place: unmarshal opening hours")
		}
	}
	return &p, nil
}
