// Package place is the canonical place dataset: the published output of the
// pipeline, stored in Postgres with PostGIS geometry.
package place

import (
	"context"
	"time"

	"github.com/wanderset/places-cli/internal/model"
)

// Place is one canonical record in the target dataset.
type Place struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	SourceID     string     `json:"source_id"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	Lat          float64    `json:"lat"`
	Lon          float64    `json:"lon"`
	CityID       string     `json:"city_id"`
	CategoryID   string     `json:"category_id"`
	CitySlug     string     `json:"city_slug,omitempty"`
	CategorySlug string     `json:"category_slug,omitempty"`
	Rating       *float64   `json:"rating,omitempty"`
	ReviewCount  *int       `json:"review_count,omitempty"`
	Website      string     `json:"website,omitempty"`
	OpeningHours []string   `json:"opening_hours,omitempty"`
	PrimaryType  string     `json:"primary_type,omitempty"`
	Active       bool       `json:"active"`
	FirstSeenAt  time.Time  `json:"first_seen_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Key returns the place's upstream natural key.
func (p *Place) Key() model.Key {
	return model.Key{Source: p.Source, SourceID: p.SourceID}
}

// FromCandidate builds a Place from a pipeline candidate. ID and timestamps
// are assigned by the store on insert.
func FromCandidate(c model.Candidate, cityID, categoryID string) *Place {
	return &Place{
		Source:       c.Source,
		SourceID:     c.SourceID,
		Name:         c.Name,
		Address:      c.Address,
		Lat:          c.Lat,
		Lon:          c.Lon,
		CityID:       cityID,
		CategoryID:   categoryID,
		Rating:       c.Rating,
		ReviewCount:  c.ReviewCount,
		Website:      c.Website,
		OpeningHours: c.OpeningHours,
		PrimaryType:  c.PrimaryType,
		Active:       true,
	}
}

// Store is the canonical dataset interface. Implemented by PostgresStore;
// tests substitute mocks.
type Store interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// EnsureCity and EnsureCategory upsert a lookup row by slug and
	// return its id.
	EnsureCity(ctx context.Context, slug string) (string, error)
	EnsureCategory(ctx context.Context, slug string) (string, error)

	// GetBySourceKey returns the non-deleted place for an upstream key,
	// or nil when none exists.
	GetBySourceKey(ctx context.Context, key model.Key) (*Place, error)
	Insert(ctx context.Context, p *Place) error
	Update(ctx context.Context, p *Place) error

	// ListActive returns the active, non-deleted places for a city slug,
	// with lookup slugs populated. An empty slug returns every city.
	// Used by promotion to copy a dataset between environments.
	ListActive(ctx context.Context, citySlug string) ([]Place, error)

	// ListActiveKeys returns the active upstream keys for a city and
	// source, mapped to place ids. Used for incremental-sync filtering
	// and refresh reconciliation.
	ListActiveKeys(ctx context.Context, citySlug, source string) (map[model.Key]string, error)

	// MarkInactive flags a place no longer present upstream. The record
	// is kept; reconciliation never deletes.
	MarkInactive(ctx context.Context, placeID string) error

	// SoftDelete hides a place but preserves the row, recording why it
	// was removed. HardDelete removes it permanently and must only run
	// after a retention check.
	SoftDelete(ctx context.Context, placeID, reason string) error
	HardDelete(ctx context.Context, placeID string) error
}
