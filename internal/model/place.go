// Package model holds the records passed between the fetch, dedup, staging,
// and publish stages.
package model

import "time"

// Source identifiers for upstream providers.
const (
	SourceGoogle = "google"
)

// Key is the natural key identifying a record's upstream origin. The whole
// pipeline preserves uniqueness of this pair.
type Key struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
}

// Candidate is a fetched place normalized into the pipeline's working shape.
type Candidate struct {
	Source       string    `json:"source" db:"source"`
	SourceID     string    `json:"source_id" db:"source_id"`
	Name         string    `json:"name" db:"name"`
	Address      string    `json:"address" db:"address"`
	Lat          float64   `json:"lat" db:"lat"`
	Lon          float64   `json:"lon" db:"lon"`
	City         string    `json:"city" db:"city"`
	Category     string    `json:"category" db:"category"`
	Rating       *float64  `json:"rating,omitempty" db:"rating"`
	ReviewCount  *int      `json:"review_count,omitempty" db:"review_count"`
	Website      string    `json:"website,omitempty" db:"website"`
	OpeningHours []string  `json:"opening_hours,omitempty" db:"opening_hours"`
	PrimaryType  string    `json:"primary_type,omitempty" db:"primary_type"`
	FetchedAt    time.Time `json:"fetched_at" db:"fetched_at"`
}

// Key returns the candidate's natural key.
func (c Candidate) Key() Key {
	return Key{Source: c.Source, SourceID: c.SourceID}
}

// Reference is a place from the independently curated reference dataset,
// used purely as a deduplication target. Never mutated by the pipeline.
type Reference struct {
	Name    string  `json:"name" yaml:"name"`
	Address string  `json:"address" yaml:"address"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
}
