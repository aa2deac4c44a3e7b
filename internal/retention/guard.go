// Package retention decides whether a place can be removed outright or
// must be kept as a soft-deleted row because users still reference it.
package retention

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wanderset/places-cli/internal/db"
)

// pgUndefinedTable is the Postgres error code for a missing relation.
const pgUndefinedTable = "42P01"

// Assessment reports which kinds of user content reference a place.
type Assessment struct {
	Comments      bool `json:"comments"`
	Attachments   bool `json:"attachments"`
	ListEntries   bool `json:"list_entries"`
	ScoutingTrips bool `json:"scouting_trips"`
}

// HasUserContent reports whether any check found references.
func (a Assessment) HasUserContent() bool {
	return a.Comments || a.Attachments || a.ListEntries || a.ScoutingTrips
}

// Guard runs the user-content existence checks against the application
// database that owns the content tables.
type Guard struct {
	pool db.Pool
}

// NewGuard creates a Guard on the given pool.
func NewGuard(pool db.Pool) *Guard {
	return &Guard{pool: pool}
}

// contentChecks maps each content kind to its existence query. The queries
// only probe existence; they never read the content itself.
var contentChecks = []struct {
	name  string
	query string
	field func(*Assessment) *bool
}{
	{
		name:  "comments",
		query: `SELECT EXISTS (SELECT 1 FROM place_comments WHERE place_id = $1)`,
		field: func(a *Assessment) *bool { return &a.Comments },
	},
	{
		name:  "attachments",
		query: `SELECT EXISTS (SELECT 1 FROM place_attachments WHERE place_id = $1)`,
		field: func(a *Assessment) *bool { return &a.Attachments },
	},
	{
		name:  "list_entries",
		query: `SELECT EXISTS (SELECT 1 FROM list_places WHERE place_id = $1)`,
		field: func(a *Assessment) *bool { return &a.ListEntries },
	},
	{
		name:  "scouting_trips",
		query: `SELECT EXISTS (SELECT 1 FROM scouting_trip_places WHERE place_id = $1)`,
		field: func(a *Assessment) *bool { return &a.ScoutingTrips },
	},
}

// Assess runs all content checks concurrently. A missing content table
// means that kind of content cannot exist and counts as none; any other
// query failure fails the assessment, erring on the side of keeping data.
func (g *Guard) Assess(ctx context.Context, placeID string) (*Assessment, error) {
	var a Assessment

	eg, ctx := errgroup.WithContext(ctx)
	for _, check := range contentChecks {
		eg.Go(func() error {
			var exists bool
			err := g.pool.QueryRow(ctx, check.query, placeID).Scan(&exists)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
					zap.L().Debug("content table missing, treating as no content",
						zap.String("check", check.name),
					)
					return nil
				}
				return eris.Wrapf(err, "retention: check %s", check.name)
			}
			*check.field(&a) = exists
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Deleter is the slice of the place store the delete flow needs.
type Deleter interface {
	SoftDelete(ctx context.Context, placeID, reason string) error
	HardDelete(ctx context.Context, placeID string) error
}

// Removal reasons recorded on soft-deleted rows.
const (
	ReasonOperatorDelete = "operator delete"
	ReasonUserContent    = "user content present"
)

// Delete removes a place, downgrading a hard delete to a soft delete
// whenever user content references it. Returns true when the row was
// removed permanently.
func (g *Guard) Delete(ctx context.Context, store Deleter, placeID string, hard bool) (bool, error) {
	a, err := g.Assess(ctx, placeID)
	if err != nil {
		return false, err
	}

	reason := ReasonOperatorDelete
	if hard && a.HasUserContent() {
		zap.L().Warn("place has user content, forcing soft delete",
			zap.String("place_id", placeID),
			zap.Bool("comments", a.Comments),
			zap.Bool("attachments", a.Attachments),
			zap.Bool("list_entries", a.ListEntries),
			zap.Bool("scouting_trips", a.ScoutingTrips),
		)
		hard = false
		reason = ReasonUserContent
	}

	if hard {
		if err := store.HardDelete(ctx, placeID); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, store.SoftDelete(ctx, placeID, reason)
}
