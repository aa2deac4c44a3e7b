// Package publish pushes reviewed staging batches into the canonical place
// dataset, and promotes datasets between environments.
package publish

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wanderset/places-cli/internal/model"
	"github.com/wanderset/places-cli/internal/place"
	"github.com/wanderset/places-cli/internal/staging"
)

// Stage is the slice of the staging store the publisher needs.
type Stage interface {
	GetBatch(ctx context.Context, id string) (*staging.Batch, error)
	ListItems(ctx context.Context, batchID string) ([]staging.Item, error)
	CountPending(ctx context.Context, batchID string) (int, error)
	MarkPublished(ctx context.Context, batchID string) error
}

// Result summarizes one publish or promote run. Errors counts records that
// failed individually; the run itself still completes.
type Result struct {
	Inserted       int `json:"inserted"`
	Updated        int `json:"updated"`
	Skipped        int `json:"skipped"`
	MarkedInactive int `json:"marked_inactive"`
	Errors         int `json:"errors"`
}

// Publisher writes staged batches to a place store.
type Publisher struct {
	stage  Stage
	places place.Store
}

// NewPublisher creates a Publisher.
func NewPublisher(stage Stage, places place.Store) *Publisher {
	return &Publisher{stage: stage, places: places}
}

// Publish upserts every publishable item of a batch by upstream key.
// Individual record failures are counted and logged, never fatal. In
// refresh mode, active places absent from the batch are marked inactive.
// Publishing is refused while borderline reviews are pending. Re-running
// is safe: upserts by key converge to the same state.
func (p *Publisher) Publish(ctx context.Context, batchID string) (*Result, error) {
	batch, err := p.stage.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	pending, err := p.stage.CountPending(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, eris.Errorf("publish: %d borderline items still pending review in batch %s", pending, batchID)
	}

	log := zap.L().With(
		zap.String("phase", "publish"),
		zap.String("batch_id", batchID),
		zap.String("city", batch.City),
		zap.String("mode", batch.Mode),
	)
	if batch.Published() {
		log.Warn("batch already published, re-running upsert")
	}

	items, err := p.stage.ListItems(ctx, batchID)
	if err != nil {
		return nil, err
	}

	cityID, err := p.places.EnsureCity(ctx, batch.City)
	if err != nil {
		return nil, err
	}
	categoryID, err := p.places.EnsureCategory(ctx, batch.Category)
	if err != nil {
		return nil, err
	}

	// Snapshot the active keys up front in refresh mode so we can mark
	// whatever the fetch no longer sees.
	var activeKeys map[model.Key]string
	if batch.Mode == staging.ModeRefresh {
		activeKeys, err = p.places.ListActiveKeys(ctx, batch.City, model.SourceGoogle)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{}
	seen := make(map[model.Key]bool)

	for _, it := range items {
		key := it.Candidate.Key()
		// Every candidate the fetch saw counts as present upstream,
		// publishable or not.
		seen[key] = true

		if !it.Publishable() {
			result.Skipped++
			continue
		}

		if err := p.upsert(ctx, it.Candidate, cityID, categoryID, result); err != nil {
			result.Errors++
			log.Warn("record publish failed, continuing",
				zap.String("source_id", key.SourceID),
				zap.String("name", it.Candidate.Name),
				zap.Error(err),
			)
		}
	}

	for key, id := range activeKeys {
		if seen[key] {
			continue
		}
		if err := p.places.MarkInactive(ctx, id); err != nil {
			result.Errors++
			log.Warn("mark inactive failed, continuing",
				zap.String("place_id", id),
				zap.Error(err),
			)
			continue
		}
		result.MarkedInactive++
	}

	if err := p.stage.MarkPublished(ctx, batchID); err != nil {
		return result, err
	}

	log.Info("publish complete",
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("marked_inactive", result.MarkedInactive),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

func (p *Publisher) upsert(ctx context.Context, c model.Candidate, cityID, categoryID string, result *Result) error {
	existing, err := p.places.GetBySourceKey(ctx, c.Key())
	if err != nil {
		return err
	}

	rec := place.FromCandidate(c, cityID, categoryID)
	if existing == nil {
		if err := p.places.Insert(ctx, rec); err != nil {
			return err
		}
		result.Inserted++
		return nil
	}
	if err := p.places.Update(ctx, rec); err != nil {
		return err
	}
	result.Updated++
	return nil
}

// ConfirmFunc asks the operator to confirm an irreversible step. The CLI
// wires a terminal prompt; tests wire a constant.
type ConfirmFunc func(prompt string) (bool, error)

// ErrAborted is returned when the operator declines a confirmation.
var ErrAborted = eris.New("publish: aborted by operator")

// Promote copies the active places of one store into another, upserting by
// upstream key. Nothing is removed from the destination. The operator must
// confirm before any write happens.
func Promote(ctx context.Context, src, dst place.Store, citySlug string, confirm ConfirmFunc) (*Result, error) {
	places, err := src.ListActive(ctx, citySlug)
	if err != nil {
		return nil, err
	}

	scope := citySlug
	if scope == "" {
		scope = "all cities"
	}
	ok, err := confirm(fmt.Sprintf("Promote %d active places (%s) to production?", len(places), scope))
	if err != nil {
		return nil, eris.Wrap(err, "publish: confirm promote")
	}
	if !ok {
		return nil, ErrAborted
	}

	log := zap.L().With(
		zap.String("phase", "promote"),
		zap.String("city", scope),
	)

	// Lookup ids differ between environments; resolve slugs on the
	// destination and cache per run.
	cityIDs := make(map[string]string)
	categoryIDs := make(map[string]string)

	result := &Result{}
	for _, p := range places {
		cityID, ok := cityIDs[p.CitySlug]
		if !ok {
			cityID, err = dst.EnsureCity(ctx, p.CitySlug)
			if err != nil {
				result.Errors++
				log.Warn("ensure city failed, skipping record",
					zap.String("city", p.CitySlug),
					zap.Error(err),
				)
				continue
			}
			cityIDs[p.CitySlug] = cityID
		}
		categoryID, ok := categoryIDs[p.CategorySlug]
		if !ok {
			categoryID, err = dst.EnsureCategory(ctx, p.CategorySlug)
			if err != nil {
				result.Errors++
				log.Warn("ensure category failed, skipping record",
					zap.String("category", p.CategorySlug),
					zap.Error(err),
				)
				continue
			}
			categoryIDs[p.CategorySlug] = categoryID
		}

		if err := promoteOne(ctx, dst, p, cityID, categoryID, result); err != nil {
			result.Errors++
			log.Warn("record promote failed, continuing",
				zap.String("source_id", p.SourceID),
				zap.String("name", p.Name),
				zap.Error(err),
			)
		}
	}

	log.Info("promote complete",
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

func promoteOne(ctx context.Context, dst place.Store, p place.Place, cityID, categoryID string, result *Result) error {
	existing, err := dst.GetBySourceKey(ctx, p.Key())
	if err != nil {
		return err
	}

	rec := p
	rec.ID = ""
	rec.CityID = cityID
	rec.CategoryID = categoryID

	if existing == nil {
		if err := dst.Insert(ctx, &rec); err != nil {
			return err
		}
		result.Inserted++
		return nil
	}
	if err := dst.Update(ctx, &rec); err != nil {
		return err
	}
	result.Updated++
	return nil
}
