package publish

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderset/places-cli/internal/dedup"
	"github.com/wanderset/places-cli/internal/model"
	"github.com/wanderset/places-cli/internal/place"
	"github.com/wanderset/places-cli/internal/staging"
)

func openStage(t *testing.T) *staging.Store {
	t.Helper()
	s, err := staging.Open(filepath.Join(t.TempDir(), "staging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func classified(id string, tier dedup.Tier) dedup.Classified {
	return dedup.Classified{
		Candidate: model.Candidate{
			Source:   model.SourceGoogle,
			SourceID: id,
			Name:     "Place " + id,
			Lat:      40.42,
			Lon:      -3.70,
		},
		Match: dedup.MatchResult{Tier: tier, IsDuplicate: tier == dedup.TierStrong},
	}
}

// stageBatch creates a batch with one strong duplicate, one accepted and one
// rejected borderline, and one new place, decisions already recorded.
func stageBatch(t *testing.T, stage *staging.Store, mode string) *staging.Batch {
	t.Helper()
	ctx := context.Background()

	b, err := stage.CreateBatch(ctx, "madrid", "cafe", "coffee", mode, dedup.Partition{
		Duplicates: []dedup.Classified{classified("dup", dedup.TierStrong)},
		Borderline: []dedup.Classified{
			classified("maybe-yes", dedup.TierBorderline),
			classified("maybe-no", dedup.TierBorderline),
		},
		New: []dedup.Classified{classified("fresh", dedup.TierNone)},
	})
	require.NoError(t, err)

	pending, err := stage.PendingBorderline(ctx, b.ID)
	require.NoError(t, err)
	for _, it := range pending {
		decision := staging.DecisionAccepted
		if it.Candidate.SourceID == "maybe-no" {
			decision = staging.DecisionRejected
		}
		require.NoError(t, stage.RecordDecision(ctx, it.ID, decision))
	}
	return b
}

func key(id string) model.Key {
	return model.Key{Source: model.SourceGoogle, SourceID: id}
}

func TestPublish_InsertsPublishableOnly(t *testing.T) {
	stage := openStage(t)
	places := newMockPlaceStore()
	b := stageBatch(t, stage, staging.ModeNewOnly)

	result, err := NewPublisher(stage, places).Publish(context.Background(), b.ID)
	require.NoError(t, err)

	// "fresh" and the rejected borderline reach the store; the strong
	// duplicate and the accepted borderline do not.
	assert.Equal(t, 2, result.Inserted)
	assert.Zero(t, result.Updated)
	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.Errors)

	var ids []string
	for _, p := range places.inserted {
		ids = append(ids, p.SourceID)
		assert.Equal(t, "city-madrid", p.CityID)
		assert.Equal(t, "cat-cafe", p.CategoryID)
		assert.True(t, p.Active)
	}
	assert.ElementsMatch(t, []string{"fresh", "maybe-no"}, ids)

	got, err := stage.GetBatch(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, got.Published())
}

func TestPublish_RefusesPendingReview(t *testing.T) {
	stage := openStage(t)
	places := newMockPlaceStore()

	b, err := stage.CreateBatch(context.Background(), "madrid", "cafe", "coffee", staging.ModeNewOnly,
		dedup.Partition{Borderline: []dedup.Classified{classified("undecided", dedup.TierBorderline)}})
	require.NoError(t, err)

	_, err = NewPublisher(stage, places).Publish(context.Background(), b.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pending review")
	assert.Empty(t, places.inserted)

	got, err := stage.GetBatch(context.Background(), b.ID)
	require.NoError(t, err)
	assert.False(t, got.Published())
}

func TestPublish_UpdatesExistingByKey(t *testing.T) {
	stage := openStage(t)
	places := newMockPlaceStore()
	places.existing[key("fresh")] = &place.Place{ID: "p-1", Source: "google", SourceID: "fresh"}
	b := stageBatch(t, stage, staging.ModeNewOnly)

	result, err := NewPublisher(stage, places).Publish(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, places.updated, 1)
	assert.Equal(t, "fresh", places.updated[0].SourceID)
}

func TestPublish_RecordFailureIsCountedNotFatal(t *testing.T) {
	stage := openStage(t)
	places := newMockPlaceStore()
	places.failKeys[key("fresh")] = true
	b := stageBatch(t, stage, staging.ModeNewOnly)

	result, err := NewPublisher(stage, places).Publish(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.Inserted) // maybe-no still lands

	got, err := stage.GetBatch(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, got.Published())
}

func TestPublish_RefreshMarksUnseenInactive(t *testing.T) {
	stage := openStage(t)
	places := newMockPlaceStore()
	// "dup" was fetched this run (even though skipped); "vanished" was not.
	places.activeKeys[key("dup")] = "p-dup"
	places.activeKeys[key("vanished")] = "p-vanished"
	b := stageBatch(t, stage, staging.ModeRefresh)

	result, err := NewPublisher(stage, places).Publish(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.MarkedInactive)
	assert.Equal(t, []string{"p-vanished"}, places.inactive)
}

func TestPublish_NewOnlyNeverMarksInactive(t *testing.T) {
	stage := openStage(t)
	places := newMockPlaceStore()
	places.activeKeys[key("vanished")] = "p-vanished"
	b := stageBatch(t, stage, staging.ModeNewOnly)

	result, err := NewPublisher(stage, places).Publish(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Zero(t, result.MarkedInactive)
	assert.Empty(t, places.inactive)
}

func TestPublish_MarkInactiveFailureCounted(t *testing.T) {
	stage := openStage(t)
	places := newMockPlaceStore()
	places.activeKeys[key("vanished")] = "p-vanished"
	places.markFailIDs["p-vanished"] = true
	b := stageBatch(t, stage, staging.ModeRefresh)

	result, err := NewPublisher(stage, places).Publish(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Zero(t, result.MarkedInactive)
}

func TestPublish_Rerun_IsIdempotent(t *testing.T) {
	stage := openStage(t)
	places := newMockPlaceStore()
	b := stageBatch(t, stage, staging.ModeNewOnly)
	pub := NewPublisher(stage, places)

	first, err := pub.Publish(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	// Second run finds the records in place and updates instead.
	for _, p := range places.inserted {
		cp := p
		places.existing[p.Key()] = &cp
	}
	second, err := pub.Publish(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 2, second.Updated)
}

func TestPromote_DeclinedConfirmAborts(t *testing.T) {
	src := newMockPlaceStore()
	src.activeList = []place.Place{{Source: "google", SourceID: "a", CitySlug: "madrid", CategorySlug: "cafe"}}
	dst := newMockPlaceStore()

	_, err := Promote(context.Background(), src, dst, "madrid", func(string) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, ErrAborted)
	assert.Empty(t, dst.inserted)
	assert.Zero(t, dst.ensureCalls)
}

func TestPromote_CopiesActivePlaces(t *testing.T) {
	src := newMockPlaceStore()
	src.activeList = []place.Place{
		{Source: "google", SourceID: "a", Name: "A", CitySlug: "madrid", CategorySlug: "cafe"},
		{Source: "google", SourceID: "b", Name: "B", CitySlug: "madrid", CategorySlug: "cafe"},
	}
	dst := newMockPlaceStore()
	dst.existing[key("b")] = &place.Place{ID: "prod-b", Source: "google", SourceID: "b"}

	var prompt string
	result, err := Promote(context.Background(), src, dst, "madrid", func(p string) (bool, error) {
		prompt = p
		return true, nil
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "2 active places")
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, dst.inserted, 1)
	// Destination lookup ids are resolved on the destination store.
	assert.Equal(t, "city-madrid", dst.inserted[0].CityID)
	assert.Equal(t, "cat-cafe", dst.inserted[0].CategoryID)
	// Slug pair resolved once despite two records.
	assert.Equal(t, 2, dst.ensureCalls)
}
