package publish

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/wanderset/places-cli/internal/model"
	"github.com/wanderset/places-cli/internal/place"
)

// mockPlaceStore is an in-memory place.Store for publisher tests.
type mockPlaceStore struct {
	existing   map[model.Key]*place.Place
	activeKeys map[model.Key]string
	activeList []place.Place

	inserted []place.Place
	updated  []place.Place
	inactive []string

	failKeys      map[model.Key]bool
	markFailIDs   map[string]bool
	ensureCityErr error
	ensureCalls   int
}

func newMockPlaceStore() *mockPlaceStore {
	return &mockPlaceStore{
		existing:    map[model.Key]*place.Place{},
		activeKeys:  map[model.Key]string{},
		failKeys:    map[model.Key]bool{},
		markFailIDs: map[string]bool{},
	}
}

func (m *mockPlaceStore) Migrate(context.Context) error { return nil }
func (m *mockPlaceStore) Ping(context.Context) error    { return nil }
func (m *mockPlaceStore) Close() error                  { return nil }

func (m *mockPlaceStore) EnsureCity(_ context.Context, slug string) (string, error) {
	m.ensureCalls++
	if m.ensureCityErr != nil {
		return "", m.ensureCityErr
	}
	return "city-" + slug, nil
}

func (m *mockPlaceStore) EnsureCategory(_ context.Context, slug string) (string, error) {
	m.ensureCalls++
	return "cat-" + slug, nil
}

func (m *mockPlaceStore) GetBySourceKey(_ context.Context, key model.Key) (*place.Place, error) {
	if m.failKeys[key] {
		return nil, eris.Errorf("boom: %s", key.SourceID)
	}
	return m.existing[key], nil
}

func (m *mockPlaceStore) Insert(_ context.Context, p *place.Place) error {
	if m.failKeys[p.Key()] {
		return eris.Errorf("boom: %s", p.SourceID)
	}
	m.inserted = append(m.inserted, *p)
	return nil
}

func (m *mockPlaceStore) Update(_ context.Context, p *place.Place) error {
	if m.failKeys[p.Key()] {
		return eris.Errorf("boom: %s", p.SourceID)
	}
	m.updated = append(m.updated, *p)
	return nil
}

func (m *mockPlaceStore) ListActive(context.Context, string) ([]place.Place, error) {
	return m.activeList, nil
}

func (m *mockPlaceStore) ListActiveKeys(context.Context, string, string) (map[model.Key]string, error) {
	return m.activeKeys, nil
}

func (m *mockPlaceStore) MarkInactive(_ context.Context, placeID string) error {
	if m.markFailIDs[placeID] {
		return eris.Errorf("boom: %s", placeID)
	}
	m.inactive = append(m.inactive, placeID)
	return nil
}

func (m *mockPlaceStore) SoftDelete(context.Context, string, string) error { return nil }
func (m *mockPlaceStore) HardDelete(context.Context, string) error { return nil }
