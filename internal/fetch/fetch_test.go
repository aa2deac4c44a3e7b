package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderset/places-cli/internal/config"
	"github.com/wanderset/places-cli/pkg/google"
)

func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

// fakeClient implements google.Client with a scripted response function.
type fakeClient struct {
	calls   []google.TextSearchRequest
	respond func(req google.TextSearchRequest) (*google.TextSearchResponse, error)
}

func (f *fakeClient) TextSearch(_ context.Context, req google.TextSearchRequest) (*google.TextSearchResponse, error) {
	f.calls = append(f.calls, req)
	return f.respond(req)
}

func testConfigs() (config.GoogleConfig, config.FetchConfig) {
	gcfg := config.GoogleConfig{
		Key:             "test-key",
		RateLimit:       10000, // effectively no pacing in tests
		PageSize:        20,
		MaxPagesPerCell: 3,
	}
	fcfg := config.FetchConfig{
		GridDim:   2,
		ResultCap: 0,
	}
	return gcfg, fcfg
}

func place(id, name string, lat, lon float64) google.Place {
	return google.Place{
		ID:          id,
		DisplayName: google.DisplayName{Text: name},
		Location:    google.LatLng{Latitude: lat, Longitude: lon},
	}
}

func testBBox() BBox {
	return BBox{MinLat: 40.40, MinLon: -3.72, MaxLat: 40.44, MaxLon: -3.68}
}

func TestFetch_CollectsAllCells(t *testing.T) {
	var cell int
	client := &fakeClient{respond: func(_ google.TextSearchRequest) (*google.TextSearchResponse, error) {
		cell++
		return &google.TextSearchResponse{
			Places: []google.Place{place("p"+string(rune('0'+cell)), "Place", 40.41, -3.70)},
		}, nil
	}}

	gcfg, fcfg := testConfigs()
	f := NewFetcher(client, gcfg, fcfg)

	result, err := f.Fetch(context.Background(), testBBox(), "coffee", "madrid", "cafe")
	require.NoError(t, err)

	// 2x2 grid, one place per cell.
	assert.Len(t, result.Candidates, 4)
	assert.False(t, result.LimitReached)
	assert.Zero(t, result.FailedCells)
	assert.Equal(t, 4, result.APICalls)
}

func TestFetch_MalformedBBoxFatal(t *testing.T) {
	gcfg, fcfg := testConfigs()
	f := NewFetcher(&fakeClient{}, gcfg, fcfg)

	_, err := f.Fetch(context.Background(), BBox{MinLat: 5, MaxLat: 1, MinLon: 0, MaxLon: 1}, "coffee", "madrid", "cafe")
	assert.Error(t, err)
}

func TestFetch_DeduplicatesAcrossCells(t *testing.T) {
	// Every cell returns the same place id; it must be kept once.
	client := &fakeClient{respond: func(_ google.TextSearchRequest) (*google.TextSearchResponse, error) {
		return &google.TextSearchResponse{
			Places: []google.Place{place("shared", "Border Cafe", 40.42, -3.70)},
		}, nil
	}}

	gcfg, fcfg := testConfigs()
	f := NewFetcher(client, gcfg, fcfg)

	result, err := f.Fetch(context.Background(), testBBox(), "coffee", "madrid", "cafe")
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "shared", result.Candidates[0].SourceID)
	assert.Equal(t, "madrid", result.Candidates[0].City)
}

func TestFetch_CellFailureNonFatal(t *testing.T) {
	var call int
	client := &fakeClient{respond: func(_ google.TextSearchRequest) (*google.TextSearchResponse, error) {
		call++
		if call == 2 {
			// Non-transient provider error: the cell is skipped, not retried.
			return nil, &google.APIError{StatusCode: 400, Body: "bad request"}
		}
		return &google.TextSearchResponse{
			Places: []google.Place{place("p"+string(rune('0'+call)), "Place", 40.41, -3.70)},
		}, nil
	}}

	gcfg, fcfg := testConfigs()
	f := NewFetcher(client, gcfg, fcfg)

	result, err := f.Fetch(context.Background(), testBBox(), "coffee", "madrid", "cafe")
	require.NoError(t, err)

	assert.Len(t, result.Candidates, 3)
	assert.Equal(t, 1, result.FailedCells)
	assert.False(t, result.LimitReached)
}

func TestFetch_RetriesTransientThenSucceeds(t *testing.T) {
	var call int
	client := &fakeClient{respond: func(_ google.TextSearchRequest) (*google.TextSearchResponse, error) {
		call++
		if call == 1 {
			return nil, &google.APIError{StatusCode: 503, Body: "unavailable"}
		}
		return &google.TextSearchResponse{
			Places: []google.Place{place("p"+string(rune('0'+call)), "Place", 40.41, -3.70)},
		}, nil
	}}

	gcfg, fcfg := testConfigs()
	f := NewFetcher(client, gcfg, fcfg)
	f.retry.InitialBackoff = 1 // keep the test fast

	result, err := f.Fetch(context.Background(), testBBox(), "coffee", "madrid", "cafe")
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 4)
	assert.Zero(t, result.FailedCells)
}

func TestFetch_Pagination(t *testing.T) {
	client := &fakeClient{respond: func(req google.TextSearchRequest) (*google.TextSearchResponse, error) {
		if req.PageToken == "" {
			return &google.TextSearchResponse{
				Places:        []google.Place{place("a", "First", 40.41, -3.70)},
				NextPageToken: "page-2",
			}, nil
		}
		return &google.TextSearchResponse{
			Places: []google.Place{place("b", "Second", 40.42, -3.70)},
		}, nil
	}}

	gcfg, fcfg := testConfigs()
	fcfg.GridDim = 1
	f := NewFetcher(client, gcfg, fcfg)

	result, err := f.Fetch(context.Background(), testBBox(), "coffee", "madrid", "cafe")
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
	assert.Equal(t, 2, result.APICalls)
	require.Len(t, client.calls, 2)
	assert.Equal(t, "page-2", client.calls[1].PageToken)
}

func TestFetch_PageCapStopsPagination(t *testing.T) {
	// Provider always reports another page; the per-cell cap must stop us.
	client := &fakeClient{respond: func(req google.TextSearchRequest) (*google.TextSearchResponse, error) {
		return &google.TextSearchResponse{
			Places:        []google.Place{place("p-"+req.PageToken, "Place", 40.41, -3.70)},
			NextPageToken: req.PageToken + "x",
		}, nil
	}}

	gcfg, fcfg := testConfigs()
	gcfg.MaxPagesPerCell = 2
	fcfg.GridDim = 1
	f := NewFetcher(client, gcfg, fcfg)

	result, err := f.Fetch(context.Background(), testBBox(), "coffee", "madrid", "cafe")
	require.NoError(t, err)
	assert.Equal(t, 2, result.APICalls)
	assert.Len(t, result.Candidates, 2)
}

func TestFetch_ResultCap(t *testing.T) {
	var n int
	client := &fakeClient{respond: func(_ google.TextSearchRequest) (*google.TextSearchResponse, error) {
		n++
		return &google.TextSearchResponse{
			Places: []google.Place{
				place("p"+string(rune('a'+n))+"1", "One", 40.41, -3.70),
				place("p"+string(rune('a'+n))+"2", "Two", 40.42, -3.70),
			},
		}, nil
	}}

	gcfg, fcfg := testConfigs()
	fcfg.ResultCap = 3
	f := NewFetcher(client, gcfg, fcfg)

	result, err := f.Fetch(context.Background(), testBBox(), "coffee", "madrid", "cafe")
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 3)
	assert.True(t, result.LimitReached)
}

func TestFetch_SendsMinRatingAndViewport(t *testing.T) {
	client := &fakeClient{respond: func(_ google.TextSearchRequest) (*google.TextSearchResponse, error) {
		return &google.TextSearchResponse{}, nil
	}}

	gcfg, fcfg := testConfigs()
	fcfg.GridDim = 1
	fcfg.MinRating = 4.0
	f := NewFetcher(client, gcfg, fcfg)

	_, err := f.Fetch(context.Background(), testBBox(), "coffee", "madrid", "cafe")
	require.NoError(t, err)

	require.Len(t, client.calls, 1)
	req := client.calls[0]
	assert.InDelta(t, 4.0, req.MinRating, 1e-9)
	require.NotNil(t, req.LocationRestriction)
	assert.InDelta(t, 40.40, req.LocationRestriction.Rectangle.Low.Latitude, 1e-9)
	assert.InDelta(t, -3.68, req.LocationRestriction.Rectangle.High.Longitude, 1e-9)
}

func TestToCandidate_OptionalFields(t *testing.T) {
	p := google.Place{
		ID:               "x",
		DisplayName:      google.DisplayName{Text: "Cafe"},
		FormattedAddress: "Calle Mayor 1",
		Location:         google.LatLng{Latitude: 40.4, Longitude: -3.7},
		Rating:           4.5,
		UserRatingCount:  10,
		WebsiteURI:       "https://example.com",
		PrimaryType:      "coffee_shop",
		RegularOpeningHours: &google.OpeningHours{
			WeekdayDescriptions: []string{"Monday: 8:00 AM – 8:00 PM"},
		},
	}
	c := toCandidate(p, "madrid", "cafe", testTime())
	require.NotNil(t, c.Rating)
	assert.InDelta(t, 4.5, *c.Rating, 1e-9)
	require.NotNil(t, c.ReviewCount)
	assert.Equal(t, 10, *c.ReviewCount)
	assert.Len(t, c.OpeningHours, 1)

	// Zero values mean "not rated" and stay nil.
	bare := toCandidate(google.Place{ID: "y"}, "madrid", "cafe", testTime())
	assert.Nil(t, bare.Rating)
	assert.Nil(t, bare.ReviewCount)
	assert.Nil(t, bare.OpeningHours)
}
