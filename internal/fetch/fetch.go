// Package fetch implements the exhaustive grid search against the place
// search provider: an N×N partition of a bounding box, paginated per cell,
// deduplicated by provider id across cells.
package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wanderset/places-cli/internal/config"
	"github.com/wanderset/places-cli/internal/model"
	"github.com/wanderset/places-cli/internal/resilience"
	"github.com/wanderset/places-cli/pkg/google"
)

// Result holds the outcome of a grid fetch. LimitReached or FailedCells > 0
// means the fetch may be incomplete; the operator is warned that more places
// may exist.
type Result struct {
	Candidates   []model.Candidate `json:"candidates"`
	LimitReached bool              `json:"limit_reached"`
	FailedCells  int               `json:"failed_cells"`
	APICalls     int               `json:"api_calls"`
}

// Fetcher performs grid searches against the Places API.
type Fetcher struct {
	client  google.Client
	limiter *rate.Limiter
	google  config.GoogleConfig
	cfg     config.FetchConfig
	retry   resilience.RetryConfig
	now     func() time.Time
}

// NewFetcher creates a Fetcher with the given dependencies.
func NewFetcher(client google.Client, gcfg config.GoogleConfig, fcfg config.FetchConfig) *Fetcher {
	rateLimit := gcfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 5
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("google", "text_search")

	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		google:  gcfg,
		cfg:     fcfg,
		retry:   retry,
		now:     time.Now,
	}
}

// Fetch searches every cell of the grid partition of bbox and returns the
// union of results, deduplicated by provider id. Individual cell failures
// are logged and skipped; the fetch continues with the remaining cells.
// A malformed bounding box is fatal.
func (f *Fetcher) Fetch(ctx context.Context, bbox BBox, query, city, category string) (*Result, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("phase", "fetch"),
		zap.String("city", city),
		zap.String("query", query),
	)

	cells := bbox.SplitGrid(f.cfg.GridDim)
	log.Info("starting grid fetch",
		zap.Int("cells", len(cells)),
		zap.Int("grid_dim", f.cfg.GridDim),
		zap.Int("result_cap", f.cfg.ResultCap),
	)

	result := &Result{}
	seen := make(map[string]bool)

	for i, cell := range cells {
		if ctx.Err() != nil {
			break
		}
		if result.LimitReached {
			break
		}

		calls, err := f.searchCell(ctx, cell, query, city, category, seen, result)
		result.APICalls += calls
		if err != nil {
			log.Warn("cell search failed, skipping cell",
				zap.Int("cell", i),
				zap.Error(err),
			)
			result.FailedCells++
			continue
		}

		if (i+1)%10 == 0 {
			log.Info("progress",
				zap.Int("cells_searched", i+1),
				zap.Int("total_cells", len(cells)),
				zap.Int("candidates", len(result.Candidates)),
			)
		}
	}

	if result.LimitReached || result.FailedCells > 0 {
		log.Warn("fetch may be incomplete, more places may exist",
			zap.Bool("limit_reached", result.LimitReached),
			zap.Int("failed_cells", result.FailedCells),
		)
	}

	log.Info("grid fetch complete",
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("api_calls", result.APICalls),
		zap.Int("failed_cells", result.FailedCells),
	)

	return result, nil
}

// searchCell paginates through one grid cell, appending unseen places to
// the running result. Returns the number of API calls made.
func (f *Fetcher) searchCell(ctx context.Context, cell BBox, query, city, category string, seen map[string]bool, result *Result) (int, error) {
	maxPages := f.google.MaxPagesPerCell
	if maxPages <= 0 {
		maxPages = 3
	}

	var (
		apiCalls  int
		pageToken string
	)

	for page := 0; page < maxPages; page++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return apiCalls, err
		}

		req := google.TextSearchRequest{
			TextQuery: query,
			PageSize:  f.google.PageSize,
			PageToken: pageToken,
			MinRating: f.cfg.MinRating,
			LocationRestriction: &google.LocationRestriction{
				Rectangle: google.Rectangle{
					Low:  google.LatLng{Latitude: cell.MinLat, Longitude: cell.MinLon},
					High: google.LatLng{Latitude: cell.MaxLat, Longitude: cell.MaxLon},
				},
			},
		}

		resp, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*google.TextSearchResponse, error) {
			return f.client.TextSearch(ctx, req)
		})
		apiCalls++
		if err != nil {
			return apiCalls, err
		}

		fetchedAt := f.now().UTC()
		for _, place := range resp.Places {
			if place.ID == "" || seen[place.ID] {
				continue
			}
			seen[place.ID] = true

			result.Candidates = append(result.Candidates, toCandidate(place, city, category, fetchedAt))

			if f.cfg.ResultCap > 0 && len(result.Candidates) >= f.cfg.ResultCap {
				result.LimitReached = true
				return apiCalls, nil
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return apiCalls, nil
}

// toCandidate converts a provider place into the pipeline's working shape.
// Zero rating/review counts from the API mean "not rated" and are dropped.
func toCandidate(place google.Place, city, category string, fetchedAt time.Time) model.Candidate {
	c := model.Candidate{
		Source:      model.SourceGoogle,
		SourceID:    place.ID,
		Name:        place.DisplayName.Text,
		Address:     place.FormattedAddress,
		Lat:         place.Location.Latitude,
		Lon:         place.Location.Longitude,
		City:        city,
		Category:    category,
		Website:     place.WebsiteURI,
		PrimaryType: place.PrimaryType,
		FetchedAt:   fetchedAt,
	}
	if place.Rating > 0 {
		rating := place.Rating
		c.Rating = &rating
	}
	if place.UserRatingCount > 0 {
		count := place.UserRatingCount
		c.ReviewCount = &count
	}
	if place.RegularOpeningHours != nil {
		c.OpeningHours = place.RegularOpeningHours.WeekdayDescriptions
	}
	return c
}
