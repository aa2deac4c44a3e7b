// Package google is a minimal client for the Google Places API (New) text
// search endpoint, restricted to the fields the ingestion pipeline consumes.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// maxPageSize is the largest page the API accepts for a text search.
const maxPageSize = 20

// fieldMask lists the place fields requested on every search. Keeping this
// tight keeps per-request billing at the lowest SKU that includes websites.
const fieldMask = "places.id,places.displayName,places.formattedAddress,places.location," +
	"places.rating,places.userRatingCount,places.websiteUri," +
	"places.regularOpeningHours.weekdayDescriptions,places.primaryType,nextPageToken"

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Rectangle is a lat/lng-aligned viewport with low = southwest corner.
type Rectangle struct {
	Low  LatLng `json:"low"`
	High LatLng `json:"high"`
}

// LocationRestriction limits search results to a region.
type LocationRestriction struct {
	Rectangle Rectangle `json:"rectangle"`
}

// TextSearchRequest is the request body for Places Text Search.
type TextSearchRequest struct {
	TextQuery           string               `json:"textQuery"`
	PageSize            int                  `json:"pageSize,omitempty"`
	PageToken           string               `json:"pageToken,omitempty"`
	MinRating           float64              `json:"minRating,omitempty"`
	LocationRestriction *LocationRestriction `json:"locationRestriction,omitempty"`
}

// TextSearchResponse is the response from Places Text Search. NextPageToken
// is empty on the final page.
type TextSearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

// Place represents a place returned by the API.
type Place struct {
	ID                  string        `json:"id"`
	DisplayName         DisplayName   `json:"displayName"`
	FormattedAddress    string        `json:"formattedAddress"`
	Location            LatLng        `json:"location"`
	Rating              float64       `json:"rating"`
	UserRatingCount     int           `json:"userRatingCount"`
	WebsiteURI          string        `json:"websiteUri"`
	RegularOpeningHours *OpeningHours `json:"regularOpeningHours,omitempty"`
	PrimaryType         string        `json:"primaryType"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// OpeningHours holds the human-readable weekly schedule.
type OpeningHours struct {
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

// APIError is returned for non-200 responses so callers can decide whether
// the status is worth retrying.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the response status for retry classification.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error) {
	if req.PageSize <= 0 || req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result TextSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}
