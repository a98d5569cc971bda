package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrGeocodeUnavailable marks a postcode lookup that failed for any reason:
// network error, non-success status, or a malformed body. Callers degrade to
// prefix matching; this is never a hard failure of the overall query.
var ErrGeocodeUnavailable = errors.New("geocoder unavailable")

// Coordinates is a resolved postcode location.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geocoder resolves a free-form UK postcode to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, postcode string) (Coordinates, error)
}

// PostcodeClient is a Geocoder backed by a postcodes.io style HTTP API.
type PostcodeClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewPostcodeClient creates a geocoding client for the given base URL.
func NewPostcodeClient(baseURL string, logger zerolog.Logger) *PostcodeClient {
	return &PostcodeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "geocoder").Logger(),
	}
}

type postcodeResponse struct {
	Status int `json:"status"`
	Result struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"result"`
}

// Geocode resolves a postcode to coordinates.
func (c *PostcodeClient) Geocode(ctx context.Context, postcode string) (Coordinates, error) {
	apiURL := fmt.Sprintf("%s/postcodes/%s", c.baseURL, url.PathEscape(strings.TrimSpace(postcode)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w: creating request: %v", ErrGeocodeUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w: %v", ErrGeocodeUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("%w: status %d for %q", ErrGeocodeUnavailable, resp.StatusCode, postcode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w: reading body: %v", ErrGeocodeUnavailable, err)
	}

	var parsed postcodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Coordinates{}, fmt.Errorf("%w: parsing body: %v", ErrGeocodeUnavailable, err)
	}
	if parsed.Result.Latitude == nil || parsed.Result.Longitude == nil {
		return Coordinates{}, fmt.Errorf("%w: no coordinates for %q", ErrGeocodeUnavailable, postcode)
	}

	coords := Coordinates{
		Latitude:  *parsed.Result.Latitude,
		Longitude: *parsed.Result.Longitude,
	}
	c.logger.Debug().
		Str("postcode", postcode).
		Float64("lat", coords.Latitude).
		Float64("lng", coords.Longitude).
		Msg("resolved postcode")

	return coords, nil
}
