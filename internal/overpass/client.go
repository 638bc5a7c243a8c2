// internal/overpass/client.go
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OCAP2/scene-engine/pkg/core"
)

// DefaultURL is the public Overpass interpreter endpoint.
const DefaultURL = "https://overpass-api.de/api/interpreter"

// Point is a geographic vertex of a way.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Way is an OSM way with inline geometry.
type Way struct {
	ID     int64             `json:"id"`
	Points []Point           `json:"geometry"`
	Tags   map[string]string `json:"tags"`
}

// Fetcher returns the ways around a point.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lon, radiusMeters float64) ([]Way, error)
}

type element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Geometry []Point           `json:"geometry"`
	Tags     map[string]string `json:"tags"`
}

type response struct {
	Elements []element `json:"elements"`
}

// Client queries an Overpass API server for buildings and highways.
type Client struct {
	url          string
	queryTimeout int
	httpClient   *http.Client
}

// New creates a new Overpass client. timeout bounds both the HTTP request and the server-side query.
func New(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:          strings.TrimRight(endpoint, "/"),
		queryTimeout: max(1, int(timeout.Seconds())-5),
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Query builds the Overpass QL for buildings and highways within radius of the point.
func Query(lat, lon, radiusMeters float64, timeoutSeconds int) string {
	return fmt.Sprintf(`[out:json][timeout:%d];
(
  way["building"](around:%g,%g,%g);
  way["highway"](around:%g,%g,%g);
);
(._;>;);
out geom;`, timeoutSeconds, radiusMeters, lat, lon, radiusMeters, lat, lon)
}

// Fetch posts the query and returns the ways of the response. Every failure wraps core.ErrExternalData.
func (c *Client) Fetch(ctx context.Context, lat, lon, radiusMeters float64) ([]Way, error) {
	form := url.Values{}
	form.Set("data", Query(lat, lon, radiusMeters, c.queryTimeout))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", core.ErrExternalData, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: overpass request failed: %w", core.ErrExternalData, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: overpass returned status %d", core.ErrExternalData, resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding overpass response: %w", core.ErrExternalData, err)
	}

	ways := make([]Way, 0, len(body.Elements))
	for _, e := range body.Elements {
		if e.Type != "way" {
			continue
		}
		ways = append(ways, Way{ID: e.ID, Points: e.Geometry, Tags: e.Tags})
	}
	return ways, nil
}
