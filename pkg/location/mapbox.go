package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"attendance/pkg/geo"
)

const defaultMapboxURL = "https://api.mapbox.com"

// MapboxConfig configures a MapboxClient. AccessToken is mandatory.
type MapboxConfig struct {
	BaseURL     string
	AccessToken string
	Limit       int
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// MapboxClient queries the Mapbox Geocoding v5 mapbox.places endpoint.
type MapboxClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limit      int
	logger     *slog.Logger
}

func NewMapboxClient(cfg MapboxConfig) *MapboxClient {
	c := &MapboxClient{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.AccessToken,
		limit:      cfg.Limit,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.baseURL == "" {
		c.baseURL = defaultMapboxURL
	}
	if c.limit <= 0 {
		c.limit = defaultLimit
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

func (c *MapboxClient) Name() string { return "mapbox" }

type mapboxFeature struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	PlaceName string      `json:"place_name"`
	PlaceType []string    `json:"place_type"`
	Relevance flexFloat   `json:"relevance"`
	Center    []float64   `json:"center"` // [lon, lat]
	BBox      []float64   `json:"bbox"`   // [lonMin, latMin, lonMax, latMax]
	Address   string      `json:"address"`
	Context   []mapboxCtx `json:"context"`
}

type mapboxCtx struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type mapboxResponse struct {
	Features []json.RawMessage `json:"features"`
}

func (c *MapboxClient) Forward(ctx context.Context, query string) ([]geo.Candidate, error) {
	if blank(query) {
		return nil, nil
	}
	if c.token == "" {
		return nil, unavailable(c.Name(), errors.New("access token not configured"))
	}

	params := url.Values{}
	params.Set("access_token", c.token)
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("autocomplete", "false")
	reqURL := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s",
		c.baseURL, url.PathEscape(query), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("mapbox_geocode_error", "provider", c.Name(), "status", resp.StatusCode)
		return nil, unavailable(c.Name(), fmt.Errorf("unexpected status: %s", resp.Status))
	}

	var body mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, unavailable(c.Name(), err)
	}

	candidates := make([]geo.Candidate, 0, len(body.Features))
	for i, raw := range body.Features {
		cand, err := c.parse(raw)
		if err != nil {
			c.logger.Debug("skipping malformed mapbox feature", "index", i, "error", err)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func (c *MapboxClient) parse(raw json.RawMessage) (geo.Candidate, error) {
	var f mapboxFeature
	if err := json.Unmarshal(raw, &f); err != nil {
		return geo.Candidate{}, err
	}
	if len(f.Center) != 2 {
		return geo.Candidate{}, fmt.Errorf("center has %d values", len(f.Center))
	}
	coords, err := geo.NewCoordinates(f.Center[1], f.Center[0])
	if err != nil {
		return geo.Candidate{}, err
	}

	cand := geo.Candidate{
		Coordinates: coords,
		DisplayName: f.PlaceName,
		Granularity: geo.ClassifyMapbox(f.PlaceType),
		Importance:  float64(f.Relevance),
		Address:     mapboxAddress(f),
		Provider:    c.Name(),
		Raw:         raw,
	}
	if len(f.BBox) == 4 {
		lonMin, latMin, lonMax, latMax := f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3]
		r := geo.BoxRadiusMeters(latMin, lonMin, latMax, lonMax)
		cand.EstimatedRadiusMeters = &r
	}
	return cand, nil
}

// mapboxAddress folds the feature and its context chain into an Address.
// Context ids are "<type>.<id>", e.g. "place.123".
func mapboxAddress(f mapboxFeature) geo.Address {
	var a geo.Address
	assign := func(kind, text string) {
		switch kind {
		case "address", "street":
			if a.Road == "" {
				a.Road = strings.TrimSpace(f.Address + " " + text)
			}
		case "neighborhood", "locality":
			if a.Suburb == "" {
				a.Suburb = text
			}
		case "place":
			if a.City == "" {
				a.City = text
			}
		case "region":
			if a.State == "" {
				a.State = text
			}
		case "postcode":
			if a.Postcode == "" {
				a.Postcode = text
			}
		case "country":
			if a.Country == "" {
				a.Country = text
			}
		}
	}
	if len(f.PlaceType) > 0 {
		assign(f.PlaceType[0], f.Text)
	}
	for _, ctx := range f.Context {
		kind, _, _ := strings.Cut(ctx.ID, ".")
		assign(kind, ctx.Text)
	}
	return a
}
