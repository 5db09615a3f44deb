package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"attendance/pkg/geo"
)

const (
	defaultNominatimURL       = "https://nominatim.openstreetmap.org"
	defaultNominatimUserAgent = "AttendanceApp/1.0"
	defaultLimit              = 5
)

// NominatimConfig configures a NominatimClient. Nominatim's usage policy
// requires an identifying User-Agent.
type NominatimConfig struct {
	BaseURL    string
	UserAgent  string
	Language   string
	Limit      int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NominatimClient queries the OpenStreetMap Nominatim search endpoint.
type NominatimClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	language   string
	limit      int
	logger     *slog.Logger
}

func NewNominatimClient(cfg NominatimConfig) *NominatimClient {
	c := &NominatimClient{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		language:   cfg.Language,
		limit:      cfg.Limit,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.baseURL == "" {
		c.baseURL = defaultNominatimURL
	}
	if c.userAgent == "" {
		c.userAgent = defaultNominatimUserAgent
	}
	if c.limit <= 0 {
		c.limit = defaultLimit
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

func (c *NominatimClient) Name() string { return "nominatim" }

// nominatimPlace is one element of the /search response.
type nominatimPlace struct {
	PlaceID     int64     `json:"place_id"`
	OsmType     string    `json:"osm_type"`
	OsmID       int64     `json:"osm_id"`
	Lat         string    `json:"lat"`
	Lon         string    `json:"lon"`
	Class       string    `json:"class"`
	Type        string    `json:"type"`
	Importance  flexFloat `json:"importance"`
	DisplayName string    `json:"display_name"`
	Address     struct {
		Road         string `json:"road"`
		Suburb       string `json:"suburb"`
		CityDistrict string `json:"city_district"`
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		County       string `json:"county"`
		State        string `json:"state"`
		Region       string `json:"region"`
		Postcode     string `json:"postcode"`
		Country      string `json:"country"`
	} `json:"address"`
	// lat_min, lat_max, lon_min, lon_max
	BoundingBox []string `json:"boundingbox"`
}

// Forward runs a free-text search. Blank queries return no candidates without
// touching the network.
func (c *NominatimClient) Forward(ctx context.Context, query string) ([]geo.Candidate, error) {
	if blank(query) {
		return nil, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(c.limit))
	if c.language != "" {
		params.Set("accept-language", c.language)
	}
	reqURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("geocode_forward_error", "provider", c.Name(), "status", resp.StatusCode)
		return nil, unavailable(c.Name(), fmt.Errorf("unexpected status: %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	items, err := splitResults(body)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}

	candidates := make([]geo.Candidate, 0, len(items))
	for i, raw := range items {
		cand, err := c.parse(raw)
		if err != nil {
			c.logger.Debug("skipping malformed nominatim result", "index", i, "error", err)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func (c *NominatimClient) parse(raw json.RawMessage) (geo.Candidate, error) {
	var place nominatimPlace
	if err := json.Unmarshal(raw, &place); err != nil {
		return geo.Candidate{}, err
	}
	lat, err := strconv.ParseFloat(place.Lat, 64)
	if err != nil {
		return geo.Candidate{}, fmt.Errorf("lat %q: %w", place.Lat, err)
	}
	lon, err := strconv.ParseFloat(place.Lon, 64)
	if err != nil {
		return geo.Candidate{}, fmt.Errorf("lon %q: %w", place.Lon, err)
	}
	coords, err := geo.NewCoordinates(lat, lon)
	if err != nil {
		return geo.Candidate{}, err
	}

	cand := geo.Candidate{
		Coordinates: coords,
		DisplayName: place.DisplayName,
		Granularity: geo.ClassifyNominatim(place.Type, place.Class),
		Importance:  float64(place.Importance),
		Address: geo.Address{
			Road:     place.Address.Road,
			Suburb:   firstNonEmpty(place.Address.Suburb, place.Address.CityDistrict),
			City:     firstNonEmpty(place.Address.City, place.Address.Town, place.Address.Village),
			State:    firstNonEmpty(place.Address.State, place.Address.Region, place.Address.County),
			Postcode: place.Address.Postcode,
			Country:  place.Address.Country,
		},
		Provider: c.Name(),
		Raw:      raw,
	}
	if r, ok := nominatimRadius(place.BoundingBox); ok {
		cand.EstimatedRadiusMeters = &r
	}
	return cand, nil
}

func nominatimRadius(box []string) (float64, bool) {
	if len(box) != 4 {
		return 0, false
	}
	var v [4]float64
	for i, s := range box {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		v[i] = f
	}
	latMin, latMax, lonMin, lonMax := v[0], v[1], v[2], v[3]
	return geo.BoxRadiusMeters(latMin, lonMin, latMax, lonMax), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
