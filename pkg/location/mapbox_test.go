package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"attendance/pkg/geo"
)

type rewriteRoundTripper struct{ base *url.URL }

func (r rewriteRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	c := req.Clone(req.Context())
	c.URL.Scheme = r.base.Scheme
	c.URL.Host = r.base.Host
	c.Host = r.base.Host
	return http.DefaultTransport.RoundTrip(c)
}

func newRewritingClient(serverURL string) *http.Client {
	u, _ := url.Parse(serverURL)
	return &http.Client{Transport: rewriteRoundTripper{base: u}}
}

const mapboxBody = `{
  "type": "FeatureCollection",
  "features": [
    {"id": "place.1", "text": "Bengaluru", "place_name": "Bengaluru, Karnataka, India",
     "place_type": ["place"], "relevance": 1, "center": [77.5946, 12.9716],
     "bbox": [77.4, 12.8, 77.8, 13.1],
     "context": [{"id": "region.9", "text": "Karnataka"}, {"id": "country.3", "text": "India"}]},
    {"id": "bad.1", "place_type": ["poi"], "center": [77.5]},
    {"id": "address.7", "text": "MG Road", "address": "12", "place_name": "12 MG Road, Bengaluru",
     "place_type": ["address"], "relevance": 0.9, "center": [77.6101, 12.9756],
     "context": [{"id": "place.1", "text": "Bengaluru"}, {"id": "postcode.5", "text": "560001"}]}
  ]
}`

func TestMapboxClient_Forward(t *testing.T) {
	var gotPath, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotToken = r.URL.Query().Get("access_token")
		_, _ = w.Write([]byte(mapboxBody))
	}))
	defer server.Close()

	client := NewMapboxClient(MapboxConfig{AccessToken: "pk.test", HTTPClient: newRewritingClient(server.URL)})
	got, err := client.Forward(context.Background(), "MG Road, Bengaluru")
	if err != nil {
		t.Fatalf("Forward error: %v", err)
	}
	if !strings.HasPrefix(gotPath, "/geocoding/v5/mapbox.places/") || !strings.HasSuffix(gotPath, ".json") {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotToken != "pk.test" {
		t.Errorf("access_token = %q", gotToken)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2", len(got))
	}

	city := got[0]
	if city.Coordinates.Latitude != 12.9716 || city.Coordinates.Longitude != 77.5946 {
		t.Errorf("center not swapped to lat/lon: %+v", city.Coordinates)
	}
	if city.Address.State != "Karnataka" || city.Address.Country != "India" || city.Address.City != "Bengaluru" {
		t.Errorf("address = %+v", city.Address)
	}
	if city.EstimatedRadiusMeters == nil {
		t.Errorf("expected bbox radius")
	}

	addr := got[1]
	if addr.Granularity != geo.GranularityExact {
		t.Errorf("granularity = %v", addr.Granularity)
	}
	if addr.Address.Road != "12 MG Road" || addr.Address.Postcode != "560001" {
		t.Errorf("address = %+v", addr.Address)
	}
}

func TestMapboxClient_MissingToken(t *testing.T) {
	client := NewMapboxClient(MapboxConfig{})
	if _, err := client.Forward(context.Background(), "Bengaluru"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v; want ErrServiceUnavailable", err)
	}
}

func TestMapboxClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewMapboxClient(MapboxConfig{AccessToken: "x", BaseURL: server.URL})
	if _, err := client.Forward(context.Background(), "Bengaluru"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v; want ErrServiceUnavailable", err)
	}
}
