package collab

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/ports"
)

// GeocodeClient resolves addresses with a Nominatim-style search API:
// GET ?q=<address>&format=json&limit=1 answering [{"lat":"..","lon":".."}].
type GeocodeClient struct {
	client
	userAgent string
}

var _ ports.Geocoder = (*GeocodeClient)(nil)

// NewGeocodeClient targets endpoint. httpClient may be nil.
func NewGeocodeClient(endpoint, userAgent string, timeout time.Duration, httpClient *http.Client) *GeocodeClient {
	return &GeocodeClient{client: newClient(endpoint, timeout, "collab.geocode", httpClient), userAgent: userAgent}
}

type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode returns the best match for address; ok is false when nothing
// matched.
func (c *GeocodeClient) Geocode(ctx context.Context, address string) (geo.Point, bool, error) {
	q := url.Values{"q": {address}, "format": {"json"}, "limit": {"1"}}
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return geo.Point{}, false, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var places []place
	if err := c.do(req, &places); err != nil {
		return geo.Point{}, false, err
	}
	if len(places) == 0 {
		return geo.Point{}, false, nil
	}
	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lng, errLng := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLng != nil {
		return geo.Point{}, false, c.unavailable("unparsable coordinates", nil)
	}
	p := geo.Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return geo.Point{}, false, c.unavailable("coordinates out of range", err)
	}
	return p, true, nil
}
