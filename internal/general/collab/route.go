package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ridemarket/internal/ports"
)

// RouteClient asks the route-distance service for the road distance
// between two addresses. The service takes a form POST with origem and
// destino and answers with distancia_km as a number or numeric string.
type RouteClient struct {
	client
}

var _ ports.RouteService = (*RouteClient)(nil)

// NewRouteClient targets endpoint. httpClient may be nil.
func NewRouteClient(endpoint string, timeout time.Duration, httpClient *http.Client) *RouteClient {
	return &RouteClient{client: newClient(endpoint, timeout, "collab.route", httpClient)}
}

type routeResponse struct {
	DistanceKM      json.RawMessage `json:"distancia_km"`
	OriginFull      string          `json:"origem_completa"`
	DestinationFull string          `json:"destino_completo"`
}

// Distance returns the road distance. A missing or non-numeric distance is
// an upstream failure.
func (c *RouteClient) Distance(ctx context.Context, origin, destination string) (ports.RouteResult, error) {
	form := url.Values{"origem": {origin}, "destino": {destination}}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return ports.RouteResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp routeResponse
	if err := c.do(req, &resp); err != nil {
		return ports.RouteResult{}, err
	}
	km, err := parseNumber(resp.DistanceKM)
	if err != nil {
		return ports.RouteResult{}, c.unavailable("distancia_km is not a number", err)
	}
	return ports.RouteResult{
		DistanceKM:      km,
		OriginFull:      strings.TrimSpace(resp.OriginFull),
		DestinationFull: strings.TrimSpace(resp.DestinationFull),
	}, nil
}

// parseNumber accepts 12.5 and "12.5".
func parseNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
