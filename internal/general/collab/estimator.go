package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"ridemarket/internal/ports"
)

// EstimatorClient asks the trip-time service for a duration and a short
// explanation of a trip.
type EstimatorClient struct {
	client
	apiKey string
}

var _ ports.TripEstimator = (*EstimatorClient)(nil)

// NewEstimatorClient targets endpoint. apiKey is sent as a bearer token
// when set; httpClient may be nil.
func NewEstimatorClient(endpoint, apiKey string, timeout time.Duration, httpClient *http.Client) *EstimatorClient {
	return &EstimatorClient{client: newClient(endpoint, timeout, "collab.estimate", httpClient), apiKey: apiKey}
}

type estimateRequest struct {
	DistanceKM  float64 `json:"distanceKm"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
}

type estimateResponse struct {
	DurationMin *float64 `json:"durationMin"`
	Explanation string   `json:"explanation"`
}

// Estimate returns the trip duration. A zero or missing duration comes back
// as nil so the caller can apply its own default.
func (c *EstimatorClient) Estimate(ctx context.Context, distanceKM float64, origin, destination string) (ports.TripEstimate, error) {
	body, err := json.Marshal(estimateRequest{DistanceKM: distanceKM, Origin: origin, Destination: destination})
	if err != nil {
		return ports.TripEstimate{}, c.unavailable("encode request", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.TripEstimate{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var resp estimateResponse
	if err := c.do(req, &resp); err != nil {
		return ports.TripEstimate{}, err
	}
	out := ports.TripEstimate{Explanation: strings.TrimSpace(resp.Explanation)}
	if resp.DurationMin != nil && *resp.DurationMin > 0 {
		minutes := int(math.Ceil(*resp.DurationMin))
		out.DurationMin = &minutes
	}
	return out, nil
}
