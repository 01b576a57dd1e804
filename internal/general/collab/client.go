// Package collab holds typed HTTP clients for the external services the
// pricing engine consults: road distance, geocoding and trip-time
// estimation. Every failure is reported as UpstreamUnavailable so callers
// can fall back.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ridemarket/internal/general/apperr"
)

// maxResponse bounds how much of a collaborator response is read.
const maxResponse = 1 << 20

// client is the shared transport of the collaborator clients.
type client struct {
	httpClient *http.Client
	endpoint   string
	op         string
}

func newClient(endpoint string, timeout time.Duration, op string, httpClient *http.Client) client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return client{httpClient: httpClient, endpoint: strings.TrimRight(endpoint, "/"), op: op}
}

// do sends req and decodes a 200 JSON answer into dst.
func (c client) do(req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")
	response, err := c.httpClient.Do(req)
	if err != nil {
		return c.unavailable("request failed", err)
	}
	defer response.Body.Close()

	body := io.LimitReader(response.Body, maxResponse)
	if response.StatusCode != http.StatusOK {
		return c.unavailable(fmt.Sprintf("HTTP %d: %s", response.StatusCode, errorBody(body)), nil)
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return c.unavailable("malformed response", err)
	}
	return nil
}

func (c client) unavailable(msg string, err error) error {
	return apperr.E(apperr.KindUpstreamUnavailable, c.op, msg, err)
}

func (c client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, c.unavailable("build request", err)
	}
	return req, nil
}

// errorBody returns a short excerpt of an error response.
func errorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
