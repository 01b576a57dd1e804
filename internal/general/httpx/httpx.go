// Package httpx holds the request and response plumbing shared by the
// HTTP handlers.
package httpx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/logger"
)

// MaxBody bounds request bodies.
const MaxBody = 256 << 10

// CallTimeout bounds a single service call made by a handler.
const CallTimeout = 5 * time.Second

// Responder writes JSON responses and logs failures.
type Responder struct {
	Logger *logger.Logger
}

type errBody struct {
	Error string `json:"error"`
}

// JSON encodes data with status. A nil data writes {}.
func (rs Responder) JSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	buf := []byte("{}")
	if data != nil {
		var err error
		buf, err = json.Marshal(data)
		if err != nil {
			rs.Logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// Error sends {"error": msg} with status.
func (rs Responder) Error(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	switch {
	case status >= 500:
		action = "http_internal_error"
	case status == http.StatusBadRequest:
		action = "validation_failed"
	case status == http.StatusUnsupportedMediaType:
		action = "unsupported_media_type"
	}
	if status >= 500 {
		rs.Logger.Error(ctx, action, msg, err, nil)
	} else {
		rs.Logger.Warn(ctx, action, msg, err, nil)
	}
	rs.JSON(ctx, w, status, errBody{Error: msg})
}

// Fail maps a service error to its status. Internal failures hide their
// detail from the caller.
func (rs Responder) Fail(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	msg := apperr.Message(err)
	if status >= 500 {
		msg = http.StatusText(status)
	}
	rs.Error(ctx, w, status, msg, err)
}

// WithReqID extracts or generates a request ID and adds it to the context.
func (rs Responder) WithReqID(r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = RandID()
	}
	return rs.Logger.WithRequestID(r.Context(), reqID)
}

// Decode reads a JSON body strictly into dst. It writes the error response
// itself and reports whether the handler may go on.
func (rs Responder) Decode(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		rs.Error(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxBody)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			rs.Error(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		rs.Error(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), err)
		return false
	}
	return true
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// RandID generates a random 24-char hex string suitable for request IDs.
func RandID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
