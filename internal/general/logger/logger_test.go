package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestEntryShape(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions("ride-service", Options{Writer: &buf})

	ctx := log.WithRideID(log.WithRequestID(context.Background(), "req-1"), "ride-9")
	log.Error(ctx, "ride_accept_failed", "Failed to accept ride", errors.New("boom"), map[string]any{"driver_id": "d1"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	for key, want := range map[string]string{
		"level":      "ERROR",
		"service":    "ride-service",
		"action":     "ride_accept_failed",
		"message":    "Failed to accept ride",
		"request_id": "req-1",
		"ride_id":    "ride-9",
	} {
		if got, _ := entry[key].(string); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
	errObj, ok := entry["error"].(map[string]any)
	if !ok || errObj["msg"] != "boom" || errObj["stack"] == "" {
		t.Errorf("error object = %v", entry["error"])
	}
}

func TestDebugSuppressedByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions("svc", Options{Writer: &buf})
	log.Debug(context.Background(), "noise", "hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug line written without Debug option: %s", buf.String())
	}
}
