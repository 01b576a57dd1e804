package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/jwt"
	"ridemarket/internal/general/memstore"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/identity"
	pricinghandler "ridemarket/internal/software/pricing/handler"
	pricingsvc "ridemarket/internal/software/pricing/service"
	ridesvc "ridemarket/internal/software/rides/service"
	"ridemarket/internal/software/synclayer"
)

var noon = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type server struct {
	t    *testing.T
	mux  *http.ServeMux
	auth *jwt.Manager
}

func newServer(t *testing.T) *server {
	t.Helper()
	clk := clock.Fake(noon)
	layer := synclayer.New(memstore.New(clk), nil)
	t.Cleanup(layer.Close)

	for id, u := range map[string]map[string]any{
		"rider":  {"name": "Ana", "role": "CLIENT"},
		"driver": {"name": "Caio", "role": "DRIVER", "vehiclePlate": "XYZ"},
	} {
		if _, err := layer.Set(t.Context(), ports.CollectionUsers, id, u, false); err != nil {
			t.Fatal(err)
		}
	}

	resolver := identity.NewResolver(layer)
	engine := pricingsvc.NewPricingEngine(nil, clk, pricingsvc.NewTariffWatcher(layer, nil), nil,
		pricingsvc.Config{Location: time.UTC}, pricingsvc.DefaultStrategy{KM: 5})
	rides := ridesvc.NewRideService(nil, clk, layer, resolver, engine, nil, 0)
	auth := jwt.NewManager("test-secret", time.Hour, clk)

	mux := http.NewServeMux()
	pricinghandler.NewPricingHTTPHandler(engine, nil, auth).RegisterRoutes(mux)
	NewRideHTTPHandler(rides, nil, auth).RegisterRoutes(mux)
	return &server{t: t, mux: mux, auth: auth}
}

func (s *server) do(method, path, userID string, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		role := user.RoleClient
		if userID == "driver" {
			role = user.RoleDriver
		}
		token, _, err := s.auth.IssueUserToken(userID, role)
		if err != nil {
			s.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestQuoteBookAccept(t *testing.T) {
	s := newServer(t)

	rec, body := s.do("POST", "/quotes", "rider", map[string]any{"origin": "A", "destination": "B"})
	if rec.Code != http.StatusOK {
		t.Fatalf("quote: %d %s", rec.Code, rec.Body)
	}
	quote := body["quote"].(map[string]any)
	if quote["price"] != 11.5 || quote["distanceSource"] != ports.DistanceSourceDefault {
		t.Fatalf("quote = %v", quote)
	}
	token, _ := body["quote_token"].(string)

	rec, body = s.do("POST", "/rides", "rider", map[string]any{"quote_token": token, "payment_method": "cash"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	rideID := body["ride_id"].(string)

	rec, _ = s.do("POST", "/rides/"+rideID+"/accept", "rider", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("rider accept: %d", rec.Code)
	}
	rec, body = s.do("POST", "/rides/"+rideID+"/accept", "driver", nil)
	if rec.Code != http.StatusOK || body["status"] != "ACCEPTED" {
		t.Fatalf("driver accept: %d %v", rec.Code, body)
	}
	rec, _ = s.do("POST", "/rides/"+rideID+"/accept", "driver", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second accept: %d", rec.Code)
	}

	rec, body = s.do("POST", "/rides/"+rideID+"/advance", "driver", nil)
	if rec.Code != http.StatusOK || body["status"] != "IN_PROGRESS" {
		t.Fatalf("advance: %d %v", rec.Code, body)
	}

	rec, body = s.do("GET", "/rides", "rider", nil)
	if rec.Code != http.StatusOK || len(body["rides"].([]any)) != 1 {
		t.Fatalf("list: %d %v", rec.Code, body)
	}
}

func TestRequestRejections(t *testing.T) {
	s := newServer(t)

	if rec, _ := s.do("POST", "/quotes", "", map[string]any{"origin": "A", "destination": "B"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec, _ := s.do("POST", "/rides", "rider", map[string]any{"quote_token": "garbage", "payment_method": "CASH"}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad quote token: %d", rec.Code)
	}
	if rec, _ := s.do("POST", "/rides", "rider", map[string]any{"quote_token": "x", "payment_method": "GOLD"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad payment method: %d", rec.Code)
	}
	if rec, _ := s.do("POST", "/rides", "rider", map[string]any{"unknown": true}); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d", rec.Code)
	}
	if rec, _ := s.do("POST", "/rides/r1/rate", "rider", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing score: %d", rec.Code)
	}
	if rec, _ := s.do("GET", "/rides/missing", "rider", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing ride: %d", rec.Code)
	}
}
