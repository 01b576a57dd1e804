package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/httpx"
	"ridemarket/internal/general/jwt"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

// RideHTTPHandler adapts HTTP requests to the RideService.
type RideHTTPHandler struct {
	svc  ports.RideService
	auth *jwt.Manager
	httpx.Responder
}

// NewRideHTTPHandler wires an HTTP handler around the RideService.
func NewRideHTTPHandler(svc ports.RideService, logger *logger.Logger, auth *jwt.Manager) *RideHTTPHandler {
	return &RideHTTPHandler{svc: svc, auth: auth, Responder: httpx.Responder{Logger: logger}}
}

// RegisterRoutes mounts ride endpoints on the provided mux. Roles are
// checked by the service against the stored profile, not the token.
func (handler *RideHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	auth := jwt.AuthMiddlewareFunc(handler.auth)
	mux.HandleFunc("POST /rides", auth(handler.handleCreate))
	mux.HandleFunc("GET /rides", auth(handler.handleList))
	mux.HandleFunc("GET /rides/{ride_id}", auth(handler.handleGet))
	mux.HandleFunc("GET /rides/{ride_id}/eta", auth(handler.handleETA))
	mux.HandleFunc("POST /rides/{ride_id}/accept", auth(handler.handleAccept))
	mux.HandleFunc("POST /rides/{ride_id}/advance", auth(handler.handleAdvance))
	mux.HandleFunc("POST /rides/{ride_id}/cancel", auth(handler.handleCancel))
	mux.HandleFunc("POST /rides/{ride_id}/rate", auth(handler.handleRate))
	mux.HandleFunc("POST /rides/{ride_id}/override", auth(handler.handleOverride))
}

// rideCtx tags the request context with the ride in the path.
func (handler *RideHTTPHandler) rideCtx(r *http.Request) (context.Context, string) {
	rideID := strings.TrimSpace(r.PathValue("ride_id"))
	return handler.Logger.WithRideID(handler.WithReqID(r), rideID), rideID
}

// ----- Handler: POST /rides -----

type createRideRequest struct {
	QuoteToken    string `json:"quote_token"`
	PaymentMethod string `json:"payment_method"`
}

func (handler *RideHTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)

	var req createRideRequest
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	method, err := ride.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		handler.Error(ctx, w, http.StatusBadRequest, "payment_method must be one of: CASH, DIGITAL_TRANSFER", err)
		return
	}
	quote, err := handler.auth.ParseQuoteToken(strings.TrimSpace(req.QuoteToken))
	if err != nil {
		handler.Fail(ctx, w, apperr.E(apperr.KindInvalidQuote, "ride.create", "quote_token is invalid", err))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	rideID, err := handler.svc.Create(ctxWithTimeout, ports.CreateRideInput{
		RiderID:       jwt.Subject(r),
		Quote:         *quote,
		PaymentMethod: method,
	})
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	ctxWithTimeout = handler.Logger.WithRideID(ctxWithTimeout, rideID)
	handler.JSON(ctxWithTimeout, w, http.StatusCreated, map[string]string{"ride_id": rideID, "status": ride.StatusPending.String()})
}

// ----- Handler: GET /rides -----

func (handler *RideHTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	rides, err := handler.svc.List(ctxWithTimeout, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, map[string]any{"rides": rides})
}

// ----- Handler: GET /rides/{ride_id} -----

func (handler *RideHTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	found, err := handler.svc.Get(ctxWithTimeout, rideID, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, found)
}

// ----- Handler: GET /rides/{ride_id}/eta -----

type etaResponse struct {
	Minutes   int  `json:"minutes,omitempty"`
	Available bool `json:"available"`
}

func (handler *RideHTTPHandler) handleETA(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	minutes, ok, err := handler.svc.ETA(ctxWithTimeout, rideID, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, etaResponse{Minutes: minutes, Available: ok})
}

// ----- Handlers: lifecycle transitions -----

func (handler *RideHTTPHandler) handleAccept(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)
	handler.transition(ctx, w, r, rideID, func(ctx context.Context, rideID, callerID string) (ride.Status, error) {
		return ride.StatusAccepted, handler.svc.Accept(ctx, rideID, callerID)
	})
}

func (handler *RideHTTPHandler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)
	handler.transition(ctx, w, r, rideID, handler.svc.Advance)
}

func (handler *RideHTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)
	handler.transition(ctx, w, r, rideID, func(ctx context.Context, rideID, callerID string) (ride.Status, error) {
		return ride.StatusCancelled, handler.svc.Cancel(ctx, rideID, callerID)
	})
}

type overrideRequest struct {
	Status string `json:"status"`
}

func (handler *RideHTTPHandler) handleOverride(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)
	var req overrideRequest
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	target := ride.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	handler.transition(ctx, w, r, rideID, func(ctx context.Context, rideID, callerID string) (ride.Status, error) {
		return target, handler.svc.Override(ctx, rideID, callerID, target)
	})
}

// transition runs one lifecycle call and answers with the new status.
func (handler *RideHTTPHandler) transition(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	rideID string,
	call func(ctx context.Context, rideID, callerID string) (ride.Status, error),
) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	status, err := call(ctxWithTimeout, rideID, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, map[string]string{"ride_id": rideID, "status": status.String()})
}

// ----- Handler: POST /rides/{ride_id}/rate -----

type rateRequest struct {
	Score *int `json:"score"`
}

func (handler *RideHTTPHandler) handleRate(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)

	var req rateRequest
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	if req.Score == nil {
		handler.Error(ctx, w, http.StatusBadRequest, "score is required", errors.New("missing score"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	if err := handler.svc.Rate(ctxWithTimeout, rideID, jwt.Subject(r), *req.Score); err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, map[string]any{"ride_id": rideID, "rating": *req.Score})
}
