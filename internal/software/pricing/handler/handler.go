package handler

import (
	"context"
	"net/http"
	"strings"

	"ridemarket/internal/general/httpx"
	"ridemarket/internal/general/jwt"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

// PricingHTTPHandler adapts HTTP requests to the PricingService.
type PricingHTTPHandler struct {
	svc  ports.PricingService
	auth *jwt.Manager
	httpx.Responder
}

// NewPricingHTTPHandler wires an HTTP handler around the PricingService.
func NewPricingHTTPHandler(svc ports.PricingService, logger *logger.Logger, auth *jwt.Manager) *PricingHTTPHandler {
	return &PricingHTTPHandler{svc: svc, auth: auth, Responder: httpx.Responder{Logger: logger}}
}

// RegisterRoutes mounts pricing endpoints on the provided mux.
func (handler *PricingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /quotes", jwt.AuthMiddlewareFunc(handler.auth)(handler.handleQuote))
	mux.HandleFunc("GET /tariff", jwt.AuthMiddlewareFunc(handler.auth)(handler.handleTariff))
}

type quoteResponse struct {
	Quote      *ports.Quote `json:"quote"`
	QuoteToken string       `json:"quote_token"`
}

// ----- Handler: POST /quotes -----

func (handler *PricingHTTPHandler) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)

	var req ports.EstimateInput
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	req.Origin = strings.TrimSpace(req.Origin)
	req.Destination = strings.TrimSpace(req.Destination)

	// the estimate falls back internally, so the timeout only guards storage
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	quote, err := handler.svc.Estimate(ctxWithTimeout, req)
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	token, err := handler.auth.IssueQuoteToken(quote)
	if err != nil {
		handler.Error(ctxWithTimeout, w, http.StatusInternalServerError, "failed to sign quote", err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, quoteResponse{Quote: quote, QuoteToken: token})
}

// ----- Handler: GET /tariff -----

func (handler *PricingHTTPHandler) handleTariff(w http.ResponseWriter, r *http.Request) {
	handler.JSON(handler.WithReqID(r), w, http.StatusOK, handler.svc.Tariff())
}
