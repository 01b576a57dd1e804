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

// ChatHTTPHandler adapts HTTP requests to the ChatService.
type ChatHTTPHandler struct {
	svc  ports.ChatService
	auth *jwt.Manager
	httpx.Responder
}

// NewChatHTTPHandler wires an HTTP handler around the ChatService.
func NewChatHTTPHandler(svc ports.ChatService, logger *logger.Logger, auth *jwt.Manager) *ChatHTTPHandler {
	return &ChatHTTPHandler{svc: svc, auth: auth, Responder: httpx.Responder{Logger: logger}}
}

// RegisterRoutes mounts chat endpoints on the provided mux.
func (handler *ChatHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	auth := jwt.AuthMiddlewareFunc(handler.auth)
	mux.HandleFunc("GET /rides/{ride_id}/messages", auth(handler.handleList))
	mux.HandleFunc("POST /rides/{ride_id}/messages", auth(handler.handleSend))
	mux.HandleFunc("POST /rides/{ride_id}/typing", auth(handler.handleKeystroke))
	mux.HandleFunc("DELETE /rides/{ride_id}/typing", auth(handler.handleStopTyping))
}

func (handler *ChatHTTPHandler) rideCtx(r *http.Request) (context.Context, string) {
	rideID := strings.TrimSpace(r.PathValue("ride_id"))
	return handler.Logger.WithRideID(handler.WithReqID(r), rideID), rideID
}

// ----- Handler: GET /rides/{ride_id}/messages -----

func (handler *ChatHTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	msgs, err := handler.svc.Messages(ctxWithTimeout, rideID, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, map[string]any{"messages": msgs})
}

// ----- Handler: POST /rides/{ride_id}/messages -----

type sendRequest struct {
	Text string `json:"text"`
}

func (handler *ChatHTTPHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)

	var req sendRequest
	if !handler.Decode(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	msg, err := handler.svc.Send(ctxWithTimeout, rideID, jwt.Subject(r), req.Text)
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusCreated, msg)
}

// ----- Handlers: typing presence -----

func (handler *ChatHTTPHandler) handleKeystroke(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	if err := handler.svc.Keystroke(ctxWithTimeout, rideID, jwt.Subject(r)); err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *ChatHTTPHandler) handleStopTyping(w http.ResponseWriter, r *http.Request) {
	ctx, rideID := handler.rideCtx(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	if err := handler.svc.StopTyping(ctxWithTimeout, rideID, jwt.Subject(r)); err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
