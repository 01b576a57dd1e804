package handler

import (
	"net/http"

	"ridemarket/internal/general/httpx"
	"ridemarket/internal/general/jwt"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

// AdminHTTPHandler adapts HTTP requests to the AdminService.
type AdminHTTPHandler struct {
	svc  ports.AdminService
	auth *jwt.Manager
	httpx.Responder
}

// NewAdminHTTPHandler wires an HTTP handler around the AdminService.
func NewAdminHTTPHandler(svc ports.AdminService, logger *logger.Logger, auth *jwt.Manager) *AdminHTTPHandler {
	return &AdminHTTPHandler{svc: svc, auth: auth, Responder: httpx.Responder{Logger: logger}}
}

// RegisterRoutes mounts admin endpoints on the provided mux. Staff roles
// come from role grants, so the service checks them, not the token.
func (handler *AdminHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	auth := jwt.AuthMiddlewareFunc(handler.auth)
	mux.HandleFunc("GET /admin/tariff", auth(handler.handleTariff))
	mux.HandleFunc("PUT /admin/tariff", auth(handler.handleUpdateTariff))
	mux.HandleFunc("POST /admin/tariff/fees", auth(handler.handleAddFee))
	mux.HandleFunc("DELETE /admin/tariff/fees/{fee_id}", auth(handler.handleRemoveFee))
	mux.HandleFunc("POST /admin/tariff/fees/{fee_id}/toggle", auth(handler.handleToggleFee))

	mux.HandleFunc("GET /admin/roles", auth(handler.handleListStaff))
	mux.HandleFunc("PUT /admin/roles/{user_id}", auth(handler.handleGrant))
	mux.HandleFunc("DELETE /admin/roles/{user_id}", auth(handler.handleRevoke))
	mux.HandleFunc("POST /admin/users/{user_id}/block", auth(handler.handleBlock))
	mux.HandleFunc("GET /admin/users", auth(handler.handleListUsers))
	mux.HandleFunc("GET /admin/commissions", auth(handler.handleCommissions))

	mux.HandleFunc("GET /health", httpx.Health)
}
