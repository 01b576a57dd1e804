package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ridemarket/internal/domain/driver"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/httpx"
	"ridemarket/internal/general/jwt"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

// AccountHTTPHandler adapts HTTP requests to the AccountService.
type AccountHTTPHandler struct {
	svc       ports.AccountService
	auth      *jwt.Manager
	devTokens bool
	httpx.Responder
}

// NewAccountHTTPHandler wires an HTTP handler around the AccountService.
// devTokens exposes POST /tokens, which mints tokens for any user id.
func NewAccountHTTPHandler(svc ports.AccountService, logger *logger.Logger, auth *jwt.Manager, devTokens bool) *AccountHTTPHandler {
	return &AccountHTTPHandler{svc: svc, auth: auth, devTokens: devTokens, Responder: httpx.Responder{Logger: logger}}
}

// RegisterRoutes mounts profile and driver endpoints on the provided mux.
func (handler *AccountHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	auth := jwt.AuthMiddlewareFunc(handler.auth)
	mux.HandleFunc("GET /users/me", auth(handler.handleMe))
	mux.HandleFunc("PUT /users/me", auth(handler.handleUpsert))
	mux.HandleFunc("POST /drivers/me/online", auth(handler.handleOnline))
	mux.HandleFunc("GET /drivers/me/earnings", auth(handler.handleEarnings))
	if handler.devTokens {
		mux.HandleFunc("POST /tokens", handler.handleCreateToken)
	}
}

// ----- Handler: GET /users/me -----

type meResponse struct {
	UserID  string     `json:"user_id"`
	Role    user.Role  `json:"role"`
	Blocked bool       `json:"blocked"`
	Profile *user.User `json:"profile"`
}

func (handler *AccountHTTPHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	actor, err := handler.svc.Me(ctxWithTimeout, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, meResponse{UserID: actor.ID, Role: actor.Role, Blocked: actor.Blocked, Profile: actor.Profile})
}

// ----- Handler: PUT /users/me -----

func (handler *AccountHTTPHandler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)

	var req ports.ProfileInput
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	if req.Role != "" {
		role, err := user.ParseRole(string(req.Role))
		if err != nil {
			handler.Error(ctx, w, http.StatusBadRequest, "role must be CLIENT or DRIVER", err)
			return
		}
		req.Role = role
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	profile, err := handler.svc.UpsertProfile(ctxWithTimeout, jwt.Subject(r), req)
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, profile)
}

// ----- Handler: POST /drivers/me/online -----

type onlineRequest struct {
	Online bool `json:"online"`
}

func (handler *AccountHTTPHandler) handleOnline(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)

	var req onlineRequest
	if !handler.Decode(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	if err := handler.svc.SetOnline(ctxWithTimeout, jwt.Subject(r), req.Online); err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, map[string]bool{"online": req.Online})
}

// ----- Handler: GET /drivers/me/earnings?period=today|week|month -----

func (handler *AccountHTTPHandler) handleEarnings(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)

	period, err := driver.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		handler.Error(ctx, w, http.StatusBadRequest, "period must be one of: today, week, month", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	earnings, err := handler.svc.Earnings(ctxWithTimeout, jwt.Subject(r), period)
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, earnings)
}

// ----- Handler: POST /tokens (development only) -----

type tokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

func (handler *AccountHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)

	var req tokenRequest
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		handler.Error(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	if req.Role == "" {
		req.Role = user.RoleClient
	}

	token, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.Error(ctx, w, http.StatusBadRequest, "failed to generate token", err)
		return
	}

	handler.Logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.JSON(ctx, w, http.StatusCreated, tokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	})
}
