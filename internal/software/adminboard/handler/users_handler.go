package handler

import (
	"context"
	"net/http"
	"strings"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/httpx"
	"ridemarket/internal/general/jwt"
)

// --- Handler: PUT /admin/roles/{user_id} ---

type grantRequest struct {
	Role string `json:"role"`
}

func (handler *AdminHTTPHandler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	var req grantRequest
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	role, err := user.ParseRole(req.Role)
	if err != nil {
		handler.Error(ctx, w, http.StatusBadRequest, "role must be MODERATOR or ADMIN", err)
		return
	}
	userID := strings.TrimSpace(r.PathValue("user_id"))

	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()
	if err := handler.svc.GrantRole(ctxWithTimeout, jwt.Subject(r), userID, role); err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, map[string]string{"user_id": userID, "role": role.String()})
}

// --- Handler: DELETE /admin/roles/{user_id} ---

func (handler *AdminHTTPHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	userID := strings.TrimSpace(r.PathValue("user_id"))

	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()
	if err := handler.svc.RevokeRole(ctxWithTimeout, jwt.Subject(r), userID); err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Handler: POST /admin/users/{user_id}/block ---

type blockRequest struct {
	Blocked bool `json:"blocked"`
}

func (handler *AdminHTTPHandler) handleBlock(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	var req blockRequest
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	userID := strings.TrimSpace(r.PathValue("user_id"))

	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()
	if err := handler.svc.SetBlocked(ctxWithTimeout, jwt.Subject(r), userID, req.Blocked); err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, map[string]any{"user_id": userID, "blocked": req.Blocked})
}

// --- Handler: GET /admin/users ---

func (handler *AdminHTTPHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	users, err := handler.svc.ListUsers(ctxWithTimeout, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, map[string]any{"users": users})
}

// --- Handler: GET /admin/roles ---

func (handler *AdminHTTPHandler) handleListStaff(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	staff, err := handler.svc.ListStaff(ctxWithTimeout, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, map[string]any{"staff": staff})
}

// --- Handler: GET /admin/commissions ---

func (handler *AdminHTTPHandler) handleCommissions(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	report, err := handler.svc.CommissionReport(ctxWithTimeout, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, report)
}
