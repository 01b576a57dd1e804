package handler

import (
	"context"
	"net/http"
	"strings"

	"ridemarket/internal/domain/tariff"
	"ridemarket/internal/general/httpx"
	"ridemarket/internal/general/jwt"
	"ridemarket/internal/ports"
)

// --- Handler: GET /admin/tariff ---

func (handler *AdminHTTPHandler) handleTariff(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	handler.tariffCall(ctx, w, r, func(ctx context.Context, operatorID string) (tariff.Settings, error) {
		return handler.svc.Tariff(ctx, operatorID)
	})
}

// --- Handler: PUT /admin/tariff ---

func (handler *AdminHTTPHandler) handleUpdateTariff(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	var req ports.TariffUpdate
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	handler.tariffCall(ctx, w, r, func(ctx context.Context, operatorID string) (tariff.Settings, error) {
		return handler.svc.UpdateTariff(ctx, operatorID, req)
	})
}

// --- Handler: POST /admin/tariff/fees ---

type feeRequest struct {
	ID        string  `json:"id"`
	Reason    string  `json:"reason"`
	Amount    float64 `json:"amount"`
	StartHour int     `json:"startHour"`
	EndHour   int     `json:"endHour"`
}

func (handler *AdminHTTPHandler) handleAddFee(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	var req feeRequest
	if !handler.Decode(ctx, w, r, &req) {
		return
	}
	fee := tariff.CustomFee{
		ID:        req.ID,
		Reason:    req.Reason,
		Amount:    req.Amount,
		Kind:      tariff.FeeKindTimeWindow,
		StartHour: req.StartHour,
		EndHour:   req.EndHour,
	}
	handler.tariffCall(ctx, w, r, func(ctx context.Context, operatorID string) (tariff.Settings, error) {
		return handler.svc.AddFee(ctx, operatorID, fee)
	})
}

// --- Handler: DELETE /admin/tariff/fees/{fee_id} ---

func (handler *AdminHTTPHandler) handleRemoveFee(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	feeID := strings.TrimSpace(r.PathValue("fee_id"))
	handler.tariffCall(ctx, w, r, func(ctx context.Context, operatorID string) (tariff.Settings, error) {
		return handler.svc.RemoveFee(ctx, operatorID, feeID)
	})
}

// --- Handler: POST /admin/tariff/fees/{fee_id}/toggle ---

func (handler *AdminHTTPHandler) handleToggleFee(w http.ResponseWriter, r *http.Request) {
	ctx := handler.WithReqID(r)
	feeID := strings.TrimSpace(r.PathValue("fee_id"))
	handler.tariffCall(ctx, w, r, func(ctx context.Context, operatorID string) (tariff.Settings, error) {
		return handler.svc.ToggleFee(ctx, operatorID, feeID)
	})
}

// tariffCall runs a tariff operation and answers with the resulting tariff.
func (handler *AdminHTTPHandler) tariffCall(ctx context.Context, w http.ResponseWriter, r *http.Request, call func(ctx context.Context, operatorID string) (tariff.Settings, error)) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	settings, err := call(ctxWithTimeout, jwt.Subject(r))
	if err != nil {
		handler.Fail(ctxWithTimeout, w, err)
		return
	}
	handler.JSON(ctxWithTimeout, w, http.StatusOK, settings)
}
