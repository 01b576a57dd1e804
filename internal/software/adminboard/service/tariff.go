package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"ridemarket/internal/domain/tariff"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
)

// Tariff returns the stored tariff, or the defaults.
func (service *adminService) Tariff(ctx context.Context, operatorID string) (tariff.Settings, error) {
	if _, err := service.operator(ctx, "admin.tariff", operatorID, anyOperator...); err != nil {
		return tariff.Settings{}, err
	}
	return records.Tariff(ctx, service.layer)
}

// UpdateTariff changes the scalar values that are set in in.
func (service *adminService) UpdateTariff(ctx context.Context, operatorID string, in ports.TariffUpdate) (tariff.Settings, error) {
	return service.modify(ctx, "admin.update_tariff", operatorID, func(s *tariff.Settings) error {
		set := func(dst *float64, v *float64) {
			if v != nil {
				*dst = *v
			}
		}
		set(&s.BaseFare, in.BaseFare)
		set(&s.PerKMRate, in.PerKMRate)
		set(&s.CommissionPercent, in.CommissionPercent)
		set(&s.DevCommissionPercent, in.DevCommissionPercent)
		set(&s.PartnerCommissionPercent, in.PartnerCommissionPercent)
		return nil
	})
}

// AddFee appends an enabled fee. An empty id gets a generated one.
func (service *adminService) AddFee(ctx context.Context, operatorID string, fee tariff.CustomFee) (tariff.Settings, error) {
	fee.ID = strings.TrimSpace(fee.ID)
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	if fee.Kind == "" {
		fee.Kind = tariff.FeeKindTimeWindow
	}
	fee.Reason = strings.TrimSpace(fee.Reason)
	fee.Enabled = true
	return service.modify(ctx, "admin.add_fee", operatorID, func(s *tariff.Settings) error {
		s.CustomFees = append(s.CustomFees, fee)
		return nil
	})
}

// RemoveFee drops a fee by id.
func (service *adminService) RemoveFee(ctx context.Context, operatorID, feeID string) (tariff.Settings, error) {
	return service.modify(ctx, "admin.remove_fee", operatorID, func(s *tariff.Settings) error {
		i := s.FeeIndex(feeID)
		if i < 0 {
			return apperr.E(apperr.KindNotFound, "admin.remove_fee", "fee not found", tariff.ErrFeeNotFound)
		}
		s.CustomFees = append(s.CustomFees[:i], s.CustomFees[i+1:]...)
		return nil
	})
}

// ToggleFee flips a fee between enabled and disabled.
func (service *adminService) ToggleFee(ctx context.Context, operatorID, feeID string) (tariff.Settings, error) {
	return service.modify(ctx, "admin.toggle_fee", operatorID, func(s *tariff.Settings) error {
		i := s.FeeIndex(feeID)
		if i < 0 {
			return apperr.E(apperr.KindNotFound, "admin.toggle_fee", "fee not found", tariff.ErrFeeNotFound)
		}
		s.CustomFees[i].Enabled = !s.CustomFees[i].Enabled
		return nil
	})
}

// modifyAttempts bounds how often modify re-reads after losing a race.
const modifyAttempts = 3

// modify is the read-validate-write cycle shared by every tariff change.
// The write is conditioned on the revision that was read, so concurrent
// changes are re-applied on top of each other instead of overwritten.
// Only admins may change the tariff.
func (service *adminService) modify(ctx context.Context, op, operatorID string, change func(*tariff.Settings) error) (tariff.Settings, error) {
	actor, err := service.operator(ctx, op, operatorID, adminOnly...)
	if err != nil {
		return tariff.Settings{}, err
	}
	for attempt := 1; attempt <= modifyAttempts; attempt++ {
		settings, revision, err := records.LoadTariff(ctx, service.layer)
		if err != nil {
			return tariff.Settings{}, err
		}
		if err := change(&settings); err != nil {
			return tariff.Settings{}, err
		}
		if err := settings.Validate(); err != nil {
			return tariff.Settings{}, apperr.E(apperr.KindInvalid, op, err.Error(), err)
		}

		err = records.ReplaceTariff(ctx, service.layer, settings, revision)
		if errors.Is(err, ports.ErrNotFound) {
			err = records.SaveTariff(ctx, service.layer, settings)
		}
		switch {
		case err == nil:
			service.logger.Info(ctx, "tariff_updated", "Tariff updated", map[string]any{"operation": op, "operator_id": actor.ID})
			return settings, nil
		case errors.Is(err, ports.ErrPreconditionFailed):
			service.logger.Debug(ctx, "tariff_update_retry", "Tariff changed concurrently, retrying", map[string]any{"operation": op, "attempt": attempt})
		default:
			return tariff.Settings{}, err
		}
	}
	return tariff.Settings{}, apperr.E(apperr.KindConflict, op, "tariff was changed concurrently, try again", ports.ErrPreconditionFailed)
}
