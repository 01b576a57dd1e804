package service

import (
	"context"
	"errors"
	"strings"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

// BootstrapGrantor is the grantedBy value of seeded grants.
const BootstrapGrantor = "bootstrap"

// Bootstrap stores the default tariff when none exists and makes
// superID an ADMIN, creating a profile for it if needed. Existing data is
// left alone, so running it twice is harmless.
func Bootstrap(ctx context.Context, log *logger.Logger, clk clock.Clock, layer *synclayer.Layer, superID, superName string) error {
	if _, err := layer.Get(ctx, ports.CollectionTariffSettings, ports.TariffDocumentID); errors.Is(err, ports.ErrNotFound) {
		defaults, err := records.Tariff(ctx, layer)
		if err != nil {
			return err
		}
		if err := records.SaveTariff(ctx, layer, defaults); err != nil {
			return err
		}
		log.Info(ctx, "bootstrap_tariff", "Default tariff stored", nil)
	} else if err != nil {
		return err
	}

	superID = strings.TrimSpace(superID)
	if superID == "" {
		log.Info(ctx, "bootstrap_no_operator", "No super operator configured", nil)
		return nil
	}
	now := clk.Now().UTC()

	profile, err := records.User(ctx, layer, superID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		profile = &user.User{ID: superID, Name: superName, Role: user.RoleClient, CreatedAt: now}
		fields, err := synclayer.Encode(profile)
		if err != nil {
			return err
		}
		if _, err := layer.Set(ctx, ports.CollectionUsers, superID, fields, false); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	grant, err := records.RoleGrant(ctx, layer, superID)
	if err != nil {
		return err
	}
	if grant != nil && grant.Role == user.RoleAdmin {
		return nil
	}
	fields, err := synclayer.Encode(user.RoleGrant{
		UserID:    superID,
		Name:      profile.Name,
		Role:      user.RoleAdmin,
		GrantedBy: BootstrapGrantor,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}
	if _, err := layer.Set(ctx, ports.CollectionRoleGrants, superID, fields, false); err != nil {
		return err
	}
	log.Info(ctx, "bootstrap_operator", "Super operator granted ADMIN", map[string]any{"user_id": superID})
	return nil
}
