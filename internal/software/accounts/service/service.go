package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"ridemarket/internal/domain/driver"
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/identity"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

// accountService keeps profiles and serves driver self-service.
type accountService struct {
	logger   *logger.Logger
	clock    clock.Clock
	layer    *synclayer.Layer
	actors   ports.ActorResolver
	location *time.Location
}

// NewAccountService creates a new instance of the AccountService with the
// provided dependencies. Earnings are bucketed by day in loc.
func NewAccountService(
	logger *logger.Logger,
	clk clock.Clock,
	layer *synclayer.Layer,
	actors ports.ActorResolver,
	loc *time.Location,
) ports.AccountService {
	if loc == nil {
		loc = time.UTC
	}
	return &accountService{logger: logger, clock: clk, layer: layer, actors: actors, location: loc}
}

// UpsertProfile creates or edits the caller's own profile. New profiles
// may only pick a self-assignable role; existing ones keep theirs unless
// switching between CLIENT and DRIVER.
func (service *accountService) UpsertProfile(ctx context.Context, userID string, in ports.ProfileInput) (*user.User, error) {
	const op = "account.upsert_profile"
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.E(apperr.KindForbidden, op, "unauthenticated", nil)
	}

	existing, err := records.User(ctx, service.layer, userID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, err
	}

	profile := user.User{ID: userID, CreatedAt: service.clock.Now().UTC()}
	if existing != nil {
		if existing.IsBlocked {
			return nil, apperr.E(apperr.KindForbidden, op, "account is blocked", nil)
		}
		profile = *existing
	}

	role := in.Role
	if role == "" {
		role = profile.Role
	}
	if role == "" {
		role = user.RoleClient
	}
	if role != profile.Role && !role.SelfAssignable() {
		return nil, apperr.E(apperr.KindForbidden, op, "role cannot be self-assigned", nil)
	}

	profile.Name = strings.TrimSpace(in.Name)
	profile.Phone = strings.TrimSpace(in.Phone)
	profile.Role = role
	profile.Avatar = trimmed(in.Avatar)
	profile.VehiclePlate = trimmed(in.VehiclePlate)
	profile.PayoutKey = trimmed(in.PayoutKey)
	if !role.IsDriver() {
		profile.IsOnline = false
	}
	if err := profile.Validate(); err != nil {
		return nil, apperr.E(apperr.KindInvalid, op, err.Error(), err)
	}

	if err := service.save(ctx, &profile, existing == nil); err != nil {
		return nil, err
	}
	service.logger.Info(ctx, "profile_saved", "Profile saved", map[string]any{
		"user_id": userID, "role": role, "created": existing == nil,
	})
	return &profile, nil
}

// Me resolves the caller's effective identity.
func (service *accountService) Me(ctx context.Context, userID string) (user.Actor, error) {
	return service.actors.Resolve(ctx, userID)
}

// SetOnline toggles a driver's availability. A driver with an active ride
// cannot go offline.
func (service *accountService) SetOnline(ctx context.Context, driverID string, online bool) error {
	const op = "account.set_online"
	actor, err := service.actors.Resolve(ctx, driverID)
	if err != nil {
		return err
	}
	if err := identity.Require(op, actor, user.RoleDriver); err != nil {
		return err
	}
	if !online {
		active, err := service.layer.Query(ctx, ports.CollectionRides, ports.Query{
			Filters: []ports.Filter{
				ports.Where(ride.FieldDriverID, ports.OpEq, actor.ID),
				ports.Where(ride.FieldStatus, ports.OpIn, []any{ride.StatusAccepted.String(), ride.StatusInProgress.String()}),
			},
			Limit: 1,
		})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return apperr.E(apperr.KindInvalidState, op, "finish the active ride first", nil)
		}
	}
	if _, err := service.layer.Update(ctx, ports.CollectionUsers, actor.ID, ports.Patch{"isOnline": online}); err != nil {
		return err
	}
	service.logger.Info(ctx, "driver_availability_changed", "Driver availability changed", map[string]any{
		"driver_id": actor.ID, "online": online,
	})
	return nil
}

// Earnings summarizes the driver's completed rides over period.
func (service *accountService) Earnings(ctx context.Context, driverID string, period driver.Period) (driver.Earnings, error) {
	const op = "account.earnings"
	if !period.Valid() {
		return driver.Earnings{}, apperr.E(apperr.KindInvalid, op, "period must be today, week or month", driver.ErrInvalidPeriod)
	}
	actor, err := service.actors.Resolve(ctx, driverID)
	if err != nil {
		return driver.Earnings{}, err
	}
	if err := identity.Require(op, actor, user.RoleDriver); err != nil {
		return driver.Earnings{}, err
	}

	now := service.clock.Now().In(service.location)
	docs, err := service.layer.Query(ctx, ports.CollectionRides, ports.Query{
		Filters: []ports.Filter{
			ports.Where(ride.FieldDriverID, ports.OpEq, actor.ID),
			ports.Where(ride.FieldStatus, ports.OpEq, ride.StatusCompleted.String()),
		},
	})
	if err != nil {
		return driver.Earnings{}, err
	}
	rides, err := records.Rides(docs)
	if err != nil {
		return driver.Earnings{}, err
	}
	return driver.Summarize(actor.ID, rides, period, now), nil
}

// save creates a new profile whole. Existing ones are patched so the
// rating aggregate and block flag written by others are kept.
func (service *accountService) save(ctx context.Context, profile *user.User, create bool) error {
	if create {
		fields, err := synclayer.Encode(profile)
		if err != nil {
			return apperr.E(apperr.KindPersistenceFailure, "account.upsert_profile", "encode profile", err)
		}
		_, err = service.layer.Set(ctx, ports.CollectionUsers, profile.ID, fields, false)
		return err
	}
	patch := ports.Patch{
		"name":         profile.Name,
		"phone":        optional(&profile.Phone),
		"role":         profile.Role.String(),
		"avatar":       optional(profile.Avatar),
		"vehiclePlate": optional(profile.VehiclePlate),
		"payoutKey":    optional(profile.PayoutKey),
	}
	if !profile.Role.IsDriver() {
		patch["isOnline"] = false
	}
	_, err := service.layer.Update(ctx, ports.CollectionUsers, profile.ID, patch)
	return err
}

// optional maps an unset value to nil so the patch deletes the field.
func optional(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
