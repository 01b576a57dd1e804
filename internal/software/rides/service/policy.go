package service

import (
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/software/identity"
)

// One authorization rule per operation. Riders are CLIENTs; operators may
// also book rides for themselves.

func canCreate(actor user.Actor) error {
	return identity.Require("ride.create", actor, user.RoleClient, user.RoleAdmin, user.RoleModerator)
}

func canAccept(actor user.Actor) error {
	return identity.Require("ride.accept", actor, user.RoleDriver)
}

func canAdvance(actor user.Actor, r *ride.Ride) error {
	if err := identity.Require("ride.advance", actor, user.RoleDriver); err != nil {
		return err
	}
	return owns("ride.advance", r.IsDriver(actor.ID))
}

func canCancel(actor user.Actor, r *ride.Ride) error {
	if err := identity.Require("ride.cancel", actor); err != nil {
		return err
	}
	return owns("ride.cancel", r.IsParticipant(actor.ID))
}

func canRate(actor user.Actor, r *ride.Ride) error {
	if err := identity.Require("ride.rate", actor); err != nil {
		return err
	}
	return owns("ride.rate", r.IsClient(actor.ID))
}

func canOverride(actor user.Actor) error {
	return identity.Require("ride.override", actor, user.RoleAdmin, user.RoleModerator)
}

func canUpdateLocation(actor user.Actor, r *ride.Ride) error {
	if err := identity.Require("ride.location", actor, user.RoleDriver); err != nil {
		return err
	}
	return owns("ride.location", r.IsDriver(actor.ID))
}

// canView lets participants and operators read a ride. Drivers may also
// see open requests so they can accept them.
func canView(actor user.Actor, r *ride.Ride) error {
	switch {
	case actor.Role.IsOperator(), r.IsParticipant(actor.ID):
		return nil
	case actor.Role.IsDriver() && r.Status == ride.StatusPending:
		return nil
	default:
		return apperr.E(apperr.KindForbidden, "ride.view", "not a participant of this ride", nil)
	}
}

func owns(op string, ok bool) error {
	if ok {
		return nil
	}
	return apperr.E(apperr.KindForbidden, op, "not a participant of this ride", nil)
}
