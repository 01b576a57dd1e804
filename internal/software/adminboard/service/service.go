package service

import (
	"context"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/identity"
	"ridemarket/internal/software/synclayer"
)

// adminService is the operator console: tariff upkeep, staff and user
// moderation, and reporting.
type adminService struct {
	logger *logger.Logger
	clock  clock.Clock
	layer  *synclayer.Layer
	actors ports.ActorResolver
}

// NewAdminService creates a new instance of the AdminService with the provided dependencies.
func NewAdminService(
	logger *logger.Logger,
	clk clock.Clock,
	layer *synclayer.Layer,
	actors ports.ActorResolver,
) ports.AdminService {
	return &adminService{
		logger: logger,
		clock:  clk,
		layer:  layer,
		actors: actors,
	}
}

// operator resolves the caller and checks it holds one of roles.
func (service *adminService) operator(ctx context.Context, op, callerID string, roles ...user.Role) (user.Actor, error) {
	actor, err := service.actors.Resolve(ctx, callerID)
	if err != nil {
		return user.Actor{}, err
	}
	if err := identity.Require(op, actor, roles...); err != nil {
		return user.Actor{}, err
	}
	return actor, nil
}

var (
	anyOperator = []user.Role{user.RoleAdmin, user.RoleModerator}
	adminOnly   = []user.Role{user.RoleAdmin}
)
