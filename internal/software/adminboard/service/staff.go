package service

import (
	"context"
	"errors"

	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

// GrantRole gives userID a staff role that overrides their profile role.
func (service *adminService) GrantRole(ctx context.Context, operatorID, userID string, role user.Role) error {
	const op = "admin.grant_role"
	actor, err := service.operator(ctx, op, operatorID, adminOnly...)
	if err != nil {
		return err
	}
	if !role.IsOperator() {
		return apperr.E(apperr.KindInvalid, op, "only MODERATOR or ADMIN can be granted", user.ErrInvalidRole)
	}
	target, err := records.User(ctx, service.layer, userID)
	if err != nil {
		return err
	}
	if err := service.guardSeededGrant(ctx, op, target.ID); err != nil {
		return err
	}

	grant := user.RoleGrant{
		UserID:    target.ID,
		Name:      target.Name,
		Role:      role,
		GrantedBy: actor.ID,
		UpdatedAt: service.clock.Now().UTC(),
	}
	fields, err := synclayer.Encode(grant)
	if err != nil {
		return apperr.E(apperr.KindPersistenceFailure, op, "encode grant", err)
	}
	if _, err := service.layer.Set(ctx, ports.CollectionRoleGrants, target.ID, fields, false); err != nil {
		return err
	}
	service.logger.Info(ctx, "role_granted", "Staff role granted", map[string]any{
		"operator_id": actor.ID, "user_id": target.ID, "role": role,
	})
	return nil
}

// RevokeRole removes a staff grant. Operators cannot revoke their own, and
// nobody can revoke the seeded super operator.
func (service *adminService) RevokeRole(ctx context.Context, operatorID, userID string) error {
	const op = "admin.revoke_role"
	actor, err := service.operator(ctx, op, operatorID, adminOnly...)
	if err != nil {
		return err
	}
	if userID == actor.ID {
		return apperr.E(apperr.KindInvalid, op, "cannot revoke your own role", nil)
	}
	if err := service.guardSeededGrant(ctx, op, userID); err != nil {
		return err
	}
	if err := service.layer.Delete(ctx, ports.CollectionRoleGrants, userID); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.E(apperr.KindNotFound, op, "user has no staff role", err)
		}
		return err
	}
	service.logger.Info(ctx, "role_revoked", "Staff role revoked", map[string]any{"operator_id": actor.ID, "user_id": userID})
	return nil
}

// guardSeededGrant refuses changes to the grant Bootstrap gave the super
// operator.
func (service *adminService) guardSeededGrant(ctx context.Context, op, userID string) error {
	grant, err := records.RoleGrant(ctx, service.layer, userID)
	if err != nil {
		return err
	}
	if grant != nil && grant.GrantedBy == BootstrapGrantor {
		return apperr.E(apperr.KindForbidden, op, "the super operator's role cannot be changed", nil)
	}
	return nil
}

// SetBlocked blocks or unblocks a user. Moderators cannot block staff,
// and nobody can block themselves.
func (service *adminService) SetBlocked(ctx context.Context, operatorID, userID string, blocked bool) error {
	const op = "admin.set_blocked"
	actor, err := service.operator(ctx, op, operatorID, anyOperator...)
	if err != nil {
		return err
	}
	if userID == actor.ID {
		return apperr.E(apperr.KindInvalid, op, "cannot block yourself", nil)
	}
	target, err := service.actors.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrForbidden) {
			return apperr.E(apperr.KindNotFound, op, "user not found", err)
		}
		return err
	}
	if target.Role.IsOperator() && !actor.Role.IsAdmin() {
		return apperr.E(apperr.KindForbidden, op, "only admins can block staff", nil)
	}
	if err := service.guardSeededGrant(ctx, op, target.ID); err != nil {
		return err
	}
	if _, err := service.layer.Update(ctx, ports.CollectionUsers, target.ID, ports.Patch{"isBlocked": blocked}); err != nil {
		return err
	}
	service.logger.Info(ctx, "user_block_changed", "User block status changed", map[string]any{
		"operator_id": actor.ID, "user_id": target.ID, "blocked": blocked,
	})
	return nil
}

// ListUsers returns the most recently created profiles.
func (service *adminService) ListUsers(ctx context.Context, operatorID string) ([]user.User, error) {
	if _, err := service.operator(ctx, "admin.list_users", operatorID, anyOperator...); err != nil {
		return nil, err
	}
	docs, err := service.layer.Query(ctx, ports.CollectionUsers, ports.Query{OrderBy: "createdAt", Desc: true, Limit: UserListLimit})
	if err != nil {
		return nil, err
	}
	out := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		u, err := records.DecodeUser(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

// ListStaff returns every role grant, newest first.
func (service *adminService) ListStaff(ctx context.Context, operatorID string) ([]user.RoleGrant, error) {
	if _, err := service.operator(ctx, "admin.list_staff", operatorID, anyOperator...); err != nil {
		return nil, err
	}
	docs, err := service.layer.Query(ctx, ports.CollectionRoleGrants, ports.Query{OrderBy: "updatedAt", Desc: true})
	if err != nil {
		return nil, err
	}
	out := make([]user.RoleGrant, 0, len(docs))
	for _, doc := range docs {
		g, err := records.DecodeRoleGrant(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, nil
}

// UserListLimit bounds ListUsers.
const UserListLimit = 50
