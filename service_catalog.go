package policykit

import (
	"context"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ============================================================================
// ROLE CATALOG
// ============================================================================

// CreateRole creates a named role at level 0.
//
// Example:
//
//	role, err := service.CreateRole(ctx, "editor")
func (s *Service) CreateRole(ctx context.Context, name string) (*Role, error) {
	return s.CreateRoleWithLevel(ctx, name, 0)
}

// CreateRoleWithLevel creates a named role with a numeric level. Levels are
// informational ordering for admin surfaces; they never affect decisions.
func (s *Service) CreateRoleWithLevel(ctx context.Context, name string, level int) (*Role, error) {
	if name == "" {
		return nil, NewError(ErrInvalidInput, "role name cannot be empty")
	}

	role := &Role{Name: name, Level: level}
	result, err := s.conn(ctx).NewInsert().Model(role).Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateRole").Err(); err != nil {
		return nil, classifyStoreErr(err, "create role").WithRole(name)
	}

	s.invalidateCatalog(ctx)
	return role, nil
}

// GetRole retrieves a role by name.
func (s *Service) GetRole(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().Model(&role).Where("name = ?", name).Limit(1).Scan(ctx), "GetRole").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "role not found").WithRole(name)
		}
		return nil, classifyStoreErr(err, "get role")
	}
	return &role, nil
}

// ListRoles returns all roles ordered by level then name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().Model(&roles).Order("level DESC", "name ASC").Scan(ctx), "ListRoles").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "list roles")
	}
	return roles, nil
}

// RenameRole changes a role's name. Assignments keep working: they reference
// the role by id and carry the name only as a denormalized label, which is
// updated in the same transaction.
func (s *Service) RenameRole(ctx context.Context, oldName, newName string) error {
	if newName == "" {
		return NewError(ErrInvalidInput, "role name cannot be empty").WithRole(oldName)
	}

	err := s.Transaction(ctx, func(ctx context.Context) error {
		role, err := s.GetRole(ctx, oldName)
		if err != nil {
			return err
		}

		result, err := s.conn(ctx).NewUpdate().Model((*Role)(nil)).
			Set("name = ?", newName).
			Set("updated_at = ?", s.now()).
			Where("id = ?", role.ID).
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "RenameRole").Err(); err != nil {
			return classifyStoreErr(err, "rename role").WithRole(newName)
		}

		result, err = s.conn(ctx).NewUpdate().Model((*RoleAssignment)(nil)).
			Set("role_name = ?", newName).
			Where("role_id = ?", role.ID).
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "RenameRoleAssignments").Err(); err != nil {
			return classifyStoreErr(err, "rename role on assignments")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	return nil
}

// SetRoleLevel updates a role's numeric level.
func (s *Service) SetRoleLevel(ctx context.Context, name string, level int) error {
	result, err := s.conn(ctx).NewUpdate().Model((*Role)(nil)).
		Set("level = ?", level).
		Set("updated_at = ?", s.now()).
		Where("name = ?", name).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "SetRoleLevel").Err(); err != nil {
		return classifyStoreErr(err, "set role level").WithRole(name)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return NewError(ErrNotFound, "role not found").WithRole(name)
	}
	return nil
}

// DeleteRole removes a role together with its permission bindings and
// delegation rules. Existing assignments are kept for audit history but
// become inert: with no role behind them they grant nothing.
func (s *Service) DeleteRole(ctx context.Context, name string) error {
	err := s.Transaction(ctx, func(ctx context.Context) error {
		role, err := s.GetRole(ctx, name)
		if err != nil {
			return err
		}

		result, err := s.conn(ctx).NewDelete().Model((*RolePermission)(nil)).Where("role_id = ?", role.ID).Exec(ctx)
		if err := dbkit.WithErr(result, err, "DeleteRolePermissions").Err(); err != nil {
			return classifyStoreErr(err, "delete role permissions")
		}

		result, err = s.conn(ctx).NewDelete().Model((*RoleDelegation)(nil)).
			Where("delegator_role_id = ? OR grantee_role_id = ?", role.ID, role.ID).
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "DeleteRoleDelegations").Err(); err != nil {
			return classifyStoreErr(err, "delete role delegations")
		}

		result, err = s.conn(ctx).NewDelete().Model((*Role)(nil)).Where("id = ?", role.ID).Exec(ctx)
		if err := dbkit.WithErr(result, err, "DeleteRole").Err(); err != nil {
			return classifyStoreErr(err, "delete role")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	return nil
}

// ============================================================================
// PERMISSION ACTIONS
// ============================================================================

// CreateAction registers a permission action name.
//
// Example:
//
//	action, err := service.CreateAction(ctx, "documents.read", "Read documents")
func (s *Service) CreateAction(ctx context.Context, name, description string) (*PermissionAction, error) {
	if err := DefaultMatcher.Validate(name); err != nil {
		return nil, err
	}

	action := &PermissionAction{Name: name, Description: description}
	result, err := s.conn(ctx).NewInsert().Model(action).Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateAction").Err(); err != nil {
		return nil, classifyStoreErr(err, "create action").WithAction(name)
	}
	return action, nil
}

// ListActions returns all registered actions ordered by name.
func (s *Service) ListActions(ctx context.Context) ([]PermissionAction, error) {
	var actions []PermissionAction
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().Model(&actions).Order("name ASC").Scan(ctx), "ListActions").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "list actions")
	}
	return actions, nil
}

// AddPermission binds an action to a role. Adding an existing binding is a
// no-op, so the operation is idempotent.
//
// Example:
//
//	err := service.AddPermission(ctx, "editor", "documents.write")
func (s *Service) AddPermission(ctx context.Context, roleName, actionName string) error {
	role, err := s.GetRole(ctx, roleName)
	if err != nil {
		return err
	}
	action, err := s.getAction(ctx, actionName)
	if err != nil {
		return err
	}

	rp := &RolePermission{RoleID: role.ID, ActionID: action.ID}
	result, err := s.conn(ctx).NewInsert().Model(rp).
		On("CONFLICT (role_id, action_id) DO NOTHING").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "AddPermission").Err(); err != nil {
		return classifyStoreErr(err, "add permission").WithRole(roleName).WithAction(actionName)
	}

	s.invalidateCatalog(ctx)
	return nil
}

// RemovePermission unbinds an action from a role. Removing a missing binding
// is a no-op.
func (s *Service) RemovePermission(ctx context.Context, roleName, actionName string) error {
	role, err := s.GetRole(ctx, roleName)
	if err != nil {
		return err
	}
	action, err := s.getAction(ctx, actionName)
	if err != nil {
		return err
	}

	result, err := s.conn(ctx).NewDelete().Model((*RolePermission)(nil)).
		Where("role_id = ? AND action_id = ?", role.ID, action.ID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RemovePermission").Err(); err != nil {
		return classifyStoreErr(err, "remove permission").WithRole(roleName).WithAction(actionName)
	}

	s.invalidateCatalog(ctx)
	return nil
}

// RolePermissions returns the action names bound to a role.
func (s *Service) RolePermissions(ctx context.Context, roleName string) ([]string, error) {
	role, err := s.GetRole(ctx, roleName)
	if err != nil {
		return nil, err
	}

	var names []string
	err = dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model((*RolePermission)(nil)).
		ColumnExpr("pa.name").
		Join("JOIN permission_actions AS pa ON pa.id = rp.action_id").
		Where("rp.role_id = ?", role.ID).
		Order("pa.name ASC").
		Scan(ctx, &names), "RolePermissions").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "role permissions")
	}
	return names, nil
}

// RolePermissionMatrix returns every role's bound action names keyed by role
// name. Useful for admin surfaces showing the whole catalog at once.
func (s *Service) RolePermissionMatrix(ctx context.Context) (map[string][]string, error) {
	var rows []struct {
		RoleName   string `bun:"role_name"`
		ActionName string `bun:"action_name"`
	}
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model((*Role)(nil)).
		ColumnExpr("r.name AS role_name").
		ColumnExpr("pa.name AS action_name").
		Join("LEFT JOIN role_permissions AS rp ON rp.role_id = r.id").
		Join("LEFT JOIN permission_actions AS pa ON pa.id = rp.action_id").
		Order("r.name ASC", "pa.name ASC").
		Scan(ctx, &rows), "RolePermissionMatrix").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "role permission matrix")
	}

	matrix := make(map[string][]string)
	for _, row := range rows {
		if _, ok := matrix[row.RoleName]; !ok {
			matrix[row.RoleName] = nil
		}
		if row.ActionName != "" {
			matrix[row.RoleName] = append(matrix[row.RoleName], row.ActionName)
		}
	}
	return matrix, nil
}

// ============================================================================
// DELEGATION RULES
// ============================================================================

// AllowDelegation lets principals holding the delegator role grant the
// grantee role to others. The rule is checked when assignments are created,
// never when permissions are checked.
//
// Example:
//
//	err := service.AllowDelegation(ctx, "team-lead", "editor")
func (s *Service) AllowDelegation(ctx context.Context, delegatorRole, granteeRole string) error {
	delegator, err := s.GetRole(ctx, delegatorRole)
	if err != nil {
		return err
	}
	grantee, err := s.GetRole(ctx, granteeRole)
	if err != nil {
		return err
	}

	rd := &RoleDelegation{DelegatorRoleID: delegator.ID, GranteeRoleID: grantee.ID}
	result, err := s.conn(ctx).NewInsert().Model(rd).
		On("CONFLICT (delegator_role_id, grantee_role_id) DO NOTHING").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "AllowDelegation").Err(); err != nil {
		return classifyStoreErr(err, "allow delegation").WithRole(granteeRole)
	}
	return nil
}

// RevokeDelegation removes a delegation rule. Assignments already created
// through it are untouched.
func (s *Service) RevokeDelegation(ctx context.Context, delegatorRole, granteeRole string) error {
	delegator, err := s.GetRole(ctx, delegatorRole)
	if err != nil {
		return err
	}
	grantee, err := s.GetRole(ctx, granteeRole)
	if err != nil {
		return err
	}

	result, err := s.conn(ctx).NewDelete().Model((*RoleDelegation)(nil)).
		Where("delegator_role_id = ? AND grantee_role_id = ?", delegator.ID, grantee.ID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RevokeDelegation").Err(); err != nil {
		return classifyStoreErr(err, "revoke delegation").WithRole(granteeRole)
	}
	return nil
}

// canDelegate reports whether the actor holds an active assignment of any
// role allowed to delegate the target role.
func (s *Service) canDelegate(ctx context.Context, actorID, targetRoleID string) (bool, error) {
	var delegatorIDs []string
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model((*RoleDelegation)(nil)).
		Column("delegator_role_id").
		Where("grantee_role_id = ?", targetRoleID).
		Scan(ctx, &delegatorIDs), "CanDelegate").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return false, nil
		}
		return false, classifyStoreErr(err, "delegation lookup")
	}
	if len(delegatorIDs) == 0 {
		return false, nil
	}

	now := s.now()
	var candidates []RoleAssignment
	err = dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model(&candidates).
		Where("principal_id = ?", actorID).
		Where("role_id IN (?)", bun.In(delegatorIDs)).
		Where("polarity = ?", Allow).
		Where("revoked_at IS NULL").
		Scan(ctx), "CanDelegateAssignments").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return false, nil
		}
		return false, classifyStoreErr(err, "delegation assignments")
	}

	for i := range candidates {
		if candidates[i].ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) getAction(ctx context.Context, name string) (*PermissionAction, error) {
	var action PermissionAction
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().Model(&action).Where("name = ?", name).Limit(1).Scan(ctx), "GetAction").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "action not found").WithAction(name)
		}
		return nil, classifyStoreErr(err, "get action")
	}
	return &action, nil
}

// roleActions loads the action names of each role id in ids.
func (s *Service) roleActions(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []struct {
		RoleID     string `bun:"role_id"`
		ActionName string `bun:"action_name"`
	}
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().
		Model((*RolePermission)(nil)).
		ColumnExpr("rp.role_id AS role_id").
		ColumnExpr("pa.name AS action_name").
		Join("JOIN permission_actions AS pa ON pa.id = rp.action_id").
		Where("rp.role_id IN (?)", bun.In(ids)).
		Scan(ctx, &rows), "RoleActions").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "role actions")
	}

	for _, row := range rows {
		out[row.RoleID] = append(out[row.RoleID], row.ActionName)
	}
	return out, nil
}

// invalidateCatalog drops all memoized decisions. Catalog mutations can
// change the outcome for any principal, so there is no narrower tag.
func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("decision cache clear failed", zap.Error(err))
	}
}
