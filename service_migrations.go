package policykit

import (
	"github.com/fernandezvara/dbkit"
)

// MigrationService provides migration management functionality as an extension to Service
type MigrationService struct {
	*Service
}

// NewMigrationService creates a new migration service extension
func NewMigrationService(service *Service) *MigrationService {
	return &MigrationService{Service: service}
}

// Migrations returns all database migrations required for policykit.
// Use db.Migrate(ctx, service.Migrations()) to run migrations.
// Use db.MigrationStatus(ctx, service.Migrations()) to check status.
func (ms *MigrationService) Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "policykit-001",
			Description: "Create entities table",
			SQL: `
                CREATE TABLE IF NOT EXISTS entities (
                    id TEXT PRIMARY KEY,
                    kind TEXT NOT NULL,
                    name TEXT NOT NULL,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "policykit-002",
			Description: "Create entity_edges table",
			SQL: `
                CREATE TABLE IF NOT EXISTS entity_edges (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    child_id TEXT NOT NULL,
                    parent_id TEXT NOT NULL,
                    edge_type TEXT NOT NULL,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (child_id, parent_id, edge_type)
                );
                CREATE INDEX IF NOT EXISTS idx_entity_edges_child
                    ON entity_edges (child_id, edge_type)`,
		},
		{
			ID:          "policykit-003",
			Description: "Create roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS roles (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name TEXT NOT NULL UNIQUE,
                    level INTEGER NOT NULL DEFAULT 0,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "policykit-004",
			Description: "Create permission_actions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS permission_actions (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name TEXT NOT NULL UNIQUE,
                    description TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "policykit-005",
			Description: "Create role_permissions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_permissions (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    role_id UUID NOT NULL,
                    action_id UUID NOT NULL,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (role_id, action_id)
                )`,
		},
		{
			ID:          "policykit-006",
			Description: "Create role_delegations table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_delegations (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    delegator_role_id UUID NOT NULL,
                    grantee_role_id UUID NOT NULL,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (delegator_role_id, grantee_role_id)
                )`,
		},
		{
			ID:          "policykit-007",
			Description: "Create role_assignments table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_assignments (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    principal_id TEXT NOT NULL,
                    role_id UUID NOT NULL,
                    role_name TEXT NOT NULL,
                    scope_id TEXT NOT NULL DEFAULT '',
                    polarity TEXT NOT NULL DEFAULT 'allow',
                    valid_from TIMESTAMPTZ,
                    valid_until TIMESTAMPTZ,
                    schedule TEXT NOT NULL DEFAULT '',
                    granted_by TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    revoked_at TIMESTAMPTZ,
                    revoked_by TEXT,
                    revoke_reason TEXT
                );
                CREATE UNIQUE INDEX IF NOT EXISTS idx_role_assignments_active
                    ON role_assignments (principal_id, role_id, scope_id, polarity)
                    WHERE revoked_at IS NULL;
                CREATE INDEX IF NOT EXISTS idx_role_assignments_principal
                    ON role_assignments (principal_id)
                    WHERE revoked_at IS NULL;
                CREATE INDEX IF NOT EXISTS idx_role_assignments_firefighter
                    ON role_assignments (principal_id, role_name)
                    WHERE revoked_at IS NULL`,
		},
	}
}
