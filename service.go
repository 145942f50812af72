package policykit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
	"go.uber.org/zap"
)

// DefaultMaxTraversalDepth bounds ancestor walks when no depth is
// configured.
const DefaultMaxTraversalDepth = 32

// Config controls decision semantics and engine behavior.
type Config struct {
	// CacheTTL bounds the staleness of memoized decisions. Zero uses
	// DefaultCacheTTL; a negative value disables caching entirely.
	CacheTTL time.Duration

	// DenyOverridesAllow hardens precedence so an explicit DENY wins even
	// against a strictly closer ALLOW. The default lets a closer ALLOW
	// override a farther DENY.
	DenyOverridesAllow bool

	// InheritanceEdgeTypes lists the edge types along which grants
	// propagate from parent to child. Empty disables graph inheritance:
	// only direct-scope and global assignments apply.
	InheritanceEdgeTypes []string

	// MaxTraversalDepth bounds the ancestor walk. Zero uses
	// DefaultMaxTraversalDepth.
	MaxTraversalDepth int

	// LogAllDecisions emits an audit event for every check instead of only
	// firefighter use and explicit-deny overrides.
	LogAllDecisions bool
}

func (c Config) maxDepth() int {
	if c.MaxTraversalDepth <= 0 {
		return DefaultMaxTraversalDepth
	}
	return c.MaxTraversalDepth
}

// Service is the permission resolution engine. It owns the role catalog and
// the assignment ledger in the database, consults a GraphStore for resource
// ancestry, memoizes decisions in a DecisionCache and reports consequential
// outcomes to an AuditEmitter.
//
// Error Handling:
// All database operations use dbkit's chainable error wrapping and are then
// classified onto the policykit taxonomy (ErrNotFound, ErrInvalidInput,
// ErrConflict, ErrPermissionDenied, ErrUnavailable). Store failures on the
// decision path fail closed: Check returns an error, never a permissive
// default.
//
// Example error handling:
//
//	_, err := service.Assign(ctx, policykit.AssignmentInput{...})
//	if err != nil {
//	    if policykit.IsConflict(err) {
//	        // An equivalent active assignment already exists.
//	    }
//	    if policykit.IsPermissionDenied(err) {
//	        // The actor cannot delegate this role.
//	    }
//	}
type Service struct {
	db     dbkit.IDB
	graph  GraphStore
	cache  *DecisionCache
	audit  AuditEmitter
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	txMonitor *transactionMonitor
}

// NewService creates a permission engine over a dbkit connection.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := policykit.NewService(db, policykit.Config{
//	    InheritanceEdgeTypes: []string{"parent"},
//	})
//
// Defaults: a bun-backed graph store over the same connection, an in-memory
// decision cache with DefaultCacheTTL and a no-op audit emitter. Use the
// With* methods to substitute any of them.
func NewService(db dbkit.IDB, cfg Config) *Service {
	s := &Service{
		db:        db,
		graph:     NewDBGraph(db),
		audit:     NopEmitter{},
		cfg:       cfg,
		logger:    zap.NewNop(),
		now:       time.Now,
		txMonitor: newTransactionMonitor(),
	}
	if cfg.CacheTTL >= 0 {
		s.cache = NewDecisionCache(cfg.CacheTTL)
	}
	return s
}

// WithGraph replaces the graph store. Useful for embedding a StaticGraph or
// pointing at an external relationship service.
func (s *Service) WithGraph(graph GraphStore) *Service {
	if graph != nil {
		s.graph = graph
	}
	return s
}

// WithCache replaces the decision cache. Pass nil to disable caching.
func (s *Service) WithCache(cache *DecisionCache) *Service {
	s.cache = cache
	return s
}

// WithAudit replaces the audit emitter.
func (s *Service) WithAudit(audit AuditEmitter) *Service {
	if audit != nil {
		s.audit = audit
	}
	return s
}

// WithLogger sets the logger used for engine diagnostics.
func (s *Service) WithLogger(logger *zap.Logger) *Service {
	if logger != nil {
		s.logger = logger
		if s.cache != nil {
			s.cache.WithLogger(logger)
		}
	}
	return s
}

// WithClock replaces the time source. Tests use this to pin "now".
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// ============================================================================
// LEDGER QUERIES
// ============================================================================

// FindAssignments retrieves ledger rows matching the filter, newest first.
func (s *Service) FindAssignments(ctx context.Context, filter AssignmentFilter) ([]RoleAssignment, error) {
	var assignments []RoleAssignment
	q := s.conn(ctx).NewSelect().Model(&assignments)
	if filter.PrincipalID != "" {
		q = q.Where("principal_id = ?", filter.PrincipalID)
	}
	if filter.Role != "" {
		q = q.Where("role_name = ?", filter.Role)
	}
	if filter.GlobalOnly {
		q = q.Where("scope_id = ''")
	} else if filter.ScopeID != "" {
		q = q.Where("scope_id = ?", filter.ScopeID)
	}
	if filter.Polarity != "" {
		q = q.Where("polarity = ?", filter.Polarity)
	}
	if filter.GrantedBy != "" {
		q = q.Where("granted_by = ?", filter.GrantedBy)
	}
	if !filter.IncludeRevoked {
		q = q.Where("revoked_at IS NULL")
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 100 // Default limit
	}
	q = q.Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	q = q.Order("created_at DESC")
	err := dbkit.WithErr1(q.Scan(ctx), "FindAssignments").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "find assignments")
	}

	return assignments, nil
}

// Cache returns the decision cache handle, or nil when caching is disabled.
func (s *Service) Cache() *DecisionCache {
	return s.cache
}

// Graph returns the graph store the engine resolves ancestry against.
func (s *Service) Graph() GraphStore {
	return s.graph
}
