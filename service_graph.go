package policykit

import (
	"context"
	"sync"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// GraphStore is the relationship graph consumed by the engine. The engine
// only needs entity existence and single-hop parent edges; transitive
// traversal stays on the engine side so every implementation gets the same
// cycle and depth bounds.
type GraphStore interface {
	// GetEntity returns the entity or ErrNotFound.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// ParentEdges returns the ids of the direct parents of resourceID
	// reachable through the given edge types, one hop only.
	ParentEdges(ctx context.Context, resourceID string, edgeTypes []string) ([]string, error)

	// Exists reports whether the entity exists.
	Exists(ctx context.Context, id string) (bool, error)
}

// ============================================================================
// BUN-BACKED GRAPH STORE
// ============================================================================

// DBGraph is the default GraphStore over the generic entities/entity_edges
// tables.
type DBGraph struct {
	db dbkit.IDB
}

// NewDBGraph creates a graph store over a dbkit connection.
func NewDBGraph(db dbkit.IDB) *DBGraph {
	return &DBGraph{db: db}
}

// GetEntity implements GraphStore.
func (g *DBGraph) GetEntity(ctx context.Context, id string) (*Entity, error) {
	var entity Entity
	err := dbkit.WithErr1(g.db.NewSelect().Model(&entity).Where("id = ?", id).Limit(1).Scan(ctx), "GetEntity").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "entity not found").WithResource(id)
		}
		return nil, classifyStoreErr(err, "get entity")
	}
	return &entity, nil
}

// ParentEdges implements GraphStore.
func (g *DBGraph) ParentEdges(ctx context.Context, resourceID string, edgeTypes []string) ([]string, error) {
	if len(edgeTypes) == 0 {
		return nil, nil
	}
	var parents []string
	err := dbkit.WithErr1(g.db.NewSelect().
		Model((*EntityEdge)(nil)).
		Column("parent_id").
		Where("child_id = ?", resourceID).
		Where("edge_type IN (?)", bun.In(edgeTypes)).
		Scan(ctx, &parents), "ParentEdges").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, classifyStoreErr(err, "parent edges")
	}
	return parents, nil
}

// Exists implements GraphStore.
func (g *DBGraph) Exists(ctx context.Context, id string) (bool, error) {
	exists, err := dbkit.Exists[Entity](ctx, g.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id = ?", id)
	})
	if err != nil {
		return false, classifyStoreErr(err, "entity exists")
	}
	return exists, nil
}

// CreateEntity registers an entity in the graph.
func (g *DBGraph) CreateEntity(ctx context.Context, id, kind, name string) (*Entity, error) {
	entity := &Entity{ID: id, Kind: kind, Name: name}
	result, err := g.db.NewInsert().Model(entity).Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateEntity").Err(); err != nil {
		return nil, classifyStoreErr(err, "create entity")
	}
	return entity, nil
}

// SetParent records a typed parent edge. Re-adding an existing edge is a
// no-op.
func (g *DBGraph) SetParent(ctx context.Context, childID, parentID, edgeType string) error {
	edge := &EntityEdge{ChildID: childID, ParentID: parentID, EdgeType: edgeType}
	result, err := g.db.NewInsert().
		Model(edge).
		On("CONFLICT (child_id, parent_id, edge_type) DO NOTHING").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "SetParent").Err(); err != nil {
		return classifyStoreErr(err, "set parent edge")
	}
	return nil
}

// ============================================================================
// IN-MEMORY GRAPH STORE
// ============================================================================

// StaticGraph is an in-memory GraphStore for tests and embedded
// deployments. Safe for concurrent use.
type StaticGraph struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	parents  map[string][]EntityEdge // child id -> edges
}

// NewStaticGraph creates an empty in-memory graph.
func NewStaticGraph() *StaticGraph {
	return &StaticGraph{
		entities: make(map[string]*Entity),
		parents:  make(map[string][]EntityEdge),
	}
}

// AddEntity registers an entity.
func (g *StaticGraph) AddEntity(id, kind, name string) *StaticGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[id] = &Entity{ID: id, Kind: kind, Name: name}
	return g
}

// AddParent records a typed parent edge.
func (g *StaticGraph) AddParent(childID, parentID, edgeType string) *StaticGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.parents[childID] = append(g.parents[childID], EntityEdge{
		ChildID:  childID,
		ParentID: parentID,
		EdgeType: edgeType,
	})
	return g
}

// GetEntity implements GraphStore.
func (g *StaticGraph) GetEntity(_ context.Context, id string) (*Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e, ok := g.entities[id]; ok {
		return e, nil
	}
	return nil, NewError(ErrNotFound, "entity not found").WithResource(id)
}

// ParentEdges implements GraphStore.
func (g *StaticGraph) ParentEdges(_ context.Context, resourceID string, edgeTypes []string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var parents []string
	for _, edge := range g.parents[resourceID] {
		for _, t := range edgeTypes {
			if edge.EdgeType == t {
				parents = append(parents, edge.ParentID)
				break
			}
		}
	}
	return parents, nil
}

// Exists implements GraphStore.
func (g *StaticGraph) Exists(_ context.Context, id string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.entities[id]
	return ok, nil
}

// ============================================================================
// ANCESTOR TRAVERSAL
// ============================================================================

// ancestors walks the inheritance edges from resourceID upward and returns
// every reachable resource keyed to its hop distance (the resource itself is
// 0). Inheritance edge types are required to be acyclic by configuration,
// but the walk also carries a visited set and a depth bound so a cycle that
// slips through still terminates.
func (s *Service) ancestors(ctx context.Context, resourceID string) (map[string]int, error) {
	distances := map[string]int{resourceID: 0}
	if len(s.cfg.InheritanceEdgeTypes) == 0 {
		return distances, nil
	}

	frontier := []string{resourceID}
	for depth := 1; len(frontier) > 0 && depth <= s.cfg.maxDepth(); depth++ {
		var next []string
		for _, id := range frontier {
			parents, err := s.graph.ParentEdges(ctx, id, s.cfg.InheritanceEdgeTypes)
			if err != nil {
				return nil, err
			}
			for _, parent := range parents {
				if _, seen := distances[parent]; seen {
					continue
				}
				distances[parent] = depth
				next = append(next, parent)
			}
		}
		frontier = next
	}

	return distances, nil
}
