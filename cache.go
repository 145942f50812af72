package policykit

import (
	"context"
	"time"

	cachelib "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	gocachestore "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// DefaultCacheTTL bounds decision staleness when no TTL is configured.
const DefaultCacheTTL = 30 * time.Second

// CacheKey identifies a memoized decision.
type CacheKey struct {
	PrincipalID string
	Action      string
	ResourceID  string // empty for checks without a resource
}

// String renders the key for the cache backend.
func (k CacheKey) String() string {
	return k.PrincipalID + "\x1f" + k.Action + "\x1f" + k.ResourceID
}

const (
	tagPrincipalPrefix = "principal:"
	tagResourcePrefix  = "resource:"
)

// DecisionCache memoizes decisions with a short TTL and tag-driven
// invalidation. It is an explicitly passed handle, never a singleton, so
// deployments and tests can substitute backends.
//
// The cache is an optimization only: every backend failure degrades to
// direct computation. The correctness contract is one-sided — a revoke must
// never be followed by a stale allow (mutations invalidate synchronously),
// while a stale deny within one TTL window after a new grant is accepted
// because it only narrows access.
type DecisionCache struct {
	cache  cachelib.SetterCacheInterface[Decision]
	ttl    time.Duration
	logger *zap.Logger
}

// NewDecisionCache creates an in-memory decision cache with the given TTL.
func NewDecisionCache(ttl time.Duration) *DecisionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	client := gocache.New(ttl, 2*ttl)
	st := gocachestore.NewGoCache(client, store.WithExpiration(ttl))
	return NewDecisionCacheWithStore(cachelib.New[Decision](st), ttl)
}

// NewDecisionCacheWithStore wraps an existing gocache setter cache, letting
// deployments plug in shared or multi-level backends.
func NewDecisionCacheWithStore(c cachelib.SetterCacheInterface[Decision], ttl time.Duration) *DecisionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &DecisionCache{cache: c, ttl: ttl, logger: zap.NewNop()}
}

// WithLogger sets the logger used for backend failures.
func (dc *DecisionCache) WithLogger(logger *zap.Logger) *DecisionCache {
	if logger != nil {
		dc.logger = logger
	}
	return dc
}

// GetOrCompute returns the memoized decision for key, computing and storing
// it on miss. compute returns the decision plus the cache tags it depends on
// (the principal and every resource on the inheritance path).
//
// A canceled context never leaves a partial entry: once the computation has
// been interrupted the result is returned without a cache write.
func (dc *DecisionCache) GetOrCompute(ctx context.Context, key CacheKey, compute func(context.Context) (Decision, []string, error)) (Decision, error) {
	if dc == nil {
		d, _, err := compute(ctx)
		return d, err
	}

	if d, err := dc.cache.Get(ctx, key.String()); err == nil {
		return d, nil
	}

	d, tags, err := compute(ctx)
	if err != nil {
		return Decision{}, err
	}

	if ctx.Err() != nil {
		return d, nil
	}

	if err := dc.cache.Set(ctx, key.String(), d,
		store.WithExpiration(dc.ttl),
		store.WithTags(tags)); err != nil {
		// Fail open on caching, never on the decision.
		dc.logger.Warn("decision cache write failed", zap.Error(err))
	}

	return d, nil
}

// PrincipalTag is the invalidation tag for one principal's decisions.
func PrincipalTag(principalID string) string {
	return tagPrincipalPrefix + principalID
}

// ResourceTag is the invalidation tag for decisions that depended on a
// resource, either directly or through inheritance.
func ResourceTag(resourceID string) string {
	return tagResourcePrefix + resourceID
}

// InvalidatePrincipal evicts every memoized decision for a principal.
func (dc *DecisionCache) InvalidatePrincipal(ctx context.Context, principalID string) error {
	if dc == nil {
		return nil
	}
	return dc.cache.Invalidate(ctx, store.WithInvalidateTags([]string{PrincipalTag(principalID)}))
}

// InvalidateResource evicts every memoized decision whose inheritance path
// touched the resource.
func (dc *DecisionCache) InvalidateResource(ctx context.Context, resourceID string) error {
	if dc == nil {
		return nil
	}
	return dc.cache.Invalidate(ctx, store.WithInvalidateTags([]string{ResourceTag(resourceID)}))
}

// Clear drops all entries. Used for catalog mutations, which can affect
// decisions of any principal.
func (dc *DecisionCache) Clear(ctx context.Context) error {
	if dc == nil {
		return nil
	}
	return dc.cache.Clear(ctx)
}
