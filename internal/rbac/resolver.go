package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aegis-id/aegis/internal/platform/cache"
)

const (
	// DefaultCacheWindow is the sliding expiration applied to cached
	// effective permission sets.
	DefaultCacheWindow = 5 * time.Minute
	// DefaultCachePrefix namespaces per-principal cache keys.
	DefaultCachePrefix = "permissions"

	// invalidateConcurrency bounds the fan-out when a role invalidation
	// touches many principals.
	invalidateConcurrency = 8
)

// ResolverConfig tunes the resolver's caching behavior.
type ResolverConfig struct {
	// Window is the sliding expiration for cached sets. Zero selects
	// DefaultCacheWindow.
	Window time.Duration
	// Prefix namespaces cache keys. Empty selects DefaultCachePrefix.
	Prefix string
}

// Resolver answers permission checks for principals, caching each
// principal's effective permission set with sliding expiration. Repository
// failures are never cached: a failed load is a hard error, not an empty
// set.
type Resolver struct {
	repo   Repository
	store  cache.Store[[]string]
	window time.Duration
	prefix string
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository, store cache.Store[[]string], cfg ResolverConfig, logger *slog.Logger) *Resolver {
	if cfg.Window <= 0 {
		cfg.Window = DefaultCacheWindow
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultCachePrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		repo:   repo,
		store:  store,
		window: cfg.Window,
		prefix: cfg.Prefix,
		logger: logger,
	}
}

func (r *Resolver) cacheKey(principalID uuid.UUID) string {
	return r.prefix + ":" + principalID.String()
}

// EffectivePermissions returns the principal's effective permission set,
// loading it from the repository on a cache miss. Concurrent misses for the
// same principal are coalesced into a single load.
func (r *Resolver) EffectivePermissions(ctx context.Context, principalID uuid.UUID) (PermissionSet, error) {
	key := r.cacheKey(principalID)
	names, ok, err := r.store.Get(ctx, key)
	if err != nil {
		// A broken cache backend degrades to a repository load; it must
		// not turn into a denial.
		r.logger.Warn("permission cache read", slog.Any("error", err))
	} else if ok {
		return NewPermissionSet(names...), nil
	}

	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.load(ctx, key, principalID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

func (r *Resolver) load(ctx context.Context, key string, principalID uuid.UUID) (PermissionSet, error) {
	claims, err := r.repo.ClaimsForPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("rbac: load claims for %s: %w", principalID, err)
	}
	set := make(PermissionSet, len(claims))
	for _, claim := range claims {
		set[claim.Name] = struct{}{}
	}
	if err := r.store.Set(ctx, key, set.Names(), r.window); err != nil {
		// The resolved set is still authoritative; only the cache write
		// failed.
		r.logger.Warn("permission cache write", slog.Any("error", err))
	}
	return set, nil
}

// HasPermission reports whether the principal holds the permission.
func (r *Resolver) HasPermission(ctx context.Context, principalID uuid.UUID, def Definition) (bool, error) {
	set, err := r.EffectivePermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	return set.Contains(def.Name()), nil
}

// HasAny reports whether the principal holds at least one of the
// permissions.
func (r *Resolver) HasAny(ctx context.Context, principalID uuid.UUID, defs ...Definition) (bool, error) {
	set, err := r.EffectivePermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	return set.ContainsAny(definitionNames(defs)...), nil
}

// HasAll reports whether the principal holds every one of the permissions.
func (r *Resolver) HasAll(ctx context.Context, principalID uuid.UUID, defs ...Definition) (bool, error) {
	set, err := r.EffectivePermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	return set.ContainsAll(definitionNames(defs)...), nil
}

// InvalidatePrincipal drops the cached set for the principal. Deleting an
// absent entry is not an error.
func (r *Resolver) InvalidatePrincipal(ctx context.Context, principalID uuid.UUID) error {
	if _, err := r.store.Remove(ctx, r.cacheKey(principalID)); err != nil {
		return fmt.Errorf("rbac: invalidate %s: %w", principalID, err)
	}
	return nil
}

// InvalidateRole drops the cached set of every principal currently holding
// the role. Membership is looked up at invalidation time so it always
// reflects current assignment.
func (r *Resolver) InvalidateRole(ctx context.Context, roleID uuid.UUID) error {
	principalIDs, err := r.repo.PrincipalIDsForRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("rbac: principals for role %s: %w", roleID, err)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(invalidateConcurrency)
	for _, principalID := range principalIDs {
		g.Go(func() error {
			return r.InvalidatePrincipal(ctx, principalID)
		})
	}
	return g.Wait()
}

func definitionNames(defs []Definition) []string {
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name()
	}
	return names
}
