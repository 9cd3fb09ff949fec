package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aegis-id/aegis/internal/platform/httpx"
	"github.com/aegis-id/aegis/internal/shared"
)

// DenialMode states how the required permissions combine.
type DenialMode string

const (
	DenialModeOne DenialMode = "one"
	DenialModeAny DenialMode = "any"
	DenialModeAll DenialMode = "all"
)

// DenialError reports a failed authorization check. It names the required
// permissions and how they combine; it never reveals which permissions the
// principal does hold.
type DenialError struct {
	Mode     DenialMode
	Required []string
}

func (e *DenialError) Error() string {
	joined := strings.Join(e.Required, ", ")
	switch e.Mode {
	case DenialModeAny:
		return "permission denied, required any of: " + joined
	case DenialModeAll:
		return "permission denied, required all of: " + joined
	default:
		return "permission denied, required: " + joined
	}
}

// Guard is the stateless predicate layer entry points compose into their
// routes. All caching is delegated to the Resolver, so Guard values are
// cheap and reentrant. It fails closed: no principal, a failed load, or a
// missing permission all deny the request.
type Guard struct {
	resolver *Resolver
	catalog  *Catalog
	logger   *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(resolver *Resolver, catalog *Catalog, logger *slog.Logger) Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return Guard{resolver: resolver, catalog: catalog, logger: logger}
}

// Require ensures the principal holds the permission.
func (g Guard) Require(def Definition) func(http.Handler) http.Handler {
	g.mustRegistered(def)
	return g.middleware(DenialModeOne, def)
}

// RequireAny ensures the principal holds at least one of the permissions.
func (g Guard) RequireAny(defs ...Definition) func(http.Handler) http.Handler {
	g.mustRequirement(defs)
	return g.middleware(DenialModeAny, defs...)
}

// RequireAll ensures the principal holds every one of the permissions.
func (g Guard) RequireAll(defs ...Definition) func(http.Handler) http.Handler {
	g.mustRequirement(defs)
	return g.middleware(DenialModeAll, defs...)
}

// Can is the read-only query form, for handlers that shape output fields
// rather than deny access outright.
func (g Guard) Can(ctx context.Context, principalID uuid.UUID, def Definition) (bool, error) {
	g.mustRegistered(def)
	return g.resolver.HasPermission(ctx, principalID, def)
}

func (g Guard) middleware(mode DenialMode, defs ...Definition) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}

			var allowed bool
			var err error
			switch mode {
			case DenialModeAll:
				allowed, err = g.resolver.HasAll(r.Context(), principalID, defs...)
			case DenialModeAny:
				allowed, err = g.resolver.HasAny(r.Context(), principalID, defs...)
			default:
				allowed, err = g.resolver.HasPermission(r.Context(), principalID, defs[0])
			}
			if err != nil {
				// Unable to authorize is distinct from denied; surface it
				// as a server failure, never as forbidden.
				g.logger.Error("authorization check", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !allowed {
				denial := &DenialError{Mode: mode, Required: definitionNames(defs)}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", denial.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// mustRequirement rejects an empty requirement list at construction; an
// unconstrained guard would pass every request through.
func (g Guard) mustRequirement(defs []Definition) {
	if len(defs) == 0 {
		panic("rbac: guard requires at least one permission")
	}
	g.mustRegistered(defs...)
}

func (g Guard) mustRegistered(defs ...Definition) {
	for _, def := range defs {
		if !g.catalog.Contains(def) {
			panic(fmt.Sprintf("rbac: guard references unregistered permission %s", def.Name()))
		}
	}
}
