package gate

import (
	"log/slog"
	"net/http"

	"github.com/meridian-commerce/meridian-admin/internal/authz"
	"github.com/meridian-commerce/meridian-admin/internal/observability"
	"github.com/meridian-commerce/meridian-admin/internal/platform/httpx"
	"github.com/meridian-commerce/meridian-admin/internal/session"
	"github.com/meridian-commerce/meridian-admin/internal/shared"
)

// Middleware gates routes by coarse capability or fine-grained permission.
// Denials default closed: no session means 401, an authenticated session
// without the grant means 403.
type Middleware struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// RequireCapability admits only sessions whose role grants the capability.
func (m Middleware) RequireCapability(capability string) func(http.Handler) http.Handler {
	if capability == "" {
		panic("gate: RequireCapability needs a capability")
	}
	return m.require("capability", func(h *session.Holder) bool {
		return h.HasRole(capability)
	})
}

// RequireSuperRole admits only the unrestricted administrator role.
func (m Middleware) RequireSuperRole() func(http.Handler) http.Handler {
	return m.require("super_role", func(h *session.Holder) bool {
		identity := h.Identity()
		return h.Authenticated() && identity != nil && identityIsSuper(identity)
	})
}

// RequireAnyPermission admits sessions holding at least one of the named
// permissions. Constructing it with zero names is a wiring bug, not a
// pass-everything gate, so it panics at startup.
func (m Middleware) RequireAnyPermission(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		panic("gate: RequireAnyPermission needs at least one permission")
	}
	return m.require("permission", func(h *session.Holder) bool {
		return h.HasAnyPermission(names...)
	})
}

// RequireAllPermissions admits sessions holding every named permission.
// Zero names would be vacuously true; it panics instead.
func (m Middleware) RequireAllPermissions(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		panic("gate: RequireAllPermissions needs at least one permission")
	}
	return m.require("permission", func(h *session.Holder) bool {
		return h.HasAllPermissions(names...)
	})
}

// RequireCSRF verifies the CSRF token on state-changing requests. Safe
// methods pass through, as do unauthenticated sessions; the capability
// guards reject those on their own.
func (m Middleware) RequireCSRF(csrf *shared.CSRFManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			holder := session.FromContext(r.Context())
			if holder == nil || !holder.Authenticated() {
				next.ServeHTTP(w, r)
				return
			}
			if err := csrf.Verify(holder.Key(), r.Header.Get(shared.CSRFHeader)); err != nil {
				m.Metrics.ObserveDenial("csrf")
				if m.Logger != nil {
					m.Logger.Info("csrf rejected",
						slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func identityIsSuper(id *session.Identity) bool {
	return authz.IsSuperRole(id.RoleID)
}

func (m Middleware) require(kind string, allowed func(*session.Holder) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			holder := session.FromContext(r.Context())
			if holder == nil || !holder.Authenticated() {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !allowed(holder) {
				m.Metrics.ObserveDenial(kind)
				if m.Logger != nil {
					m.Logger.Info("authorization denied",
						slog.String("kind", kind), slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient access")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
