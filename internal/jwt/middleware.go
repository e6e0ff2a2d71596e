package jwt

import (
	"net/http"

	"meditrack/internal/domain/user"
)

// AuthMiddlewareFunc wraps a handler with token validation and role-based
// access control. Validated claims are injected into the request context for
// RequireClaims.
func AuthMiddlewareFunc(mgr *Manager, allowedRoles ...user.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, err := FromAuthorization(r)
			if err != nil {
				deny(w, http.StatusUnauthorized, err)
				return
			}

			_, claims, err := mgr.ParseAndValidate(raw)
			if err != nil {
				deny(w, http.StatusUnauthorized, err)
				return
			}

			if err := RoleAllowed(claims, allowedRoles...); err != nil {
				deny(w, http.StatusForbidden, err)
				return
			}

			next(w, r.WithContext(InjectClaims(r.Context(), claims)))
		}
	}
}

// RequireClaims extracts claims placed by AuthMiddlewareFunc, nil when the
// request never passed through it.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}

func deny(w http.ResponseWriter, status int, err error) {
	http.Error(w, err.Error(), status)
}
