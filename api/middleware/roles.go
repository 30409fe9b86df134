package middleware

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// RequireRole rejects authenticated callers whose token role differs from role.
func RequireRole(role enums.UserRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			have := RoleFromContext(ctx)
			if have == string(role) {
				next.ServeHTTP(w, r)
				return
			}
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"required_role": string(role),
					"actual_role":   have,
					"path":          r.URL.Path,
				})
				logg.Warn(ctx, "auth.role_denied")
			}
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeForbidden, string(role)+" role required"))
		})
	}
}
