package middleware

import (
	"net/http"

	"github.com/angelmondragon/bioshop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
)

// RequireRole lets the request through when the operator holds any of roles.
// It must run after OperatorAuth.
func RequireRole(logg *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if _, ok := allowed[role]; !ok {
				if logg != nil {
					ctx := logg.WithFields(r.Context(), map[string]any{
						"operator_id": OperatorIDFromContext(r.Context()),
						"role":        role,
					})
					logg.Warn(ctx, "operator role denied")
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "operator role not permitted"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
