package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/bioshop-backend/api/responses"
	pkgAuth "github.com/angelmondragon/bioshop-backend/pkg/auth"
	"github.com/angelmondragon/bioshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
)

// OperatorAuth admits requests carrying a valid operator JWT and stores the
// operator id and role on the context for RequireRole and the handlers.
func OperatorAuth(cfg config.AdminJWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(cfg, r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithOperator(r.Context(), claims.Subject, claims.Role)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"operator_id": claims.Subject,
					"actor_role":  claims.Role,
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(cfg config.AdminJWTConfig, header string) (*pkgAuth.OperatorClaims, error) {
	token, err := bearerToken(header)
	if err != nil {
		return nil, err
	}
	claims, err := pkgAuth.ParseOperatorToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token subject missing")
	}
	return claims, nil
}

// bearerToken accepts "Bearer <jwt>" or a bare token.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	scheme, rest, found := strings.Cut(header, " ")
	token := header
	if !found && strings.EqualFold(header, "bearer") {
		token = ""
	}
	if found {
		if !strings.EqualFold(scheme, "bearer") {
			return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "unsupported authorization scheme")
		}
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return token, nil
}
