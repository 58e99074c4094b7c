package middleware

import (
	"net/http"
	"slices"

	"fresh-market/internal/domain"

	"go.uber.org/zap"
)

// RequireAdmin gates the admin dashboard.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole([]domain.Role{domain.RoleAdmin}, logger)
}

// RequireCustomer gates cart, checkout and order-owner routes.
func RequireCustomer(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole([]domain.Role{domain.RoleCustomer}, logger)
}

// RequireMerchant gates catalog writes, fulfilment and freshness uploads.
func RequireMerchant(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole([]domain.Role{domain.RoleMerchant}, logger)
}

// RequireRole must run after AuthMiddleware; a request without a role in
// its context is treated as forbidden rather than unauthenticated.
func RequireRole(allowedRoles []domain.Role, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetUserRole(r.Context())
			if !ok {
				logger.Warn("Role missing from request context", zap.String("path", r.URL.Path))
				RespondWithError(w, http.StatusForbidden, "Access denied")
				return
			}

			if !slices.Contains(allowedRoles, role) {
				userID, _ := GetUserID(r.Context())
				logger.Warn("Role not permitted for route",
					zap.String("user_id", userID.String()),
					zap.String("role", string(role)),
					zap.String("path", r.URL.Path),
				)
				RespondWithError(w, http.StatusForbidden, "Access denied. Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
