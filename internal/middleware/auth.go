package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fresh-market/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// ParseToken verifies an HS256 access token and returns its user_id and
// role claims. The websocket endpoint uses it for query-string tokens.
func ParseToken(jwtSecret, tokenString string) (uuid.UUID, domain.Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, "", ErrTokenExpired
		}
		return uuid.Nil, "", ErrTokenInvalid
	}

	if !token.Valid {
		return uuid.Nil, "", ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", ErrTokenInvalid
	}

	rawID, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, "", ErrTokenInvalid
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", ErrTokenInvalid
	}

	rawRole, ok := claims["role"].(string)
	role := domain.Role(rawRole)
	if !ok || !role.Valid() {
		return uuid.Nil, "", ErrTokenInvalid
	}

	return userID, role, nil
}

// AuthMiddleware validates JWT tokens and extracts user claims
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing authorization header")
				RespondWithError(w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debug("Invalid authorization header format")
				RespondWithError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			userID, role, err := ParseToken(jwtSecret, parts[1])
			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				if errors.Is(err, ErrTokenExpired) {
					RespondWithError(w, http.StatusUnauthorized, "Token expired")
				} else {
					RespondWithError(w, http.StatusUnauthorized, "Token is not valid")
				}
				return
			}

			ctx := WithUser(r.Context(), userID, role)

			logger.Debug("User authenticated",
				zap.String("user_id", userID.String()),
				zap.String("role", string(role)),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUser stores the authenticated identity in ctx.
func WithUser(ctx context.Context, userID uuid.UUID, role domain.Role) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRoleKey, role)
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetUserRole extracts user role from request context
func GetUserRole(ctx context.Context) (domain.Role, bool) {
	role, ok := ctx.Value(UserRoleKey).(domain.Role)
	return role, ok
}
