package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fresh-market/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// Feature: fresh-market, Property 43: Protected endpoints reject missing tokens
func TestProperty_ProtectedEndpointsRejectMissingTokens(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests without authorization header are rejected", prop.ForAll(
		func(pathSuffix string, method string) bool {
			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())

			path := "/" + pathSuffix
			if path == "/" {
				path = "/test"
			}

			req := httptest.NewRequest(method, path, nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.AlphaString(),
		gen.OneConstOf("GET", "POST", "PUT", "DELETE"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: fresh-market, Property 44: Expired tokens are rejected
func TestProperty_ExpiredTokensAreRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("expired tokens are rejected with 401", prop.ForAll(
		func(role string) bool {
			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())

			tokenString := signToken(t, testSecret, jwt.MapClaims{
				"user_id": uuid.NewString(),
				"role":    role,
				"exp":     time.Now().Add(-1 * time.Hour).Unix(),
			})

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+tokenString)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.OneConstOf("customer", "merchant", "admin"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: fresh-market, Property 45: Valid tokens allow processing
func TestProperty_ValidTokensAllowProcessing(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid tokens put the identity on the context", prop.ForAll(
		func(role string) bool {
			userID := uuid.New()
			tokenString := signToken(t, testSecret, jwt.MapClaims{
				"user_id": userID.String(),
				"role":    role,
				"exp":     time.Now().Add(1 * time.Hour).Unix(),
			})

			handlerCalled := false
			handler := AuthMiddleware(testSecret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true

				ctxUserID, ok1 := GetUserID(r.Context())
				ctxRole, ok2 := GetUserRole(r.Context())
				if !ok1 || !ok2 || ctxUserID != userID || ctxRole != domain.Role(role) {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}

				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+tokenString)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			return handlerCalled && w.Code == http.StatusOK
		},
		gen.OneConstOf("customer", "merchant", "admin"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_InvalidTokenFormatRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("invalid token formats are rejected", prop.ForAll(
		func(invalidToken string) bool {
			handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+invalidToken)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestParseToken_RejectsBadClaims(t *testing.T) {
	cases := map[string]jwt.MapClaims{
		"non-uuid user":  {"user_id": "42", "role": "customer", "exp": time.Now().Add(time.Hour).Unix()},
		"unknown role":   {"user_id": uuid.NewString(), "role": "root", "exp": time.Now().Add(time.Hour).Unix()},
		"missing role":   {"user_id": uuid.NewString(), "exp": time.Now().Add(time.Hour).Unix()},
		"missing userid": {"role": "customer", "exp": time.Now().Add(time.Hour).Unix()},
	}

	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseToken(testSecret, signToken(t, testSecret, claims))
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}

	wrongSecret := signToken(t, "other", jwt.MapClaims{"user_id": uuid.NewString(), "role": "customer"})
	_, _, err := ParseToken(testSecret, wrongSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired := signToken(t, testSecret, jwt.MapClaims{"user_id": uuid.NewString(), "role": "customer", "exp": time.Now().Add(-time.Minute).Unix()})
	_, _, err = ParseToken(testSecret, expired)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     domain.Role
		setRole  bool
		guard    func(*zap.Logger) func(http.Handler) http.Handler
		expected int
	}{
		{"customer on customer route", domain.RoleCustomer, true, RequireCustomer, http.StatusOK},
		{"merchant on customer route", domain.RoleMerchant, true, RequireCustomer, http.StatusForbidden},
		{"merchant on merchant route", domain.RoleMerchant, true, RequireMerchant, http.StatusOK},
		{"customer on admin route", domain.RoleCustomer, true, RequireAdmin, http.StatusForbidden},
		{"admin on admin route", domain.RoleAdmin, true, RequireAdmin, http.StatusOK},
		{"no identity", "", false, RequireMerchant, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := tt.guard(zap.NewNop())(okHandler())

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.setRole {
				req = req.WithContext(WithUser(req.Context(), uuid.New(), tt.role))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}
