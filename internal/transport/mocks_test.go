package transport

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"fresh-market/internal/config"
	"fresh-market/internal/domain"
	"fresh-market/internal/middleware"
	"fresh-market/internal/repository"
	"fresh-market/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

var testJWT = config.JWTConfig{Secret: testSecret, AccessExpiry: 15, RefreshExpiry: 7}

// Mock repositories for testing

type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) find(match func(*domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if match(user) {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.ID == id })
}

func (m *mockUserRepository) FindByRoleID(ctx context.Context, role domain.Role, roleID string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.Role == role && u.RoleID() == roleID })
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, username, phone string) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.Username = username
	user.Phone = phone
	return nil
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *mockUserRepository) UpdateStoreSettings(ctx context.Context, id uuid.UUID, settings domain.StoreSettings) error {
	user, err := m.FindByID(ctx, id)
	if err != nil || user.Role != domain.RoleMerchant {
		return repository.ErrUserNotFound
	}
	user.StoreName = &settings.StoreName
	user.StoreDescription = &settings.StoreDescription
	user.Phone = settings.Phone
	return nil
}

func (m *mockUserRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.LastLogin = &at
	return nil
}

func (m *mockUserRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	user, err := m.FindByID(ctx, id)
	if err != nil || !user.IsActive {
		return repository.ErrUserNotFound
	}
	user.IsActive = false
	return nil
}

type mockRefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockRefreshTokenRepository) PruneForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, token := range m.tokens {
		if token.UserID == userID && (token.Revoked || token.ExpiresAt.Before(now)) {
			delete(m.tokens, key)
			n++
		}
	}
	return n, nil
}

// stubOrderService answers every call with the configured error, or a
// fixed order when err is nil.
type stubOrderService struct {
	err   error
	order *domain.Order
	calls []string
}

func (s *stubOrderService) result(call string) (*domain.Order, error) {
	s.calls = append(s.calls, call)
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

func (s *stubOrderService) Create(ctx context.Context, customerID uuid.UUID, in service.PlaceOrderInput) (*domain.Order, error) {
	return s.result("Create")
}

func (s *stubOrderService) GetForCustomer(ctx context.Context, customerID, orderID uuid.UUID) (*domain.Order, error) {
	return s.result("GetForCustomer")
}

func (s *stubOrderService) GetForMerchant(ctx context.Context, merchantID, orderID uuid.UUID) (*domain.Order, error) {
	return s.result("GetForMerchant")
}

func (s *stubOrderService) ListForCustomer(ctx context.Context, customerID uuid.UUID, page domain.Page) ([]*domain.Order, int, error) {
	order, err := s.result("ListForCustomer")
	if err != nil {
		return nil, 0, err
	}
	return []*domain.Order{order}, 1, nil
}

func (s *stubOrderService) ListForMerchant(ctx context.Context, merchantID uuid.UUID, status domain.OrderStatus, page domain.Page) ([]*domain.Order, int, error) {
	order, err := s.result("ListForMerchant")
	if err != nil {
		return nil, 0, err
	}
	return []*domain.Order{order}, 1, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, merchantID, orderID uuid.UUID, status domain.OrderStatus, note string) (*domain.Order, error) {
	return s.result("UpdateStatus")
}

func (s *stubOrderService) Cancel(ctx context.Context, customerID, orderID uuid.UUID) (*domain.Order, error) {
	return s.result("Cancel")
}

func (s *stubOrderService) Rate(ctx context.Context, customerID, orderID uuid.UUID, rating int, review string) (*domain.Order, error) {
	return s.result("Rate")
}

func (s *stubOrderService) UpdateTracking(ctx context.Context, merchantID, orderID uuid.UUID, trackingNumber string, estimatedDelivery *time.Time) (*domain.Order, error) {
	return s.result("UpdateTracking")
}

// signedToken issues an access token the auth middleware accepts.
func signedToken(t *testing.T, userID uuid.UUID, role domain.Role) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"role":    string(role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

type routeRegistrar interface {
	RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler)
}

func newTestRouter(h routeRegistrar) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r, middleware.AuthMiddleware(testSecret, zap.NewNop()))
	return r
}
