package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fresh-market/internal/config"
	"fresh-market/internal/domain"
	"fresh-market/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10

	roleIDAttempts = 3
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrNotMerchant        = errors.New("only merchants have store settings")
)

// SignupInput carries the fields shared by both signup flows. StoreName is
// required for merchants and ignored for customers.
type SignupInput struct {
	Username  string
	Email     string
	Password  string
	Phone     string
	StoreName string
}

// AuthResult is returned by a successful login.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

// UserService defines the interface for account and authentication logic
type UserService interface {
	Signup(ctx context.Context, role domain.Role, in SignupInput) (*domain.User, error)
	// Login accepts either the role-scoped ID (CUST…/MERCH…) or the email.
	Login(ctx context.Context, role domain.Role, identifier, password string) (*AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	RefreshToken(ctx context.Context, refreshToken string) (newAccessToken string, err error)
	ValidateToken(tokenString string) (*Claims, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, username, phone string) (*domain.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
	// DeleteAccount deactivates the account after checking its password and
	// revokes every refresh token.
	DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error
	UpdateStoreSettings(ctx context.Context, userID uuid.UUID, settings domain.StoreSettings) (*domain.User, error)
	// RequestPasswordReset only confirms the account exists; no mail is sent.
	RequestPasswordReset(ctx context.Context, email string) error
}

// Claims represents the JWT claims
type Claims struct {
	UserID uuid.UUID   `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type userService struct {
	userRepo         repository.UserRepository
	refreshTokenRepo repository.RefreshTokenRepository
	jwtSecret        string
	accessTTL        time.Duration
	refreshTTL       time.Duration
	logger           *zap.Logger
}

// NewUserService creates a new instance of UserService
func NewUserService(
	userRepo repository.UserRepository,
	refreshTokenRepo repository.RefreshTokenRepository,
	jwtCfg config.JWTConfig,
	logger *zap.Logger,
) UserService {
	accessTTL := time.Duration(jwtCfg.AccessExpiry) * time.Minute
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := time.Duration(jwtCfg.RefreshExpiry) * 24 * time.Hour
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	return &userService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		jwtSecret:        jwtCfg.Secret,
		accessTTL:        accessTTL,
		refreshTTL:       refreshTTL,
		logger:           logger,
	}
}

// Signup creates a customer or merchant account with a fresh role ID. A role
// ID collision is retried with a new ID.
func (s *userService) Signup(ctx context.Context, role domain.Role, in SignupInput) (*domain.User, error) {
	if role != domain.RoleCustomer && role != domain.RoleMerchant {
		return nil, fmt.Errorf("signup not available for role %q", role)
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))

	existingUser, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return nil, repository.ErrUserAlreadyExists
	}

	hashedPassword, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	for attempt := 1; ; attempt++ {
		now := time.Now().UTC()
		roleID := domain.NewRoleID(role, now, nil)

		user := &domain.User{
			ID:           uuid.New(),
			Username:     strings.TrimSpace(in.Username),
			Email:        email,
			PasswordHash: hashedPassword,
			Phone:        in.Phone,
			Role:         role,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if role == domain.RoleMerchant {
			storeName := strings.TrimSpace(in.StoreName)
			user.MerchantID = &roleID
			user.StoreName = &storeName
		} else {
			user.CustomerID = &roleID
		}

		err := s.userRepo.Create(ctx, user)
		if err == nil {
			s.logger.Info("User registered",
				zap.String("user_id", user.ID.String()),
				zap.String("role", string(role)),
				zap.String("role_id", roleID),
			)
			return user, nil
		}
		if errors.Is(err, repository.ErrRoleIDTaken) && attempt < roleIDAttempts {
			s.logger.Warn("Role ID collision, regenerating", zap.String("role_id", roleID))
			continue
		}
		if errors.Is(err, repository.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
}

func (s *userService) Login(ctx context.Context, role domain.Role, identifier, password string) (*AuthResult, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		user *domain.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.userRepo.FindByEmail(ctx, strings.ToLower(identifier))
		if err == nil && user.Role != role {
			err = repository.ErrUserNotFound
		}
	} else {
		user, err = s.userRepo.FindByRoleID(ctx, role, strings.ToUpper(identifier))
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to record last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	return &AuthResult{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

// Logout invalidates the refresh token
func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.refreshTokenRepo.Revoke(ctx, refreshToken); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			// already logged out
			return nil
		}
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RefreshToken generates a new access token using a valid refresh token
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (string, error) {
	refreshToken, err := s.refreshTokenRepo.FindByToken(ctx, refreshTokenString)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) || errors.Is(err, repository.ErrRefreshTokenRevoked) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}

	if time.Now().After(refreshToken.ExpiresAt) {
		return "", ErrTokenExpired
	}

	user, err := s.userRepo.FindByID(ctx, refreshToken.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if !user.IsActive {
		return "", ErrAccountDeactivated
	}

	newAccessToken, err := s.generateAccessToken(user)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}

	return newAccessToken, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *userService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, username, phone string) (*domain.User, error) {
	if err := s.userRepo.UpdateProfile(ctx, userID, strings.TrimSpace(username), phone); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.GetUserByID(ctx, userID)
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every outstanding refresh token.
func (s *userService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.verifyPassword(user.PasswordHash, current); err != nil {
		return ErrWrongPassword
	}

	hashed, err := s.hashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hashed); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.refreshTokenRepo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.logger.Info("Password changed", zap.String("user_id", userID.String()))
	return nil
}

func (s *userService) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.verifyPassword(user.PasswordHash, password); err != nil {
		return ErrWrongPassword
	}

	if err := s.userRepo.Deactivate(ctx, userID); err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}

	if err := s.refreshTokenRepo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.logger.Info("Account deactivated",
		zap.String("user_id", userID.String()),
		zap.String("role", string(user.Role)),
	)
	return nil
}

func (s *userService) UpdateStoreSettings(ctx context.Context, userID uuid.UUID, settings domain.StoreSettings) (*domain.User, error) {
	if err := s.userRepo.UpdateStoreSettings(ctx, userID, settings); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotMerchant
		}
		return nil, fmt.Errorf("failed to update store settings: %w", err)
	}
	return s.GetUserByID(ctx, userID)
}

func (s *userService) hashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *userService) verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// generateAccessToken signs an HS256 JWT carrying user_id and role
func (s *userService) generateAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// generateRefreshToken generates a refresh token and stores it in the database
// generateRefreshToken issues a new token after clearing the user's dead
// ones; a failed prune is logged and does not block login.
func (s *userService) generateRefreshToken(ctx context.Context, user *domain.User) (string, error) {
	now := time.Now()
	if n, err := s.refreshTokenRepo.PruneForUser(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to prune refresh tokens", zap.String("user_id", user.ID.String()), zap.Error(err))
	} else if n > 0 {
		s.logger.Debug("Pruned refresh tokens", zap.String("user_id", user.ID.String()), zap.Int64("count", n))
	}

	tokenString := uuid.New().String()
	refreshToken := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     tokenString,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}

	if err := s.refreshTokenRepo.Create(ctx, refreshToken); err != nil {
		return "", err
	}

	return tokenString, nil
}

func (s *userService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("failed to find user: %w", err)
	}
	s.logger.Info("Password reset requested", zap.String("user_id", user.ID.String()))
	return nil
}
