package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fresh-market/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user with this email already exists")
	ErrRoleIDTaken       = errors.New("role identifier already in use")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByRoleID(ctx context.Context, role domain.Role, roleID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, username, phone string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateStoreSettings(ctx context.Context, id uuid.UUID, settings domain.StoreSettings) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	// Deactivate closes an account without deleting it; orders keep their
	// customer and merchant references.
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, email, password_hash, phone, role, customer_id, merchant_id,
	store_name, store_description, is_active, is_verified, last_login, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.Role,
		&user.CustomerID,
		&user.MerchantID,
		&user.StoreName,
		&user.StoreDescription,
		&user.IsActive,
		&user.IsVerified,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// Create inserts a new user. Email and role-ID collisions are reported as
// distinct errors so the caller can regenerate an ID.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, phone, role, customer_id, merchant_id,
			store_name, store_description, is_active, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Phone,
		user.Role,
		user.CustomerID,
		user.MerchantID,
		user.StoreName,
		user.StoreDescription,
		user.IsActive,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		switch {
		case isUniqueViolation(err, "users_email_key"):
			return ErrUserAlreadyExists
		case isUniqueViolation(err, "users_customer_id_key"), isUniqueViolation(err, "users_merchant_id_key"):
			return ErrRoleIDTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindByRoleID looks a user up by CUST.../MERCH... identifier within a role.
func (r *userRepository) FindByRoleID(ctx context.Context, role domain.Role, roleID string) (*domain.User, error) {
	column := "customer_id"
	if role == domain.RoleMerchant {
		column = "merchant_id"
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND ` + column + ` = $2`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, role, roleID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by role ID: %w", err)
	}

	return user, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uuid.UUID, username, phone string) error {
	return r.update(ctx, `UPDATE users SET username = $2, phone = $3 WHERE id = $1`, id, username, phone)
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.update(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
}

func (r *userRepository) UpdateStoreSettings(ctx context.Context, id uuid.UUID, settings domain.StoreSettings) error {
	query := `
		UPDATE users
		SET store_name = $2, store_description = $3, phone = $4
		WHERE id = $1 AND role = 'merchant'
	`
	return r.update(ctx, query, id, settings.StoreName, settings.StoreDescription, settings.Phone)
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
}

func (r *userRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1 AND is_active`, id)
}

func (r *userRepository) update(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
