package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"fresh-market/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Feature: fresh-market, Property 6: Registration stores hashed passwords
func TestProperty_RegistrationStoresHashedPasswords(t *testing.T) {
	requireDB(t)

	repo := NewUserRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("passwords are hashed with bcrypt and not stored as plaintext", prop.ForAll(
		func(email string, password string, username string) bool {
			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1", email)

			hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				t.Logf("Failed to hash password: %v", err)
				return false
			}

			now := time.Now().UTC()
			customerID := domain.NewRoleID(domain.RoleCustomer, now, nil)
			user := &domain.User{
				ID:           uuid.New(),
				Username:     username,
				Email:        email,
				PasswordHash: string(hashedPassword),
				Role:         domain.RoleCustomer,
				CustomerID:   &customerID,
				IsActive:     true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}

			if err := repo.Create(ctx, user); err != nil {
				t.Logf("Failed to create user: %v", err)
				return false
			}

			retrievedUser, err := repo.FindByEmail(ctx, email)
			if err != nil {
				t.Logf("Failed to find user: %v", err)
				return false
			}

			if retrievedUser.PasswordHash == password {
				t.Logf("Password was stored as plaintext!")
				return false
			}

			if err := bcrypt.CompareHashAndPassword([]byte(retrievedUser.PasswordHash), []byte(password)); err != nil {
				t.Logf("Stored password is not a valid bcrypt hash: %v", err)
				return false
			}

			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1", email)

			return true
		},
		gen.RegexMatch(`[a-z]{5,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{6,20}`),
		gen.RegexMatch(`[A-Z][a-z]{2,15}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewUserRepository(testDB)

	existing := createTestUser(t, domain.RoleCustomer)

	roleID := domain.NewRoleID(domain.RoleCustomer, time.Now(), nil)
	dup := &domain.User{
		ID:           uuid.New(),
		Username:     "dup",
		Email:        existing.Email,
		PasswordHash: "hash",
		Role:         domain.RoleCustomer,
		CustomerID:   &roleID,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	err := repo.Create(ctx, dup)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestUserRepository_DuplicateRoleID(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewUserRepository(testDB)

	existing := createTestUser(t, domain.RoleMerchant)

	store := "Other Store"
	dup := &domain.User{
		ID:           uuid.New(),
		Username:     "dup",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Role:         domain.RoleMerchant,
		MerchantID:   existing.MerchantID,
		StoreName:    &store,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	err := repo.Create(ctx, dup)
	assert.ErrorIs(t, err, ErrRoleIDTaken)
}

func TestUserRepository_FindByRoleID(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewUserRepository(testDB)

	merchant := createTestUser(t, domain.RoleMerchant)

	found, err := repo.FindByRoleID(ctx, domain.RoleMerchant, *merchant.MerchantID)
	require.NoError(t, err)
	assert.Equal(t, merchant.ID, found.ID)

	// the role scopes the lookup
	_, err = repo.FindByRoleID(ctx, domain.RoleCustomer, *merchant.MerchantID)
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestUserRepository_StoreSettingsOnlyForMerchants(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewUserRepository(testDB)

	merchant := createTestUser(t, domain.RoleMerchant)
	customer := createTestUser(t, domain.RoleCustomer)

	settings := domain.StoreSettings{StoreName: "Fresh Farm", StoreDescription: "Local produce", Phone: "555-0199"}

	require.NoError(t, repo.UpdateStoreSettings(ctx, merchant.ID, settings))
	updated, err := repo.FindByID(ctx, merchant.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.StoreName)
	assert.Equal(t, "Fresh Farm", *updated.StoreName)
	assert.Equal(t, "555-0199", updated.Phone)

	assert.ErrorIs(t, repo.UpdateStoreSettings(ctx, customer.ID, settings), ErrUserNotFound)
}

func TestUserRepository_Deactivate(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewUserRepository(testDB)

	customer := createTestUser(t, domain.RoleCustomer)

	require.NoError(t, repo.Deactivate(ctx, customer.ID))
	stored, err := repo.FindByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	assert.ErrorIs(t, repo.Deactivate(ctx, customer.ID), ErrUserNotFound)
	assert.ErrorIs(t, repo.Deactivate(ctx, uuid.New()), ErrUserNotFound)
}

func TestRefreshTokenRepository_RevokeAllForUser(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewRefreshTokenRepository(testDB)

	user := createTestUser(t, domain.RoleCustomer)
	tokens := []string{uuid.NewString(), uuid.NewString()}
	for _, tok := range tokens {
		require.NoError(t, repo.Create(ctx, &domain.RefreshToken{
			ID:        uuid.New(),
			UserID:    user.ID,
			Token:     tok,
			ExpiresAt: time.Now().Add(time.Hour),
			CreatedAt: time.Now(),
		}))
	}

	require.NoError(t, repo.RevokeAllForUser(ctx, user.ID))

	for _, tok := range tokens {
		_, err := repo.FindByToken(ctx, tok)
		assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
	}
}

func TestRefreshTokenRepository_PruneForUser(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewRefreshTokenRepository(testDB)

	user := createTestUser(t, domain.RoleCustomer)
	other := createTestUser(t, domain.RoleCustomer)
	now := time.Now()

	issue := func(owner uuid.UUID, expires time.Time) string {
		tok := uuid.NewString()
		require.NoError(t, repo.Create(ctx, &domain.RefreshToken{
			ID: uuid.New(), UserID: owner, Token: tok, ExpiresAt: expires, CreatedAt: now,
		}))
		return tok
	}

	live := issue(user.ID, now.Add(time.Hour))
	issue(user.ID, now.Add(-time.Hour))
	revoked := issue(user.ID, now.Add(time.Hour))
	require.NoError(t, repo.Revoke(ctx, revoked))
	othersExpired := issue(other.ID, now.Add(-time.Hour))

	n, err := repo.PruneForUser(ctx, user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.FindByToken(ctx, live)
	assert.NoError(t, err)
	_, err = repo.FindByToken(ctx, revoked)
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
	_, err = repo.FindByToken(ctx, othersExpired)
	assert.NoError(t, err)
}
