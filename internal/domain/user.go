package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleMerchant, RoleAdmin:
		return true
	}
	return false
}

// User is a marketplace account. Exactly one of CustomerID / MerchantID is
// set, matching Role; admins carry neither.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Phone            string     `json:"phone"`
	Role             Role       `json:"role"`
	CustomerID       *string    `json:"customerID,omitempty"`
	MerchantID       *string    `json:"merchantID,omitempty"`
	StoreName        *string    `json:"storeName,omitempty"`
	StoreDescription *string    `json:"storeDescription,omitempty"`
	IsActive         bool       `json:"isActive"`
	IsVerified       bool       `json:"isVerified"`
	LastLogin        *time.Time `json:"lastLogin,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// RoleID returns the role-scoped public identifier.
func (u *User) RoleID() string {
	switch {
	case u.CustomerID != nil:
		return *u.CustomerID
	case u.MerchantID != nil:
		return *u.MerchantID
	}
	return ""
}

// StoreSettings is the merchant-editable storefront profile.
type StoreSettings struct {
	StoreName        string `json:"storeName"`
	StoreDescription string `json:"storeDescription"`
	Phone            string `json:"phone"`
}

type RefreshToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomSuffix(r *rand.Rand, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		var idx int
		if r != nil {
			idx = r.IntN(len(idAlphabet))
		} else {
			idx = rand.IntN(len(idAlphabet))
		}
		b.WriteByte(idAlphabet[idx])
	}
	return b.String()
}

// NewRoleID builds CUST/MERCH identifiers: prefix, last 8 digits of the
// unix millis, 4 random characters.
func NewRoleID(role Role, now time.Time, r *rand.Rand) string {
	prefix := "CUST"
	if role == RoleMerchant {
		prefix = "MERCH"
	}
	millis := fmt.Sprintf("%d", now.UnixMilli())
	if len(millis) > 8 {
		millis = millis[len(millis)-8:]
	}
	return prefix + millis + randomSuffix(r, 4)
}
