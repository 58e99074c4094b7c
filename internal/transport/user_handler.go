package transport

import (
	"errors"
	"net/http"

	"fresh-market/internal/domain"
	"fresh-market/internal/middleware"
	"fresh-market/internal/repository"
	"fresh-market/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SignupRequest represents the signup payload for both portals
type SignupRequest struct {
	Username  string `json:"username" validate:"required,min=2,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Phone     string `json:"phone" validate:"required,min=7,max=20"`
	StoreName string `json:"storeName" validate:"omitempty,max=100"`
}

// LoginRequest takes the role ID (CUST…/MERCH…) or the email as userID
type LoginRequest struct {
	UserID   string `json:"userID" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest represents the token refresh and logout payload
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type UpdateProfileRequest struct {
	Username string `json:"username" validate:"required,min=2,max=50"`
	Phone    string `json:"phone" validate:"omitempty,min=7,max=20"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by signup and login
type AuthResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	User         *domain.User `json:"user"`
}

// UserHandler handles authentication and profile requests
type UserHandler struct {
	userService service.UserService
	logger      *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// RegisterRoutes registers the auth and user routes
func (h *UserHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/customer-signup", h.signup(domain.RoleCustomer))
		r.Post("/merchant-signup", h.signup(domain.RoleMerchant))
		r.Post("/customer-login", h.login(domain.RoleCustomer))
		r.Post("/merchant-login", h.login(domain.RoleMerchant))
		r.Post("/refresh-token", h.RefreshToken)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
		r.Get("/verify-email/{token}", h.VerifyEmail)

		r.With(authMiddleware).Post("/logout", h.Logout)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Put("/password", h.ChangePassword)
		r.Delete("/account", h.DeleteAccount)
	})
}

func (h *UserHandler) signup(role domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if !decodeRequest(w, r, &req, h.logger) {
			return
		}
		if role == domain.RoleMerchant && req.StoreName == "" {
			middleware.RespondWithValidationErrors(w, []middleware.ValidationError{
				{Field: "storeName", Message: "This field is required"},
			})
			return
		}

		user, err := h.userService.Signup(r.Context(), role, service.SignupInput{
			Username:  req.Username,
			Email:     req.Email,
			Password:  req.Password,
			Phone:     req.Phone,
			StoreName: req.StoreName,
		})
		if err != nil {
			if errors.Is(err, repository.ErrUserAlreadyExists) {
				middleware.RespondWithError(w, http.StatusBadRequest, "User already exists with this email")
				return
			}
			serverError(w, h.logger, "Signup failed", err, zap.String("role", string(role)))
			return
		}

		result, err := h.userService.Login(r.Context(), role, user.Email, req.Password)
		if err != nil {
			serverError(w, h.logger, "Login after signup failed", err, zap.String("user_id", user.ID.String()))
			return
		}

		h.logger.Info("User registered", zap.String("user_id", user.ID.String()), zap.String("role", string(role)))

		message := "Customer registered successfully"
		if role == domain.RoleMerchant {
			message = "Merchant registered successfully"
		}
		middleware.RespondWithSuccess(w, http.StatusCreated, message, AuthResponse{
			Token:        result.AccessToken,
			RefreshToken: result.RefreshToken,
			User:         result.User,
		})
	}
}

func (h *UserHandler) login(role domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeRequest(w, r, &req, h.logger) {
			return
		}

		result, err := h.userService.Login(r.Context(), role, req.UserID, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidCredentials):
				middleware.RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
			case errors.Is(err, service.ErrAccountDeactivated):
				middleware.RespondWithError(w, http.StatusUnauthorized, "Account is deactivated")
			default:
				serverError(w, h.logger, "Login failed", err)
			}
			return
		}

		h.logger.Info("User logged in", zap.String("user_id", result.User.ID.String()))
		middleware.RespondWithSuccess(w, http.StatusOK, "Login successful", AuthResponse{
			Token:        result.AccessToken,
			RefreshToken: result.RefreshToken,
			User:         result.User,
		})
	}
}

// Logout revokes the refresh token when one is supplied
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := middleware.DecodeAndValidate(r, &req); err == nil {
		if err := h.userService.Logout(r.Context(), req.RefreshToken); err != nil {
			serverError(w, h.logger, "Logout failed", err)
			return
		}
	}

	middleware.RespondWithSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// RefreshToken issues a new access token
func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	token, err := h.userService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.logger.Debug("Token refresh failed", zap.Error(err))
		switch {
		case errors.Is(err, service.ErrTokenExpired):
			middleware.RespondWithError(w, http.StatusUnauthorized, "Token expired")
		case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrAccountDeactivated):
			middleware.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
		default:
			serverError(w, h.logger, "Token refresh failed", err)
		}
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, "", map[string]string{"token": token})
}

func (h *UserHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.userService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, h.logger, "Password reset request failed", err)
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, "Password reset link sent to your email", nil)
}

// ResetPassword and VerifyEmail acknowledge without acting; mail delivery
// is not part of this service.
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Password reset successfully", nil)
}

func (h *UserHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Email verification requested", zap.Int("token_length", len(chi.URLParam(r, "token"))))
	middleware.RespondWithSuccess(w, http.StatusOK, "Email verified successfully", nil)
}

// GetProfile returns the authenticated user
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, h.logger, "Failed to get user profile", err, zap.String("user_id", userID.String()))
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, "", user)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), userID, req.Username, req.Phone)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, h.logger, "Failed to update profile", err, zap.String("user_id", userID.String()))
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, "Profile updated successfully", user)
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.userService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrWrongPassword):
			middleware.RespondWithError(w, http.StatusBadRequest, "Current password is incorrect")
		case errors.Is(err, repository.ErrUserNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "User not found")
		default:
			serverError(w, h.logger, "Failed to change password", err, zap.String("user_id", userID.String()))
		}
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, "Password changed successfully", nil)
}

func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req DeleteAccountRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.userService.DeleteAccount(r.Context(), userID, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrWrongPassword):
			middleware.RespondWithError(w, http.StatusBadRequest, "Password is incorrect")
		case errors.Is(err, repository.ErrUserNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "User not found")
		default:
			serverError(w, h.logger, "Failed to delete account", err, zap.String("user_id", userID.String()))
		}
		return
	}

	middleware.RespondWithSuccess(w, http.StatusOK, "Account deleted successfully", nil)
}
