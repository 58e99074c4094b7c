package transport

import (
	"net/http"

	"fresh-market/internal/middleware"
	"fresh-market/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type DashboardHandler struct {
	dashboards service.DashboardService
	logger     *zap.Logger
}

func NewDashboardHandler(dashboards service.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards, logger: logger}
}

func (h *DashboardHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/dashboard", func(r chi.Router) {
		r.Use(authMiddleware)
		r.With(middleware.RequireCustomer(h.logger)).Get("/customer", h.Customer)
		r.With(middleware.RequireAdmin(h.logger)).Get("/admin", h.Admin)
	})
}

func (h *DashboardHandler) Customer(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	dash, err := h.dashboards.Customer(r.Context(), customerID)
	if err != nil {
		serverError(w, h.logger, "Failed to load customer dashboard", err, zap.String("user_id", customerID.String()))
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", dash)
}

func (h *DashboardHandler) Admin(w http.ResponseWriter, r *http.Request) {
	dash, err := h.dashboards.Admin(r.Context())
	if err != nil {
		serverError(w, h.logger, "Failed to load admin dashboard", err)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", dash)
}
