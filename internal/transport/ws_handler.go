package transport

import (
	"errors"
	"net/http"

	"fresh-market/internal/middleware"
	"fresh-market/internal/notify"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WSHandler upgrades authenticated clients onto the notification hub. The
// token travels in the query string since browsers cannot set headers on
// websocket requests.
type WSHandler struct {
	hub       *notify.Hub
	jwtSecret string
	logger    *zap.Logger
}

func NewWSHandler(hub *notify.Hub, jwtSecret string, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, jwtSecret: jwtSecret, logger: logger}
}

func (h *WSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.Serve)
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		middleware.RespondWithError(w, http.StatusUnauthorized, "No token, authorization denied")
		return
	}

	userID, role, err := middleware.ParseToken(h.jwtSecret, token)
	if err != nil {
		if errors.Is(err, middleware.ErrTokenExpired) {
			middleware.RespondWithError(w, http.StatusUnauthorized, "Token expired")
			return
		}
		middleware.RespondWithError(w, http.StatusUnauthorized, "Token is not valid")
		return
	}

	room := notify.RoomFor(role, userID)
	if room == "" {
		middleware.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	// ServeWS has already answered the request when the upgrade fails.
	if err := h.hub.ServeWS(w, r, room); err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err), zap.String("user_id", userID.String()))
		return
	}
	h.logger.Debug("Websocket client joined", zap.String("room", room))
}
