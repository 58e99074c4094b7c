package transport

import (
	"net/http"
	"strconv"

	"fresh-market/internal/domain"
	"fresh-market/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const serverErrorMessage = "Server error"

// decodeRequest decodes and validates the body, answering 400 itself when
// either step fails.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}, logger *zap.Logger) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		logger.Debug("Request validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// currentUser returns the authenticated user id, answering 401 when absent.
func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "No token, authorization denied")
		return uuid.Nil, false
	}
	return userID, true
}

// idParam parses a uuid route parameter, answering 404 for malformed ids.
func idParam(w http.ResponseWriter, r *http.Request, name, notFound string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, notFound)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func pageFromQuery(r *http.Request) domain.Page {
	return domain.NewPage(queryInt(r, "page", 1), queryInt(r, "limit", domain.DefaultPageSize))
}

func respondPage(w http.ResponseWriter, data interface{}, page domain.Page, total int) {
	middleware.RespondWithPage(w, data, middleware.NewPagination(page.Number, page.Limit, total))
}

func serverError(w http.ResponseWriter, logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	logger.Error(msg, append(fields, zap.Error(err))...)
	middleware.RespondWithError(w, http.StatusInternalServerError, serverErrorMessage)
}
