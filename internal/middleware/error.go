package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Data       interface{}       `json:"data,omitempty"`
	Pagination *Pagination       `json:"pagination,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	Total       int `json:"total"`
	Limit       int `json:"limit"`
}

// NewPagination derives the page count from total and limit.
func NewPagination(page, limit, total int) *Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Pagination{CurrentPage: page, TotalPages: pages, Total: total, Limit: limit}
}

// RespondWithError sends a failure envelope with a message
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithErrorDetails(w, statusCode, message, nil)
}

// RespondWithErrorDetails sends a failure envelope listing field errors
func RespondWithErrorDetails(w http.ResponseWriter, statusCode int, message string, errs []ValidationError) {
	RespondWithJSON(w, statusCode, Envelope{
		Success: false,
		Message: message,
		Errors:  errs,
	})
}

// RespondWithValidationErrors sends validation error response
func RespondWithValidationErrors(w http.ResponseWriter, errs []ValidationError) {
	RespondWithErrorDetails(w, http.StatusBadRequest, "Validation errors", errs)
}

// RespondWithSuccess wraps data in a success envelope.
func RespondWithSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	RespondWithJSON(w, statusCode, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RespondWithPage wraps a listing and its pagination in a success envelope.
func RespondWithPage(w http.ResponseWriter, data interface{}, pagination *Pagination) {
	RespondWithJSON(w, http.StatusOK, Envelope{
		Success:    true,
		Data:       data,
		Pagination: pagination,
	})
}

// ErrorHandlingMiddleware catches panics and converts them to 500 errors
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
					)

					RespondWithError(w, http.StatusInternalServerError, "Server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
