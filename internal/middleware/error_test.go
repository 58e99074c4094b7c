package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Feature: fresh-market, Property 51: Errors have consistent structure
func TestProperty_ErrorsHaveConsistentStructure(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("all error responses share the envelope", prop.ForAll(
		func(message string) bool {
			standardCodes := []int{
				http.StatusBadRequest,
				http.StatusUnauthorized,
				http.StatusForbidden,
				http.StatusNotFound,
				http.StatusConflict,
				http.StatusTooManyRequests,
				http.StatusInternalServerError,
			}

			statusCode := standardCodes[len(message)%len(standardCodes)]

			if len(message) == 0 {
				message = "test error"
			}

			w := httptest.NewRecorder()
			RespondWithError(w, statusCode, message)

			if w.Code != statusCode {
				return false
			}

			if w.Header().Get("Content-Type") != "application/json" {
				return false
			}

			var response Envelope
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				return false
			}

			return !response.Success && response.Message == message && response.Data == nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ValidationErrorsAreListed(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("validation failures are listed under errors", prop.ForAll(
		func(field string, message string) bool {
			errs := []ValidationError{{Field: field, Message: message}}

			w := httptest.NewRecorder()
			RespondWithValidationErrors(w, errs)

			if w.Code != http.StatusBadRequest {
				return false
			}

			var response Envelope
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				return false
			}

			return !response.Success &&
				response.Message == "Validation errors" &&
				len(response.Errors) == 1 &&
				response.Errors[0].Field == field
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRespondWithPage(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithPage(w, []string{"a", "b"}, NewPagination(2, 2, 5))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, true, body["success"])
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(2), pagination["currentPage"])
	assert.Equal(t, float64(3), pagination["totalPages"])
	assert.Equal(t, float64(5), pagination["total"])
	assert.Equal(t, float64(2), pagination["limit"])
	assert.NotContains(t, body, "errors")
}

func TestRespondWithSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithSuccess(w, http.StatusCreated, "Order created successfully", map[string]string{"id": "1"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var response Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, "Order created successfully", response.Message)
	assert.NotNil(t, response.Data)
}

func TestErrorHandlingMiddleware_RecoversPanics(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Server error", response.Message)
}
