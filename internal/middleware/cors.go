package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// CORSMiddleware allows the configured storefront origins. Development
// reflects any origin so local frontends on arbitrary ports work.
func CORSMiddleware(allowedOrigins []string, isDevelopment bool) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if isDevelopment {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(r *http.Request, origin string) bool { return true }
	}
	return cors.Handler(opts)
}

// BaseStack is the middleware every route runs through, outermost first.
// Compression is left to the API routes so websocket upgrades are not
// wrapped.
func BaseStack(allowedOrigins []string, isDevelopment bool, logger *zap.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		LoggingMiddleware(logger),
		ErrorHandlingMiddleware(logger),
		CORSMiddleware(allowedOrigins, isDevelopment),
	}
}
