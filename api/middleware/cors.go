package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var devCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// CORS returns middleware allowing the storefront origin. Dev environments also accept local dev servers.
func CORS(frontendURL string, dev bool) func(http.Handler) http.Handler {
	origins := []string{}
	if trimmed := strings.TrimRight(strings.TrimSpace(frontendURL), "/"); trimmed != "" {
		origins = append(origins, trimmed)
	}
	if dev {
		origins = append(origins, devCORSOrigins...)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
