package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS creates a CORS middleware allowing the marketing-site origins that
// embed the demo widgets
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300, // Maximum value not ignored by any of major browsers
	})

	return c.Handler
}
