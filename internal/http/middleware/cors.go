package middleware

import (
	"net/http"
	"slices"

	"github.com/rs/cors"

	"github.com/davidbz/ember/internal/config"
)

// correlationHeaders are readable by browser clients and may be sent by them.
var correlationHeaders = []string{requestIDHeader, traceIDHeader}

// CORS applies the configured cross-origin policy. Browser clients can always
// read the correlation headers and may supply their own X-Request-Id.
func CORS(cfg *config.CORSConfig) Middleware {
	if cfg == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	allowedHeaders := slices.Clone(cfg.AllowedHeaders)
	if !slices.Contains(allowedHeaders, "*") && !slices.Contains(allowedHeaders, requestIDHeader) {
		allowedHeaders = append(allowedHeaders, requestIDHeader)
	}

	policy := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   correlationHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})

	return policy.Handler
}
