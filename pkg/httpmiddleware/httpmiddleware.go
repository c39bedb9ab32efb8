// Package httpmiddleware wires the standard middleware stack onto a chi
// router: security headers, real IP extraction, request logging, panic
// recovery, CORS, timeouts, compression, and a heartbeat endpoint.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/unrolled/secure"

	"github.com/ameliahart/conversational_memory/pkg/logger"
)

// Config holds configuration for the middleware stack.
type Config struct {
	Logger   logger.Logger   // required for request logging
	CORS     *CORSConfig     // nil uses DefaultCORSConfig
	Security *secure.Options // nil uses the secure package defaults
	Timeout  time.Duration   // request timeout, defaults to 60s
}

// CORSConfig represents CORS configuration options.
type CORSConfig struct {
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowedOrigins   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns a default CORS configuration.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Authorization", logger.CorrelationIDHeader},
		AllowedOrigins:   []string{"https://*", "http://*"},
		ExposedHeaders:   []string{"Link", logger.CorrelationIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

// Apply attaches the middleware stack to the router in execution order:
// security headers, real IP, request logging, recovery, CORS, timeout,
// compression, heartbeat.
func Apply(router chi.Router, config Config) {
	router.Use(Security(config.Security))
	router.Use(middleware.RealIP)
	if config.Logger != nil {
		router.Use(config.Logger.HTTPMiddleware)
	}
	router.Use(middleware.Recoverer)

	corsConfig := DefaultCORSConfig()
	if config.CORS != nil {
		corsConfig = *config.CORS
	}
	router.Use(CORS(corsConfig))

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	router.Use(middleware.Timeout(timeout))
	router.Use(middleware.Compress(5))
	router.Use(middleware.Heartbeat("/ping"))
}

// CORS configures Cross-Origin Resource Sharing.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		AllowedOrigins:   config.AllowedOrigins,
		ExposedHeaders:   config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	})
}

// Security adds security headers.
func Security(opts *secure.Options) func(http.Handler) http.Handler {
	var s *secure.Secure
	if opts == nil {
		s = secure.New()
	} else {
		s = secure.New(*opts)
	}
	return s.Handler
}
