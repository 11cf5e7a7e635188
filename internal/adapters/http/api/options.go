package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and failure logs.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAllowedOrigins sets the CORS origins allowed to call the API.
// An empty list disables CORS headers.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithMaxBodyBytes caps the size of request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithOpenAPI mounts extra documentation routes, such as the embedded OpenAPI
// document, on the router.
func WithOpenAPI(mount func(chi.Router)) Option {
	return func(s *Server) {
		s.docs = mount
	}
}
