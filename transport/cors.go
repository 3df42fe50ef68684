package transport

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig configures CORS behavior for HTTP handlers.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. "*" allows any origin.
	AllowOrigins []string

	// AllowMethods defaults to GET, POST, OPTIONS.
	AllowMethods []string

	// AllowHeaders defaults to Content-Type, Authorization, X-Request-ID.
	AllowHeaders []string

	// ExposeHeaders lists headers the browser may read.
	ExposeHeaders []string

	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Default: 86400.
	MaxAge int
}

// CORS wraps next with CORS headers and answers preflight requests.
func CORS(config CORSConfig, next http.Handler) http.Handler {
	if len(config.AllowMethods) == 0 {
		config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(config.AllowHeaders) == 0 {
		config.AllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if config.MaxAge == 0 {
		config.MaxAge = 86400
	}
	anyOrigin := slices.Contains(config.AllowOrigins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := ""
		switch {
		case anyOrigin:
			allowed = "*"
		case origin != "" && slices.Contains(config.AllowOrigins, origin):
			allowed = origin
			w.Header().Add("Vary", "Origin")
		}
		if allowed == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowed)
		if config.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowMethods, ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowHeaders, ", "))
			h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if len(config.ExposeHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", strings.Join(config.ExposeHeaders, ", "))
		}
		next.ServeHTTP(w, r)
	})
}
