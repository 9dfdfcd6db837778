package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig controls cross-origin access to the RPC and stream endpoints.
// Empty lists fall back to a wildcard origin and the methods and headers the
// storefront clients send.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsPolicy struct {
	any         bool
	origins     map[string]struct{}
	methods     string
	headers     string
	credentials bool
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	p := corsPolicy{
		origins:     make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods:     joinOr(cfg.AllowedMethods, http.MethodGet, http.MethodPost, http.MethodOptions),
		headers:     joinOr(cfg.AllowedHeaders, "Content-Type", "Authorization", RequestIDHeader),
		credentials: cfg.AllowCredentials,
	}
	if len(cfg.AllowedOrigins) == 0 {
		p.any = true
	}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		if origin == "*" {
			p.any = true
			continue
		}
		p.origins[origin] = struct{}{}
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(cfg.MaxAge / time.Second))
	}
	return p
}

func joinOr(values []string, fallback ...string) string {
	if len(values) == 0 {
		values = fallback
	}
	return strings.Join(values, ", ")
}

// allowOrigin returns the value for Access-Control-Allow-Origin, or "" when
// the origin is not permitted.
func (p corsPolicy) allowOrigin(origin string) string {
	if p.any {
		return "*"
	}
	if origin == "" {
		return ""
	}
	if _, ok := p.origins[strings.ToLower(origin)]; ok {
		return origin
	}
	return ""
}

// CORS answers preflight requests and decorates responses with the
// configured policy.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if allowed := policy.allowOrigin(r.Header.Get("Origin")); allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				if !policy.any {
					h.Add("Vary", "Origin")
				}
				if policy.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", policy.methods)
			h.Set("Access-Control-Allow-Headers", policy.headers)
			if policy.maxAge != "" {
				h.Set("Access-Control-Max-Age", policy.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
