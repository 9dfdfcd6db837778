package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"vitrine/crypto"
)

type AuthConfig struct {
	Enabled    bool
	HMACSecret []byte
	Issuer     string
	Audience   string
	ScopeClaim string
	// AllowAnonymous lets requests without a bearer token through without a
	// caller; handlers decide which operations need one.
	AllowAnonymous bool
	ClockSkew      time.Duration
}

type contextKey string

const (
	ContextKeyToken  contextKey = "vitrine.token"
	ContextKeyScopes contextKey = "vitrine.scopes"
	ContextKeyCaller contextKey = "vitrine.caller"
)

var (
	errMissingSecret = errors.New("auth secret not configured")
	errBadSubject    = errors.New("subject is not a marketplace address")
)

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger, secret: append([]byte(nil), cfg.HMACSecret...)}
}

// Middleware authenticates the bearer token, when present, and records the
// caller address (the token subject) and scopes on the request context.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				if a.cfg.AllowAnonymous && len(requiredScopes) == 0 {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			caller, scopes, err := a.Verify(tokenString)
			if err != nil {
				a.logger.Warn("auth: token rejected", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if len(requiredScopes) > 0 && !hasScopes(scopes, requiredScopes) {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyToken, tokenString)
			ctx = context.WithValue(ctx, ContextKeyScopes, scopes)
			ctx = context.WithValue(ctx, ContextKeyCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Verify parses and validates a token, returning its subject address and
// scopes.
func (a *Authenticator) Verify(tokenString string) (crypto.Address, []string, error) {
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return crypto.Address{}, nil, err
	}
	subject, _ := claims["sub"].(string)
	caller, err := crypto.DecodeAddress(strings.TrimSpace(subject))
	if err != nil {
		return crypto.Address{}, nil, errBadSubject
	}
	return caller, extractScopes(claims, a.cfg.ScopeClaim), nil
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (crypto.Address, bool) {
	caller, ok := ctx.Value(ContextKeyCaller).(crypto.Address)
	return caller, ok
}

// HasScope reports whether the authenticated caller carries scope.
func HasScope(ctx context.Context, scope string) bool {
	scopes, _ := ctx.Value(ContextKeyScopes).([]string)
	return hasScopes(scopes, []string{scope})
}

// IssueToken signs a token for subject. Operators use it to mint credentials
// for sellers, buyers and administrators.
func IssueToken(secret []byte, issuer, audience string, subject crypto.Address, scopes []string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errMissingSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject.String(),
		"iat": now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errMissingSecret
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience missing")
		}
	}
	return nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
