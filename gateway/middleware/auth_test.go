package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"vitrine/crypto"
)

var testSecret = []byte("unit-test-secret")

func callerAddr(b byte) crypto.Address {
	var a crypto.Address
	a[19] = b
	return a
}

func newTestAuth(anonymous bool) *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:        true,
		HMACSecret:     testSecret,
		Issuer:         "vitrine",
		Audience:       "vitrine-rpc",
		AllowAnonymous: anonymous,
	}, nil)
}

func TestAuthenticatorRecordsCaller(t *testing.T) {
	auth := newTestAuth(false)
	token, err := IssueToken(testSecret, "vitrine", "vitrine-rpc", callerAddr(7), []string{"admin"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var (
		gotCaller crypto.Address
		gotAdmin  bool
	)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller, _ = CallerFromContext(r.Context())
		gotAdmin = HasScope(r.Context(), "admin")
	}))
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", res.Code)
	}
	if gotCaller != callerAddr(7) || !gotAdmin {
		t.Fatalf("unexpected caller %s admin=%v", gotCaller, gotAdmin)
	}
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := newTestAuth(false)
	handler := auth.Middleware()(okHandler())

	wrongAudience, _ := IssueToken(testSecret, "vitrine", "other", callerAddr(1), nil, time.Minute)
	wrongSecret, _ := IssueToken([]byte("other"), "vitrine", "vitrine-rpc", callerAddr(1), nil, time.Minute)
	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "not-an-address", "iss": "vitrine", "aud": "vitrine-rpc",
	}).SignedString(testSecret)
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": callerAddr(1).String(), "iss": "vitrine", "aud": "vitrine-rpc",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString(testSecret)

	for name, header := range map[string]string{
		"missing":        "",
		"wrong audience": "Bearer " + wrongAudience,
		"wrong secret":   "Bearer " + wrongSecret,
		"bad subject":    "Bearer " + badSubject,
		"expired":        "Bearer " + expired,
	} {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, res.Code)
		}
	}
}

func TestAuthenticatorAnonymousAndScopes(t *testing.T) {
	auth := newTestAuth(true)
	res := httptest.NewRecorder()
	auth.Middleware()(okHandler()).ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected anonymous access, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	auth.Middleware("admin")(okHandler()).ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected scoped route to require a token, got %d", res.Code)
	}

	token, _ := IssueToken(testSecret, "vitrine", "vitrine-rpc", callerAddr(2), nil, time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res = httptest.NewRecorder()
	auth.Middleware("admin")(okHandler()).ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without scope, got %d", res.Code)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if seen != "abc-123" || res.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("request id not propagated: %q", seen)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc-123" {
		t.Fatalf("expected generated request id, got %q", seen)
	}
}

func TestCORSMatchesOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://shop.example"}})(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	req.Header.Set("Origin", "https://shop.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", res.Code)
	}
	if res.Header().Get("Access-Control-Allow-Origin") != "https://shop.example" {
		t.Fatalf("unexpected origin header %q", res.Header().Get("Access-Control-Allow-Origin"))
	}
	if res.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("expected preflight to list methods")
	}

	req = httptest.NewRequest(http.MethodGet, "/rpc", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected origin allowed")
	}
	if res.Code != http.StatusOK {
		t.Fatalf("expected request to pass through, got %d", res.Code)
	}
}

func TestCORSWildcardPreflightMaxAge(t *testing.T) {
	handler := CORS(CORSConfig{MaxAge: 90 * time.Second})(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	req.Header.Set("Origin", "https://any.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if got := res.Header().Get("Access-Control-Max-Age"); got != "90" {
		t.Fatalf("unexpected max age %q", got)
	}
}
