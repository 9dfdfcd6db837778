package routes

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vitrine/gateway/middleware"
)

func TestRouterMountsSurfaces(t *testing.T) {
	rpc := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "rpc")
	})
	handler := New(Config{
		RPCHandler:    rpc,
		RateLimiter:   middleware.NewRateLimiter(middleware.RateLimit{RequestsPerSecond: 1, Burst: 1}, nil),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{Enabled: true}, nil),
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	resp, err = http.Post(srv.URL+"/rpc", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "rpc", string(body))

	resp, err = http.Post(srv.URL+"/rpc", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), `vitrine_http_requests_total{class="2xx",route="rpc"} 1`)
	require.Contains(t, string(body), `vitrine_http_response_bytes_total{route="rpc"} 3`)
}
