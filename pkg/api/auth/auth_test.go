package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/timeutil"
)

func testSecConfig() SecConfig {
	var c config.SecurityConfig
	c.APIKeys.Backend = []string{"bk"}
	c.APIKeys.Frontend = []string{"fk"}
	c.APIKeys.Admin = []string{"ak"}
	c.RateLimit.RPS = 1000
	c.RateLimit.Burst = 1000
	c.CORS.AllowedOrigins = []string{"https://app.example.com"}
	return NewSecConfig(c)
}

func withSigningKeys(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.APIKeys.Backend = []string{"bk"}
	config.SetRuntime(config.RuntimeFromConfig(cfg))
	t.Cleanup(func() { config.SetRuntime(nil) })
}

type call struct {
	method, path string
	headers      map[string]string
}

// serve runs one request through the gateway and returns the context and
// the user the handler saw, if it was reached.
func serve(t *testing.T, g *Gateway, c call) (*fasthttp.RequestCtx, string, bool) {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(c.method)
	ctx.Request.SetRequestURI(c.path)
	for k, v := range c.headers {
		ctx.Request.Header.Set(k, v)
	}
	var reached bool
	var user string
	g.Middleware(func(ctx *fasthttp.RequestCtx) {
		reached = true
		user = router.User(ctx)
	})(ctx)
	return ctx, user, reached
}

func TestGatewayRoles(t *testing.T) {
	withSigningKeys(t)
	g := NewGateway(testSecConfig(), nil)
	t.Cleanup(g.Shutdown)
	sig := CreateHMACSignature("u1", "bk")

	cases := []struct {
		name    string
		c       call
		status  int
		reached bool
		user    string
	}{
		{"health is public", call{"GET", "/healthz", nil}, 200, true, ""},
		{"no key", call{"GET", "/v1/users", nil}, 401, false, ""},
		{"unknown key", call{"GET", "/v1/users", map[string]string{"X-API-Key": "nope"}}, 401, false, ""},
		{"bearer backend", call{"POST", "/v1/sign", map[string]string{"Authorization": "Bearer bk"}}, 200, true, ""},
		{"backend acts for user", call{"GET", "/v1/conversations", map[string]string{"X-API-Key": "bk", "X-User-ID": "u1"}}, 200, true, "u1"},
		{"frontend signed", call{"GET", "/v1/conversations", map[string]string{"X-API-Key": "fk", "X-User-ID": "u1", "X-User-Signature": sig}}, 200, true, "u1"},
		{"frontend unsigned", call{"GET", "/v1/conversations", map[string]string{"X-API-Key": "fk", "X-User-ID": "u1"}}, 401, false, ""},
		{"frontend bad signature", call{"GET", "/v1/conversations", map[string]string{"X-API-Key": "fk", "X-User-ID": "u2", "X-User-Signature": sig}}, 401, false, ""},
		{"frontend cannot sign", call{"POST", "/v1/sign", map[string]string{"X-API-Key": "fk"}}, 403, false, ""},
		{"frontend cannot register users", call{"POST", "/v1/users", map[string]string{"X-API-Key": "fk"}}, 403, false, ""},
		{"backend blocked from admin", call{"GET", "/admin/stats", map[string]string{"X-API-Key": "bk"}}, 403, false, ""},
		{"admin on admin", call{"GET", "/admin/stats", map[string]string{"X-API-Key": "ak"}}, 200, true, ""},
		{"admin off admin", call{"GET", "/v1/users", map[string]string{"X-API-Key": "ak"}}, 403, false, ""},
		{"reserved user id", call{"GET", "/v1/users", map[string]string{"X-API-Key": "bk", "X-User-ID": "a:b"}}, 400, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, user, reached := serve(t, g, tc.c)
			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			assert.Equal(t, tc.reached, reached)
			assert.Equal(t, tc.user, user)
		})
	}
}

func TestGatewayCORSAndOptions(t *testing.T) {
	g := NewGateway(testSecConfig(), nil)
	t.Cleanup(g.Shutdown)

	ctx, _, reached := serve(t, g, call{"OPTIONS", "/v1/users", map[string]string{"Origin": "https://app.example.com"}})
	assert.False(t, reached)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "https://app.example.com", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))

	ctx, _, _ = serve(t, g, call{"OPTIONS", "/v1/users", map[string]string{"Origin": "https://evil.example.com"}})
	assert.Empty(t, ctx.Response.Header.Peek("Access-Control-Allow-Origin"))
}

func TestGatewayIPWhitelist(t *testing.T) {
	cfg := testSecConfig()
	cfg.IPWhitelist = []string{"10.0.0.1"}
	g := NewGateway(cfg, nil)
	t.Cleanup(g.Shutdown)

	ctx, _, reached := serve(t, g, call{"GET", "/healthz", nil})
	assert.False(t, reached)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}

func TestGatewayRateLimitsPerUser(t *testing.T) {
	cfg := testSecConfig()
	cfg.RPS = 0.001
	cfg.Burst = 1
	g := NewGateway(cfg, nil)
	t.Cleanup(g.Shutdown)

	as := func(user string) call {
		return call{"GET", "/v1/conversations", map[string]string{"X-API-Key": "bk", "X-User-ID": user}}
	}
	ctx, _, _ := serve(t, g, as("u1"))
	require.Equal(t, 200, ctx.Response.StatusCode())
	ctx, _, _ = serve(t, g, as("u1"))
	assert.Equal(t, fasthttp.StatusTooManyRequests, ctx.Response.StatusCode())
	ctx, _, _ = serve(t, g, as("u2"))
	assert.Equal(t, 200, ctx.Response.StatusCode(), "buckets are per identity")
}

func TestLimiterEvictsIdle(t *testing.T) {
	clock := timeutil.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	p := newLimiterPool(10, 10, clock)
	t.Cleanup(p.Shutdown)

	p.Allow("a")
	clock.Advance(5 * time.Minute)
	p.Allow("b")
	clock.Advance(6 * time.Minute)
	p.evict()
	assert.Equal(t, 1, p.size())
}

func TestShutdownWithoutUse(t *testing.T) {
	p := newLimiterPool(1, 1, nil)
	p.Shutdown()
	p.Shutdown()
}

func TestSignatureRoundTrip(t *testing.T) {
	withSigningKeys(t)
	sig := CreateHMACSignature("user-42", "bk")
	assert.Len(t, sig, 64)
	assert.True(t, VerifyHMACSignature("user-42", sig))
	assert.False(t, VerifyHMACSignature("user-43", sig))
}
