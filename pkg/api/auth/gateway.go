// Package auth authenticates API keys, resolves the acting user and
// enforces per-role route access and rate limits.
package auth

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/timeutil"
)

// Gateway wraps the API router with authentication. Call Shutdown to stop
// its limiter cleanup.
type Gateway struct {
	cfg      SecConfig
	limiters *limiterPool
}

func NewGateway(cfg SecConfig, clock timeutil.Clock) *Gateway {
	return &Gateway{cfg: cfg, limiters: newLimiterPool(cfg.RPS, cfg.Burst, clock)}
}

func (g *Gateway) Shutdown() { g.limiters.Shutdown() }

func (g *Gateway) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	cfg := g.cfg
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		logger.Debug("http_request", "method", string(ctx.Method()), "path", path, "remote", ctx.RemoteAddr().String())

		// cors headers and options shortcut
		origin := router.GetHeader(ctx, "Origin")
		if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Vary", "Origin")
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			ctx.Response.Header.Set("Access-Control-Max-Age", "600")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature")
			ctx.Response.Header.Set("Access-Control-Expose-Headers", "X-Role-Name,X-Live-Version")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		if len(cfg.IPWhitelist) > 0 {
			ip := clientIP(ctx)
			if !ipWhitelisted(ip, cfg.IPWhitelist) {
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", path)
				return
			}
		}

		if publicAllowedPath(ctx) {
			ctx.Request.Header.Set("X-Role-Name", RoleUnauth.String())
			next(ctx)
			return
		}

		role, key := validateAPIKey(ctx, cfg)
		if role == RoleUnauth {
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			logger.Warn("request_unauthorized", "path", path, "remote", ctx.RemoteAddr().String())
			return
		}
		ctx.Request.Header.Set("X-Role-Name", role.String())
		ctx.Response.Header.Set("X-Role-Name", role.String())

		isAdminPath := strings.HasPrefix(path, "/admin")
		switch {
		case role == RoleAdmin && !isAdminPath:
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin api keys may only access /admin routes")
			logger.Warn("admin_route_violation", "path", path, "remote", ctx.RemoteAddr().String())
			return
		case role != RoleAdmin && isAdminPath:
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin routes require an admin api key")
			logger.Warn("admin_access_attempt", "role", role.String(), "path", path, "remote", ctx.RemoteAddr().String())
			return
		case role == RoleFrontend && !frontendAllowed(ctx):
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
			logger.Warn("request_forbidden", "reason", "frontend_not_allowed", "path", path)
			return
		}

		limitKey := key
		if role != RoleAdmin {
			userID, idErr := ResolveUser(ctx, role)
			if idErr != nil {
				router.WriteJSONError(ctx, idErr.Code, idErr.Message)
				logger.Warn("identity_rejected", "type", idErr.Type, "role", role.String(), "path", path)
				return
			}
			if userID != "" {
				ctx.SetUserValue(router.UserKey, userID)
				limitKey = role.String() + ":" + userID
			}
		}

		if !g.limiters.Allow(limitKey) {
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "role", role.String(), "path", path)
			return
		}
		next(ctx)
	}
}

func clientIP(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

// extractAPIKey reads "Authorization: Bearer <key>" or X-API-Key.
func extractAPIKey(ctx *fasthttp.RequestCtx) string {
	if parts := strings.Fields(router.GetHeader(ctx, "Authorization")); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return router.GetHeader(ctx, "X-API-Key")
}

func validateAPIKey(ctx *fasthttp.RequestCtx, cfg SecConfig) (Role, string) {
	key := extractAPIKey(ctx)
	if key == "" {
		return RoleUnauth, ""
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin, key
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend, key
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key
	}
	return RoleUnauth, key
}

// frontendAllowed keeps signing and user registration on the backend.
func frontendAllowed(ctx *fasthttp.RequestCtx) bool {
	path := strings.TrimSuffix(string(ctx.Path()), "/")
	if !strings.HasPrefix(path, "/v1/") {
		return false
	}
	if path == "/v1/sign" {
		return false
	}
	if path == "/v1/users" && string(ctx.Method()) == fasthttp.MethodPost {
		return false
	}
	return true
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicAllowedPath(ctx *fasthttp.RequestCtx) bool {
	path := string(ctx.Path())
	return (path == "/healthz" || path == "/readyz") && string(ctx.Method()) == fasthttp.MethodGet
}
