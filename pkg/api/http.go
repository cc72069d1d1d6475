// Package api assembles the HTTP surface: routes, the auth gateway and
// request metrics.
package api

import (
	"net/http"
	"runtime"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/yz174/kliq/pkg/api/auth"
	"github.com/yz174/kliq/pkg/api/handlers"
	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/telemetry"
)

func memStat(pick func(*runtime.MemStats) uint64) func() float64 {
	return func() float64 {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		return float64(pick(&stats))
	}
}

var (
	gcPauseTotal = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kliq_gc_pause_total_ns",
		Help: "Total GC pause time in nanoseconds.",
	}, memStat(func(s *runtime.MemStats) uint64 { return s.PauseTotalNs }))

	heapAlloc = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kliq_heap_alloc_bytes",
		Help: "Current heap allocation in bytes.",
	}, memStat(func(s *runtime.MemStats) uint64 { return s.HeapAlloc }))

	heapSys = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kliq_heap_sys_bytes",
		Help: "Total heap size in bytes.",
	}, memStat(func(s *runtime.MemStats) uint64 { return s.HeapSys }))

	numGC = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "kliq_gc_cycles_total",
		Help: "Total number of GC cycles.",
	}, memStat(func(s *runtime.MemStats) uint64 { return uint64(s.NumGC) }))
)

func init() {
	prometheus.MustRegister(gcPauseTotal, heapAlloc, heapSys, numGC)
}

// wrapHTTPHandler adapts a net/http handler to fasthttp.
func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// RegisterRoutes wires every endpoint onto r. Literal segments must be
// registered before parameters at the same depth.
func RegisterRoutes(r *router.Router, h *handlers.Handlers) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	r.POST("/v1/sign", h.Sign)

	r.POST("/v1/users", h.UpsertUser)
	r.GET("/v1/users/me", h.Me)
	r.GET("/v1/users", h.ListUsers)
	r.GET("/v1/users/{id}", h.GetUser)

	r.POST("/v1/conversations/direct", h.CreateDirect)
	r.POST("/v1/conversations/groups", h.CreateGroup)
	r.GET("/v1/conversations", h.ListConversations)
	r.GET("/v1/conversations/{id}", h.GetConversation)
	r.POST("/v1/conversations/{id}/members", h.AddMember)
	r.DELETE("/v1/conversations/{id}/members/me", h.Leave)
	r.POST("/v1/conversations/{id}/read", h.MarkRead)

	r.GET("/v1/conversations/{id}/messages", h.ListMessages)
	r.POST("/v1/conversations/{id}/messages", h.SendMessage)
	r.DELETE("/v1/messages/{id}", h.DeleteMessage)
	r.POST("/v1/messages/{id}/reactions", h.ToggleReaction)

	r.PUT("/v1/presence", h.SetPresence)
	r.POST("/v1/presence/query", h.QueryPresence)
	r.PUT("/v1/conversations/{id}/typing", h.SetTyping)
	r.GET("/v1/conversations/{id}/typing", h.GetTyping)

	r.GET("/v1/conversations/{id}/ai", h.GetArtifacts)
	r.GET("/v1/conversations/{id}/search", h.Search)

	r.GET("/v1/live/{topic}", h.Live)

	r.GET("/admin/health", h.AdminHealth)
	r.GET("/admin/stats", h.AdminStats)
	r.GET("/admin/metrics", wrapHTTPHandler(promhttp.Handler()))
	r.POST("/admin/jobs/retention", h.RunRetention)
}

// instrument counts every response by method and status.
func instrument(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)
		telemetry.HTTPRequests.WithLabelValues(string(ctx.Method()), strconv.Itoa(ctx.Response.StatusCode())).Inc()
	}
}

// Handler returns the full request pipeline: metrics, then the gateway,
// then the router.
func Handler(h *handlers.Handlers, gw *auth.Gateway) fasthttp.RequestHandler {
	r := router.New()
	RegisterRoutes(r, h)
	return instrument(gw.Middleware(r.Handler))
}
