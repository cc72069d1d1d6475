package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/internal/retention"
	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/logger"
)

func (h *Handlers) Healthz(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]string{"status": "ok"})
}

// Readyz fails until the store is open.
func (h *Handlers) Readyz(ctx *fasthttp.RequestCtx) {
	if h.Store == nil || !h.Store.Ready() {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "not ready")
		return
	}
	_ = router.WriteJSON(ctx, map[string]string{"status": "ready"})
}

func (h *Handlers) AdminHealth(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]string{"status": "ok", "service": "kliq", "version": h.Version})
}

func (h *Handlers) AdminStats(ctx *fasthttp.RequestCtx) {
	counts, err := h.Store.Stats()
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	out := map[string]any{
		"keys":   counts,
		"writes": h.Store.Writes(),
	}
	if h.Jobs != nil {
		out["jobs"] = h.Jobs.Stats()
	}
	_ = router.WriteJSON(ctx, out)
}

// RunRetention triggers a retention run outside the schedule.
func (h *Handlers) RunRetention(ctx *fasthttp.RequestCtx) {
	if h.Retention == nil {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "retention not configured")
		return
	}
	rep, err := h.Retention.RunNow(h.Base)
	if errors.Is(err, retention.ErrRunInProgress) {
		router.WriteJSONError(ctx, fasthttp.StatusConflict, err.Error())
		return
	}
	if err != nil {
		logger.Error("retention_manual_run_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "retention run failed")
		return
	}
	_ = router.WriteJSON(ctx, rep)
}
