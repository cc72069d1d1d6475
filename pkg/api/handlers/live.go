package handlers

import (
	"context"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/logger"
)

// Live long-polls a topic. It answers as soon as the topic's version
// passes ?since, or with changed=false once the poll timeout elapses.
func (h *Handlers) Live(ctx *fasthttp.RequestCtx) {
	userID, ok := router.RequireUser(ctx)
	if !ok {
		return
	}
	topic := router.PathParam(ctx, "topic")
	since, ok := router.GetQueryUint(ctx, "since")
	if !ok {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid since")
		return
	}
	var memberErr error
	visible := live.TopicVisibleTo(topic, userID, func(convID string) bool {
		ok, err := h.Store.IsMember(convID, userID)
		if err != nil {
			memberErr = err
		}
		return ok
	})
	if memberErr != nil {
		router.WriteError(ctx, memberErr)
		return
	}
	if !visible {
		router.WriteJSONError(ctx, fasthttp.StatusForbidden, "topic not visible")
		return
	}

	waitCtx, cancel := context.WithTimeout(h.Base, h.PollTimeout)
	defer cancel()
	v, err := h.Hub.Wait(waitCtx, topic, since)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		logger.Warn("live_wait_failed", "topic", topic, "error", err)
	}
	_ = router.WriteJSON(ctx, map[string]any{
		"topic":   topic,
		"version": v,
		"changed": v > since,
	})
}
