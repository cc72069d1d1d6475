package handlers

import (
	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/live"
)

func (h *Handlers) ListMessages(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "messages.list")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	h.stampVersion(ctx, live.MessagesTopic(convID))
	views, err := h.Messaging.GetMessages(h.Base, convID, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{"messages": views})
}

func (h *Handlers) SendMessage(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "messages.send")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	var payload struct {
		Content string `json:"content"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	msg, err := h.Messaging.SendMessage(h.Base, convID, userID, payload.Content)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	tr.Mark("persisted")
	v, err := h.Messaging.GetMessage(h.Base, msg.ID, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSONStatus(ctx, fasthttp.StatusCreated, v)
}

func (h *Handlers) DeleteMessage(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "messages.delete")
	if !ok {
		return
	}
	defer tr.Finish()
	msgID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	if err := h.Messaging.DeleteMessage(h.Base, msgID, userID); err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx)
}

func (h *Handlers) ToggleReaction(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "messages.react")
	if !ok {
		return
	}
	defer tr.Finish()
	msgID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	var payload struct {
		Emoji string `json:"emoji"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	active, err := h.Messaging.ToggleReaction(h.Base, msgID, userID, payload.Emoji)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{"message_id": msgID, "emoji": payload.Emoji, "active": active})
}
