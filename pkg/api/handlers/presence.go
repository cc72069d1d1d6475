package handlers

import (
	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/messaging"
)

// maxPresenceQuery bounds ids per presence lookup.
const maxPresenceQuery = 500

func (h *Handlers) SetPresence(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "presence.set")
	if !ok {
		return
	}
	defer tr.Finish()
	var payload struct {
		Online *bool `json:"online"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	if payload.Online == nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "online is required")
		return
	}
	p, err := h.Presence.SetPresence(h.Base, userID, *payload.Online)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, p)
}

func (h *Handlers) QueryPresence(ctx *fasthttp.RequestCtx) {
	_, tr, ok := begin(ctx, "presence.query")
	if !ok {
		return
	}
	defer tr.Finish()
	var payload struct {
		UserIDs []string `json:"user_ids"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	if len(payload.UserIDs) > maxPresenceQuery {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "too many user ids")
		return
	}
	ps, err := h.Presence.GetPresence(h.Base, payload.UserIDs)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{"presence": ps})
}

func (h *Handlers) SetTyping(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "typing.set")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	var payload struct {
		Typing bool `json:"typing"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	if err := h.Presence.SetTyping(h.Base, convID, userID, payload.Typing); err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx)
}

// GetTyping lists who else is typing. Liveness is judged at read time, so
// clients re-read after window_ms even without an invalidation.
func (h *Handlers) GetTyping(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "typing.get")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	if err := h.requireMember(convID, userID); err != nil {
		router.WriteError(ctx, err)
		return
	}
	h.stampVersion(ctx, live.TypingTopic(convID))
	list, err := h.Presence.GetTypingUsers(h.Base, convID, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	out := make([]messaging.UserSummary, 0, len(list))
	for _, u := range list {
		out = append(out, messaging.UserSummary{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL})
	}
	_ = router.WriteJSON(ctx, map[string]any{
		"users":     out,
		"window_ms": h.Presence.Window().Milliseconds(),
	})
}
