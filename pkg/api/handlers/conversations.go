package handlers

import (
	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/live"
)

func (h *Handlers) ListConversations(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "conversations.list")
	if !ok {
		return
	}
	defer tr.Finish()
	h.stampVersion(ctx, live.ConversationsTopic(userID))
	views, err := h.Conversations.GetUserConversations(h.Base, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{"conversations": views})
}

func (h *Handlers) GetConversation(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "conversations.get")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	h.stampVersion(ctx, live.ConversationsTopic(userID))
	v, err := h.Conversations.GetConversation(h.Base, convID, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, v)
}

func (h *Handlers) CreateDirect(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "conversations.direct")
	if !ok {
		return
	}
	defer tr.Finish()
	var payload struct {
		UserID string `json:"user_id"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	v, created, err := h.Conversations.GetOrCreateDirect(h.Base, userID, payload.UserID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	status := fasthttp.StatusOK
	if created {
		status = fasthttp.StatusCreated
	}
	_ = router.WriteJSONStatus(ctx, status, v)
}

func (h *Handlers) CreateGroup(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "conversations.group")
	if !ok {
		return
	}
	defer tr.Finish()
	var payload struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"member_ids"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	v, err := h.Conversations.CreateGroup(h.Base, payload.Name, payload.MemberIDs, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSONStatus(ctx, fasthttp.StatusCreated, v)
}

func (h *Handlers) AddMember(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "conversations.add_member")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	var payload struct {
		UserID string `json:"user_id"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	if err := h.Conversations.AddMember(h.Base, convID, payload.UserID, userID); err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx)
}

func (h *Handlers) Leave(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "conversations.leave")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	if err := h.Conversations.LeaveGroup(h.Base, convID, userID); err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx)
}

func (h *Handlers) MarkRead(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "conversations.read")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	var payload struct {
		MessageID string `json:"message_id"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	if err := h.Conversations.MarkAsRead(h.Base, convID, userID, payload.MessageID); err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx)
}
