package handlers

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/api/auth"
	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store"
	"github.com/yz174/kliq/pkg/store/keys"
)

// Sign issues a signature for a user id so a frontend can act as it.
// Backend only.
func (h *Handlers) Sign(ctx *fasthttp.RequestCtx) {
	if router.GetHeader(ctx, "X-Role-Name") != auth.RoleBackend.String() {
		logger.Warn("forbidden_sign_attempt", "remote", ctx.RemoteAddr().String())
		router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
		return
	}
	var payload struct {
		UserID string `json:"user_id"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	if err := keys.ValidateID(payload.UserID); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid user id: "+err.Error())
		return
	}
	var signingKey string
	for k := range config.GetSigningKeys() {
		if signingKey == "" || k < signingKey {
			signingKey = k
		}
	}
	if signingKey == "" {
		logger.Error("signing_keys_missing")
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "signing keys not configured")
		return
	}
	_ = router.WriteJSON(ctx, map[string]string{
		"user_id":   payload.UserID,
		"signature": auth.CreateHMACSignature(payload.UserID, signingKey),
	})
}

// UpsertUser registers or refreshes a user from the identity provider.
func (h *Handlers) UpsertUser(ctx *fasthttp.RequestCtx) {
	var payload struct {
		ExternalID string `json:"external_id"`
		Name       string `json:"name"`
		Email      string `json:"email"`
		AvatarURL  string `json:"avatar_url"`
	}
	if !router.DecodeBody(ctx, &payload) {
		return
	}
	u, created, err := h.Users.Upsert(h.Base, store.UserProfile{
		ExternalID: payload.ExternalID,
		Name:       payload.Name,
		Email:      payload.Email,
		AvatarURL:  payload.AvatarURL,
	})
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	status := fasthttp.StatusOK
	if created {
		status = fasthttp.StatusCreated
	}
	_ = router.WriteJSONStatus(ctx, status, u)
}

func (h *Handlers) Me(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "users.me")
	if !ok {
		return
	}
	defer tr.Finish()
	u, err := h.Users.Get(h.Base, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, u)
}

// ListUsers lists everyone but the caller, or the users named in ?ids=.
func (h *Handlers) ListUsers(ctx *fasthttp.RequestCtx) {
	userID := router.User(ctx)
	if raw := router.GetQuery(ctx, "ids"); raw != "" {
		var ids []string
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		list, err := h.Users.GetMany(h.Base, ids)
		if err != nil {
			router.WriteError(ctx, err)
			return
		}
		_ = router.WriteJSON(ctx, map[string]any{"users": list})
		return
	}
	list, err := h.Users.List(h.Base, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if list == nil {
		list = []models.User{}
	}
	_ = router.WriteJSON(ctx, map[string]any{"users": list})
}

func (h *Handlers) GetUser(ctx *fasthttp.RequestCtx) {
	id, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	u, err := h.Users.Get(h.Base, id)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, u)
}
