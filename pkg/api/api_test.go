package api_test

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/ai"
	"github.com/yz174/kliq/pkg/api"
	"github.com/yz174/kliq/pkg/api/auth"
	"github.com/yz174/kliq/pkg/api/handlers"
	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/conversations"
	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/llm/llmtest"
	"github.com/yz174/kliq/pkg/messaging"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/presence"
	"github.com/yz174/kliq/pkg/search"
	"github.com/yz174/kliq/pkg/store"
	"github.com/yz174/kliq/pkg/store/storetest"
	"github.com/yz174/kliq/pkg/users"
)

const (
	backendKey  = "backend-key"
	frontendKey = "frontend-key"
	adminKey    = "admin-key"
)

type env struct {
	t       *testing.T
	handler fasthttp.RequestHandler
	store   *store.Store
	hub     *live.Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	hub := live.New()
	s, clock := storetest.Open(t, hub)
	provider := &llmtest.Fake{}

	var sec config.SecurityConfig
	sec.APIKeys.Backend = []string{backendKey}
	sec.APIKeys.Frontend = []string{frontendKey}
	sec.APIKeys.Admin = []string{adminKey}
	sec.RateLimit.RPS = 1000
	sec.RateLimit.Burst = 1000
	config.SetRuntime(config.RuntimeFromConfig(&config.Config{Security: sec}))
	t.Cleanup(func() { config.SetRuntime(nil) })

	h := handlers.New(handlers.Deps{
		Store:         s,
		Users:         users.New(s),
		Conversations: conversations.New(s),
		Messaging:     messaging.New(s, nil, 4000),
		Presence:      presence.New(s, clock, 3*time.Second),
		AI:            ai.New(s, provider, clock, ai.Options{}),
		Search:        search.New(s, provider, 10),
		Hub:           hub,
		PollTimeout:   20 * time.Millisecond,
		Version:       "test",
	})
	gw := auth.NewGateway(auth.NewSecConfig(sec), clock)
	t.Cleanup(gw.Shutdown)
	return &env{t: t, handler: api.Handler(h, gw), store: s, hub: hub}
}

type req struct {
	method, path string
	key, user    string
	sig          string
	body         any
}

func (e *env) do(r req) *fasthttp.RequestCtx {
	e.t.Helper()
	var fr fasthttp.Request
	fr.Header.SetMethod(r.method)
	fr.SetRequestURI(r.path)
	if r.key != "" {
		fr.Header.Set("X-API-Key", r.key)
	}
	if r.user != "" {
		fr.Header.Set("X-User-ID", r.user)
	}
	if r.sig != "" {
		fr.Header.Set("X-User-Signature", r.sig)
	}
	if r.body != nil {
		b, err := json.Marshal(r.body)
		require.NoError(e.t, err)
		fr.SetBody(b)
		fr.Header.SetContentType("application/json")
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&fr, nil, nil)
	e.handler(ctx)
	return ctx
}

func decode[T any](t *testing.T, ctx *fasthttp.RequestCtx) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out), string(ctx.Response.Body()))
	return out
}

func (e *env) register(name string) models.User {
	e.t.Helper()
	ctx := e.do(req{method: "POST", path: "/v1/users", key: backendKey, body: map[string]string{"external_id": "ext-" + name, "name": name}})
	require.Equal(e.t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	return decode[models.User](e.t, ctx)
}

func TestHealthIsPublic(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, fasthttp.StatusOK, e.do(req{method: "GET", path: "/healthz"}).Response.StatusCode())
	assert.Equal(t, fasthttp.StatusOK, e.do(req{method: "GET", path: "/readyz"}).Response.StatusCode())
	assert.Equal(t, fasthttp.StatusUnauthorized, e.do(req{method: "GET", path: "/v1/users"}).Response.StatusCode())
}

func TestSignedFrontendFlow(t *testing.T) {
	e := newEnv(t)
	alice := e.register("alice")
	bob := e.register("bob")

	// registering again refreshes instead of creating
	ctx := e.do(req{method: "POST", path: "/v1/users", key: backendKey, body: map[string]string{"external_id": "ext-alice", "name": "Alice"}})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = e.do(req{method: "POST", path: "/v1/sign", key: backendKey, body: map[string]string{"user_id": alice.ID}})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	sig := decode[map[string]string](t, ctx)["signature"]
	require.NotEmpty(t, sig)

	asAlice := func(method, path string, body any) *fasthttp.RequestCtx {
		return e.do(req{method: method, path: path, key: frontendKey, user: alice.ID, sig: sig, body: body})
	}

	ctx = asAlice("GET", "/v1/users/me", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "Alice", decode[models.User](t, ctx).Name)

	ctx = asAlice("GET", "/v1/users", nil)
	list := decode[map[string][]models.User](t, ctx)["users"]
	require.Len(t, list, 1)
	assert.Equal(t, bob.ID, list[0].ID)

	ctx = asAlice("POST", "/v1/conversations/direct", map[string]string{"user_id": bob.ID})
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	conv := decode[conversations.View](t, ctx)
	ctx = asAlice("POST", "/v1/conversations/direct", map[string]string{"user_id": bob.ID})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = asAlice("POST", "/v1/conversations/"+conv.ID+"/messages", map[string]string{"content": "hello bob"})
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	msg := decode[messaging.MessageView](t, ctx)
	assert.Equal(t, "hello bob", msg.Content)
	assert.Equal(t, "Alice", msg.Sender.Name)

	ctx = asAlice("GET", "/v1/conversations/"+conv.ID+"/messages", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.NotEmpty(t, ctx.Response.Header.Peek("X-Live-Version"))
	assert.Len(t, decode[map[string][]messaging.MessageView](t, ctx)["messages"], 1)

	// bob acts through the backend key
	asBob := func(method, path string, body any) *fasthttp.RequestCtx {
		return e.do(req{method: method, path: path, key: backendKey, user: bob.ID, body: body})
	}
	ctx = asBob("GET", "/v1/conversations", nil)
	views := decode[map[string][]conversations.View](t, ctx)["conversations"]
	require.Len(t, views, 1)
	assert.Equal(t, 1, views[0].UnreadCount)

	ctx = asBob("POST", "/v1/conversations/"+conv.ID+"/read", map[string]string{"message_id": msg.ID})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	ctx = asBob("GET", "/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, 0, decode[conversations.View](t, ctx).UnreadCount)

	ctx = asBob("POST", "/v1/messages/"+msg.ID+"/reactions", map[string]string{"emoji": "👍"})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, true, decode[map[string]any](t, ctx)["active"])
	ctx = asBob("POST", "/v1/messages/"+msg.ID+"/reactions", map[string]string{"emoji": "🔥"})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = asBob("DELETE", "/v1/messages/"+msg.ID, nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode(), "only the sender may delete")
	ctx = asAlice("DELETE", "/v1/messages/"+msg.ID, nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	ctx = asBob("GET", "/v1/conversations/"+conv.ID+"/messages", nil)
	assert.Equal(t, models.DeletedPlaceholder, decode[map[string][]messaging.MessageView](t, ctx)["messages"][0].Content)

	// direct conversations take no extra members
	carol := e.register("carol")
	ctx = asAlice("POST", "/v1/conversations/"+conv.ID+"/members", map[string]string{"user_id": carol.ID})
	assert.Equal(t, fasthttp.StatusUnprocessableEntity, ctx.Response.StatusCode())
}

func TestGroupMembershipAndTyping(t *testing.T) {
	e := newEnv(t)
	alice := e.register("alice")
	bob := e.register("bob")
	carol := e.register("carol")
	as := func(u models.User, method, path string, body any) *fasthttp.RequestCtx {
		return e.do(req{method: method, path: path, key: backendKey, user: u.ID, body: body})
	}

	ctx := as(alice, "POST", "/v1/conversations/groups", map[string]any{"name": " team ", "member_ids": []string{bob.ID}})
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	group := decode[conversations.View](t, ctx)
	assert.Equal(t, "team", group.Name)

	ctx = as(carol, "GET", "/v1/conversations/"+group.ID+"/messages", nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	ctx = as(carol, "GET", "/v1/conversations/"+group.ID+"/typing", nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	ctx = as(alice, "POST", "/v1/conversations/"+group.ID+"/members", map[string]string{"user_id": carol.ID})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	ctx = as(alice, "POST", "/v1/conversations/"+group.ID+"/members", map[string]string{"user_id": carol.ID})
	assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())

	ctx = as(bob, "PUT", "/v1/conversations/"+group.ID+"/typing", map[string]bool{"typing": true})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	ctx = as(carol, "GET", "/v1/conversations/"+group.ID+"/typing", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	typing := decode[struct {
		Users    []messaging.UserSummary `json:"users"`
		WindowMS int64                   `json:"window_ms"`
	}](t, ctx)
	require.Len(t, typing.Users, 1)
	assert.Equal(t, "bob", typing.Users[0].Name)
	assert.Equal(t, int64(3000), typing.WindowMS)

	ctx = as(carol, "DELETE", "/v1/conversations/"+group.ID+"/members/me", nil)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	ctx = as(carol, "GET", "/v1/conversations/"+group.ID, nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	ctx = as(alice, "GET", "/v1/conversations/"+group.ID+"/messages", nil)
	msgs := decode[map[string][]messaging.MessageView](t, ctx)["messages"]
	require.Len(t, msgs, 2)
	assert.Equal(t, "alice added carol to the group", msgs[0].Content)
	assert.Equal(t, "carol left the group", msgs[1].Content)
}

func TestPresenceEndpoints(t *testing.T) {
	e := newEnv(t)
	alice := e.register("alice")

	ctx := e.do(req{method: "PUT", path: "/v1/presence", key: backendKey, user: alice.ID, body: map[string]any{}})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	ctx = e.do(req{method: "PUT", path: "/v1/presence", key: backendKey, user: alice.ID, body: map[string]bool{"online": true}})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = e.do(req{method: "POST", path: "/v1/presence/query", key: backendKey, user: alice.ID, body: map[string][]string{"user_ids": {alice.ID, "ghost"}}})
	ps := decode[map[string][]models.Presence](t, ctx)["presence"]
	require.Len(t, ps, 2)
	assert.True(t, ps[0].IsOnline)
	assert.False(t, ps[1].IsOnline)
}

func TestArtifactsAndSearch(t *testing.T) {
	e := newEnv(t)
	alice := e.register("alice")
	bob := e.register("bob")
	conv, _, err := e.store.GetOrCreateDirect(alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = e.store.InsertArtifact(models.Artifact{ConversationID: conv.ID, UserID: alice.ID, Type: models.ArtifactActions, Content: "Action Items:\n1. Ship it\n- Test it"})
	require.NoError(t, err)

	ctx := e.do(req{method: "GET", path: "/v1/conversations/" + conv.ID + "/ai", key: backendKey, user: alice.ID})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	view := decode[handlers.AIView](t, ctx)
	assert.Nil(t, view.Summary)
	require.NotNil(t, view.Actions)
	assert.Equal(t, []string{"Ship it", "Test it"}, view.Actions.Items)

	ctx = e.do(req{method: "GET", path: "/v1/conversations/" + conv.ID + "/ai", key: backendKey, user: bob.ID})
	assert.Nil(t, decode[handlers.AIView](t, ctx).Actions, "artifacts are private to the requester")

	ctx = e.do(req{method: "GET", path: "/v1/conversations/" + conv.ID + "/search?q=", key: backendKey, user: alice.ID})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	ctx = e.do(req{method: "GET", path: "/v1/conversations/" + conv.ID + "/search?q=ship", key: backendKey, user: alice.ID})
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestLivePolling(t *testing.T) {
	e := newEnv(t)
	alice := e.register("alice")
	bob := e.register("bob")
	carol := e.register("carol")
	conv, _, err := e.store.GetOrCreateDirect(alice.ID, bob.ID)
	require.NoError(t, err)
	topic := live.MessagesTopic(conv.ID)

	type poll struct {
		Version uint64 `json:"version"`
		Changed bool   `json:"changed"`
	}

	current := e.hub.Version(topic)
	ctx := e.do(req{method: "GET", path: "/v1/live/" + topic + "?since=" + strconv.FormatUint(current, 10), key: backendKey, user: alice.ID})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.False(t, decode[poll](t, ctx).Changed, "times out without a write")

	_, _, err = e.store.InsertMessage(models.Message{ConversationID: conv.ID, SenderID: bob.ID, Content: "hi", Kind: models.MessageUser}, nil)
	require.NoError(t, err)
	ctx = e.do(req{method: "GET", path: "/v1/live/" + topic + "?since=" + strconv.FormatUint(current, 10), key: backendKey, user: alice.ID})
	p := decode[poll](t, ctx)
	assert.True(t, p.Changed)
	assert.Greater(t, p.Version, current)

	ctx = e.do(req{method: "GET", path: "/v1/live/" + topic, key: backendKey, user: carol.ID})
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	ctx = e.do(req{method: "GET", path: "/v1/live/" + live.ConversationsTopic(alice.ID), key: backendKey, user: carol.ID})
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	ctx = e.do(req{method: "GET", path: "/v1/live/" + topic + "?since=abc", key: backendKey, user: alice.ID})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestAdminSurface(t *testing.T) {
	e := newEnv(t)
	e.register("alice")

	ctx := e.do(req{method: "GET", path: "/admin/stats", key: adminKey})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	stats := decode[struct {
		Keys map[string]int `json:"keys"`
	}](t, ctx)
	assert.Equal(t, 1, stats.Keys["users"])

	ctx = e.do(req{method: "GET", path: "/admin/metrics", key: adminKey})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "kliq_http_requests_total")

	ctx = e.do(req{method: "POST", path: "/admin/jobs/retention", key: adminKey})
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())

	ctx = e.do(req{method: "GET", path: "/admin/stats", key: backendKey})
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}

func TestMissingIdentity(t *testing.T) {
	e := newEnv(t)
	ctx := e.do(req{method: "GET", path: "/v1/conversations", key: backendKey})
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	ctx = e.do(req{method: "POST", path: "/v1/users", key: backendKey})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}
