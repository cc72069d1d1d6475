package router

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/llm"
	"github.com/yz174/kliq/pkg/models"
)

func newCtx(method, uri string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	return ctx
}

func errorBody(t *testing.T, ctx *fasthttp.RequestCtx) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	return body["error"]
}

func TestRouterMatchesParamsInOrder(t *testing.T) {
	r := New()
	var hit string
	r.GET("/v1/users/me", func(ctx *fasthttp.RequestCtx) { hit = "me" })
	r.GET("/v1/users/{id}", func(ctx *fasthttp.RequestCtx) { hit = "id:" + PathParam(ctx, "id") })
	r.DELETE("/v1/conversations/{id}/members/me", func(ctx *fasthttp.RequestCtx) { hit = "leave:" + PathParam(ctx, "id") })

	for _, tc := range []struct{ method, uri, want string }{
		{"GET", "/v1/users/me", "me"},
		{"GET", "/v1/users/u1", "id:u1"},
		{"GET", "/v1/users/u1/", "id:u1"},
		{"DELETE", "/v1/conversations/c9/members/me", "leave:c9"},
	} {
		hit = ""
		ctx := newCtx(tc.method, tc.uri)
		r.Handler(ctx)
		assert.Equal(t, tc.want, hit, tc.uri)
	}

	ctx := newCtx("GET", "/v1/users/u1")
	r.Handler(ctx)
	assert.Equal(t, "/v1/users/{id}", ctx.UserValue(RouteKey))
}

func TestRouterNotFoundAndMethodNotAllowed(t *testing.T) {
	r := New()
	r.GET("/v1/presence", func(*fasthttp.RequestCtx) {})

	ctx := newCtx("GET", "/v1/nothing")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = newCtx("PUT", "/v1/presence")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	assert.Equal(t, "GET", string(ctx.Response.Header.Peek("Allow")))
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("text: %w", models.ErrInvalidArgument), 400, "text: invalid argument"},
		{models.ErrUnauthorized, 403, "unauthorized"},
		{models.ErrNotFound, 404, "not found"},
		{models.ErrConflict, 409, "conflict"},
		{models.ErrInvalidState, 422, "invalid state"},
		{fmt.Errorf("genai: quota: %w", llm.ErrProviderFailure), 502, providerFailureMessage},
		{fmt.Errorf("disk on fire"), 500, "internal error"},
	}
	for _, tc := range cases {
		ctx := newCtx("GET", "/x")
		WriteError(ctx, tc.err)
		assert.Equal(t, tc.status, ctx.Response.StatusCode())
		assert.Equal(t, tc.msg, errorBody(t, ctx))
	}
}

func TestValidatePathParam(t *testing.T) {
	ctx := newCtx("GET", "/x")
	ctx.SetUserValue("id", "a:b")
	_, ok := ValidatePathParam(ctx, "id")
	assert.False(t, ok)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = newCtx("GET", "/x")
	ctx.SetUserValue("id", "abc")
	v, ok := ValidatePathParam(ctx, "id")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}
