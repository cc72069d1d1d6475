package router

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/store/keys"
)

// UserKey is the user value holding the authenticated user id.
const UserKey = "user"

func PathParam(ctx *fasthttp.RequestCtx, param string) string {
	if v := ctx.UserValue(param); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// ValidatePathParam returns a well-formed id path parameter, writing a 400
// otherwise.
func ValidatePathParam(ctx *fasthttp.RequestCtx, paramName string) (string, bool) {
	value := PathParam(ctx, paramName)
	if value == "" {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, paramName+" missing")
		return "", false
	}
	if err := keys.ValidateID(value); err != nil {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid "+paramName+": "+err.Error())
		return "", false
	}
	return value, true
}

// DecodeBody unmarshals the JSON body into v, writing a 400 on failure.
func DecodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, "request body required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

// User returns the authenticated user id set by the auth gateway.
func User(ctx *fasthttp.RequestCtx) string {
	s, _ := ctx.UserValue(UserKey).(string)
	return s
}

// RequireUser returns the acting user, writing a 401 when the request
// carries no verified identity.
func RequireUser(ctx *fasthttp.RequestCtx) (string, bool) {
	if u := User(ctx); u != "" {
		return u, true
	}
	WriteJSONError(ctx, fasthttp.StatusUnauthorized, "user identity required")
	return "", false
}

func GetHeader(ctx *fasthttp.RequestCtx, name string) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(name)))
}

func GetQuery(ctx *fasthttp.RequestCtx, name string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(name)))
}

// GetQueryUint parses an unsigned query value; ok is false when present
// but malformed.
func GetQueryUint(ctx *fasthttp.RequestCtx, name string) (uint64, bool) {
	raw := GetQuery(ctx, name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
