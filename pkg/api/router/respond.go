package router

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/llm"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/models"
)

// providerFailureMessage hides model backend details from clients.
const providerFailureMessage = "AI request failed; try again"

// WriteJSON writes a 200 JSON response.
func WriteJSON(ctx *fasthttp.RequestCtx, data any) error {
	ctx.Response.Header.Set("Content-Type", "application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONStatus writes a JSON response with the given status.
func WriteJSONStatus(ctx *fasthttp.RequestCtx, status int, data any) error {
	ctx.SetStatusCode(status)
	return WriteJSON(ctx, data)
}

// WriteJSONError writes {"error": message}.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": message})
}

// WriteJSONOk writes {"ok": true}.
func WriteJSONOk(ctx *fasthttp.RequestCtx) {
	_ = WriteJSON(ctx, map[string]bool{"ok": true})
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return fasthttp.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return fasthttp.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return fasthttp.StatusConflict
	case errors.Is(err, models.ErrInvalidState):
		return fasthttp.StatusUnprocessableEntity
	case errors.Is(err, llm.ErrProviderFailure):
		return fasthttp.StatusBadGateway
	default:
		return fasthttp.StatusInternalServerError
	}
}

// WriteError writes err with its mapped status. Provider and internal
// errors are logged and replaced by generic messages.
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	status := StatusFor(err)
	switch status {
	case fasthttp.StatusBadGateway:
		logger.Warn("request_provider_failure", "path", string(ctx.Path()), "error", err)
		WriteJSONError(ctx, status, providerFailureMessage)
	case fasthttp.StatusInternalServerError:
		logger.Error("request_failed", "path", string(ctx.Path()), "error", err)
		WriteJSONError(ctx, status, "internal error")
	default:
		WriteJSONError(ctx, status, err.Error())
	}
}
