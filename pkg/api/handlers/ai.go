package handlers

import (
	"github.com/valyala/fasthttp"

	"github.com/yz174/kliq/pkg/ai"
	"github.com/yz174/kliq/pkg/api/router"
	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/models"
)

// ArtifactView is an artifact plus its rendered form: action items for
// actions, up to three suggestions for reply.
type ArtifactView struct {
	ID           string   `json:"id"`
	Content      string   `json:"content"`
	MessageCount int      `json:"message_count"`
	CreatedTS    int64    `json:"created_ts"`
	Items        []string `json:"items"`
}

type AIView struct {
	Summary *ArtifactView `json:"summary"`
	Actions *ArtifactView `json:"actions"`
	Reply   *ArtifactView `json:"reply"`
}

func render(a models.Artifact) *ArtifactView {
	v := &ArtifactView{ID: a.ID, Content: a.Content, MessageCount: a.Metadata.MessageCount, CreatedTS: a.CreatedTS}
	switch a.Type {
	case models.ArtifactActions:
		v.Items = ai.ActionItems(a.Content)
	case models.ArtifactReply:
		v.Items = ai.ReplySuggestions(a.Content)
	}
	return v
}

// GetArtifacts returns the caller's latest AI output for a conversation.
func (h *Handlers) GetArtifacts(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "ai.artifacts")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	h.stampVersion(ctx, live.ArtifactsTopic(convID, userID))
	latest, err := h.AI.GetArtifacts(h.Base, convID, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	var out AIView
	if a, ok := latest[models.ArtifactSummary]; ok {
		out.Summary = render(a)
	}
	if a, ok := latest[models.ArtifactActions]; ok {
		out.Actions = render(a)
	}
	if a, ok := latest[models.ArtifactReply]; ok {
		out.Reply = render(a)
	}
	_ = router.WriteJSON(ctx, out)
}

func (h *Handlers) Search(ctx *fasthttp.RequestCtx) {
	userID, tr, ok := begin(ctx, "search")
	if !ok {
		return
	}
	defer tr.Finish()
	convID, ok := router.ValidatePathParam(ctx, "id")
	if !ok {
		return
	}
	results, err := h.Deps.Search.SemanticSearch(h.Base, convID, userID, router.GetQuery(ctx, "q"))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{"results": results})
}
