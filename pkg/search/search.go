package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/yz174/kliq/pkg/llm"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/telemetry"
)

type Store interface {
	ListMessages(convID string) ([]models.Message, error)
	IsMember(convID, userID string) (bool, error)
}

// Result is one ranked message. The vector is not exposed.
type Result struct {
	MessageID string  `json:"message_id"`
	SenderID  string  `json:"sender_id"`
	Content   string  `json:"content"`
	CreatedTS int64   `json:"created_ts"`
	Score     float64 `json:"score"`
}

type message models.Message

func (m message) Vector() []float32 { return m.Embedding }

type Engine struct {
	store    Store
	provider llm.Provider
	limit    int
}

func New(s Store, p llm.Provider, limit int) *Engine {
	if limit <= 0 {
		limit = 10
	}
	return &Engine{store: s, provider: p, limit: limit}
}

// SemanticSearch embeds query and returns the closest non-deleted
// messages of the conversation, best first.
func (e *Engine) SemanticSearch(ctx context.Context, convID, userID, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", models.ErrInvalidArgument)
	}
	ok, err := e.store.IsMember(convID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s not in %s: %w", userID, convID, models.ErrUnauthorized)
	}
	tr := telemetry.Track("search.semantic")
	defer tr.Finish()

	qv, err := e.provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	tr.Mark("embed")
	msgs, err := e.store.ListMessages(convID)
	if err != nil {
		return nil, err
	}
	candidates := make([]message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Deleted {
			candidates = append(candidates, message(m))
		}
	}
	ranked := Rank(candidates, qv)
	if len(ranked) > e.limit {
		ranked = ranked[:e.limit]
	}
	out := make([]Result, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, Result{
			MessageID: r.Item.ID,
			SenderID:  r.Item.SenderID,
			Content:   r.Item.Content,
			CreatedTS: r.Item.CreatedTS,
			Score:     r.Score,
		})
	}
	return out, nil
}
