// Package embedding attaches vectors to messages after they are sent.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yz174/kliq/pkg/llm"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/models"
)

type Store interface {
	GetMessage(msgID string) (models.Message, error)
	SetMessageEmbedding(msgID string, vec []float32) error
}

// Pipeline embeds messages with the configured provider. Dimensions, when
// positive, is the only vector length accepted.
type Pipeline struct {
	store      Store
	provider   llm.Provider
	dimensions int
}

func New(s Store, p llm.Provider, dimensions int) *Pipeline {
	return &Pipeline{store: s, provider: p, dimensions: dimensions}
}

// ErrDimensionMismatch is returned for vectors of the wrong length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbedMessage computes and stores the message's vector. Deleted, blank
// and vanished messages are skipped without error.
func (p *Pipeline) EmbedMessage(ctx context.Context, msgID string) error {
	m, err := p.store.GetMessage(msgID)
	if errors.Is(err, models.ErrNotFound) {
		logger.Debug("embed_skipped", "message_id", msgID, "reason", "missing")
		return nil
	}
	if err != nil {
		return err
	}
	if m.Deleted || strings.TrimSpace(m.Content) == "" {
		logger.Debug("embed_skipped", "message_id", msgID, "reason", "no_content")
		return nil
	}
	vec, err := p.provider.Embed(ctx, m.Content)
	if err != nil {
		return err
	}
	if err := p.Check(vec); err != nil {
		return err
	}
	return p.store.SetMessageEmbedding(msgID, vec)
}

// Check validates a vector returned by the provider.
func (p *Pipeline) Check(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector: %w", llm.ErrProviderFailure)
	}
	if p.dimensions > 0 && len(vec) != p.dimensions {
		return fmt.Errorf("got %d want %d: %w", len(vec), p.dimensions, ErrDimensionMismatch)
	}
	return nil
}

// HandleJob is the embed job handler.
func (p *Pipeline) HandleJob(ctx context.Context, j models.Job) error {
	return p.EmbedMessage(ctx, j.MessageID)
}
