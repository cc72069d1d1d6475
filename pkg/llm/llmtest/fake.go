// Package llmtest provides a scriptable Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/yz174/kliq/pkg/llm"
)

// Fake records prompts and answers with canned output. The zero value
// returns "ok" for Generate and a 3-dim vector for Embed.
type Fake struct {
	mu sync.Mutex

	Output   string
	GenErr   error
	EmbedErr error
	// Vectors maps input text to a fixed embedding; Vector is the fallback.
	Vectors map[string][]float32
	Vector  []float32

	// Hold, when set, parks every Generate call after it is recorded until
	// the channel is closed or ctx ends.
	Hold chan struct{}

	Prompts []string
	Embeds  []string
}

var _ llm.Provider = (*Fake)(nil)

func (f *Fake) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt)
	hold := f.Hold
	f.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GenErr != nil {
		return "", f.GenErr
	}
	if f.Output == "" {
		return "ok", nil
	}
	return f.Output, nil
}

func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Embeds = append(f.Embeds, text)
	if f.EmbedErr != nil {
		return nil, f.EmbedErr
	}
	if v, ok := f.Vectors[text]; ok {
		return v, nil
	}
	if f.Vector != nil {
		return f.Vector, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *Fake) Name() string { return "fake" }

// Calls returns how many Generate calls were made.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

// ErrDown is a convenient provider error.
var ErrDown = errors.New("provider unavailable")
