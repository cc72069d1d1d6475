// Package llm wraps the generative model used for assist commands and
// message embeddings.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yz174/kliq/pkg/config"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/telemetry"
)

// ErrProviderFailure marks any failure of the model provider: transport,
// quota, empty output or a disabled provider.
var ErrProviderFailure = errors.New("ai provider failure")

// Provider generates text and embeddings.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// New builds the provider selected by cfg, wrapped with timeouts and
// metrics.
func New(cfg config.AIConfig) (Provider, error) {
	var p Provider
	switch strings.ToLower(cfg.Provider) {
	case "genai":
		g, err := NewGenAI(cfg)
		if err != nil {
			return nil, err
		}
		p = g
	case "", "none":
		p = Disabled{}
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	logger.Info("llm_provider_ready", "provider", p.Name())
	return Instrument(p, cfg.RequestTimeout.Duration()), nil
}

// Disabled fails every call. It backs deployments without an API key.
type Disabled struct{}

func (Disabled) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("generate: provider disabled: %w", ErrProviderFailure)
}

func (Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embed: provider disabled: %w", ErrProviderFailure)
}

func (Disabled) Name() string { return "none" }

type instrumented struct {
	p       Provider
	timeout time.Duration
}

// Instrument bounds each call by timeout (when positive), records call
// metrics and makes every error match ErrProviderFailure.
func Instrument(p Provider, timeout time.Duration) Provider {
	if _, ok := p.(*instrumented); ok {
		return p
	}
	return &instrumented{p: p, timeout: timeout}
}

func (i *instrumented) Name() string { return i.p.Name() }

func (i *instrumented) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := i.bound(ctx)
	defer cancel()
	start := time.Now()
	out, err := i.p.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty completion")
	}
	return out, i.observe("generate", start, err)
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := i.bound(ctx)
	defer cancel()
	start := time.Now()
	vec, err := i.p.Embed(ctx, text)
	if err == nil && len(vec) == 0 {
		err = errors.New("empty embedding")
	}
	return vec, i.observe("embed", start, err)
}

func (i *instrumented) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout > 0 {
		return context.WithTimeout(ctx, i.timeout)
	}
	return context.WithCancel(ctx)
}

func (i *instrumented) observe(op string, start time.Time, err error) error {
	telemetry.LLMLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		telemetry.LLMCalls.WithLabelValues(op, "ok").Inc()
		return nil
	}
	telemetry.LLMCalls.WithLabelValues(op, "error").Inc()
	logger.Warn("llm_call_failed", "op", op, "provider", i.p.Name(), "error", err)
	if errors.Is(err, ErrProviderFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrProviderFailure, err)
}
