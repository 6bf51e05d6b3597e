// Package gateway routes completion requests across language model
// providers with ordered failover.
//
// A [Provider] wraps one backend (cloud Gemini, local Ollama). The
// [Gateway] tries providers in configured order, honoring a caller
// preference, and moves to the next provider on unavailability or
// timeout. Only when every provider has failed does the caller see an
// error, and it is always [ErrAllProvidersExhausted].
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

var (
	// ErrProviderUnavailable indicates one provider failed to answer.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderTimeout indicates one provider exceeded its
	// generation timeout.
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrAllProvidersExhausted indicates every configured provider
	// failed. This is the only gateway error callers ever see.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
)

// Provider is one completion backend.
type Provider interface {
	// Name identifies the provider ("gemini", "ollama").
	Name() string

	// Complete generates a completion for prompt. Failures wrap
	// ErrProviderUnavailable or ErrProviderTimeout.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Gateway fans a completion request across providers in order.
type Gateway struct {
	providers []Provider
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a Gateway trying providers in the given order. limiter
// bounds the overall request rate across providers; nil means
// unlimited.
func New(providers []Provider, limiter *rate.Limiter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		providers: providers,
		limiter:   limiter,
		logger:    logger,
	}
}

// Providers returns the configured provider names in failover order.
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Complete generates a completion, failing over between providers.
// preferred, when non-empty and matching a configured provider name,
// is tried first; the remaining providers keep their configured order.
// Returns the text and the name of the provider that produced it.
func (g *Gateway) Complete(ctx context.Context, prompt, preferred string) (string, string, error) {
	if len(g.providers) == 0 {
		return "", "", fmt.Errorf("%w: no providers configured", ErrAllProvidersExhausted)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", "", fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	var lastErr error
	for _, p := range g.order(preferred) {
		text, err := p.Complete(ctx, prompt)
		if err == nil {
			return text, p.Name(), nil
		}
		lastErr = err
		g.logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"timeout", errors.Is(err, ErrProviderTimeout),
			"error", err)

		// A canceled caller context is not a provider failure.
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("request canceled: %w", ctx.Err())
		}
	}

	return "", "", fmt.Errorf("%w: last error: %v", ErrAllProvidersExhausted, lastErr)
}

// order returns providers with the preferred one (if any) moved to the
// front.
func (g *Gateway) order(preferred string) []Provider {
	if preferred == "" {
		return g.providers
	}
	for i, p := range g.providers {
		if p.Name() == preferred {
			ordered := make([]Provider, 0, len(g.providers))
			ordered = append(ordered, p)
			ordered = append(ordered, g.providers[:i]...)
			ordered = append(ordered, g.providers[i+1:]...)
			return ordered
		}
	}
	g.logger.Debug("unknown preferred provider, using configured order", "preferred", preferred)
	return g.providers
}
