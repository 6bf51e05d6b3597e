package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitProvider adapts a Genkit-registered model to the Provider
// interface. The model is addressed by its full registry name, e.g.
// "googleai/gemini-2.5-flash" or "ollama/llama3.1".
type GenkitProvider struct {
	g       *genkit.Genkit
	name    string
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenkitProvider creates a provider named name backed by the Genkit
// model. timeout bounds each generation; zero means 90 seconds.
func NewGenkitProvider(g *genkit.Genkit, name, model string, timeout time.Duration, logger *slog.Logger) *GenkitProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &GenkitProvider{
		g:       g,
		name:    name,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

var _ Provider = (*GenkitProvider)(nil)

// Name implements Provider.
func (p *GenkitProvider) Name() string {
	return p.name
}

// Complete implements Provider. A generation running past the timeout
// counts as ErrProviderTimeout so the gateway fails over; there is no
// mid-flight cancellation beyond the context deadline.
func (p *GenkitProvider) Complete(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := genkit.Generate(genCtx, p.g,
		ai.WithModelName(p.model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s after %s: %v", ErrProviderTimeout, p.name, p.timeout, err)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, p.name, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: %s returned empty response", ErrProviderUnavailable, p.name)
	}

	p.logger.Debug("generation complete",
		"provider", p.name,
		"model", p.model,
		"elapsed", time.Since(start),
		"response_length", len(text))
	return text, nil
}
